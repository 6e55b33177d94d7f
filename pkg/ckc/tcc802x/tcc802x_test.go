// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tcc802x

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/u-root/u-ckc/config"
	"github.com/u-root/u-ckc/pkg/ckc"
	"github.com/u-root/u-ckc/pkg/hardware/mem"
	"go.uber.org/zap/zaptest"
)

func testConfig() *config.Config {
	c := *config.DefaultConfig
	c.Wait = config.Wait{
		Timeout:     time.Millisecond,
		MaxAttempts: 20,
		MinInterval: time.Microsecond,
		MaxInterval: 10 * time.Microsecond,
	}
	return &c
}

func testOptions(t *testing.T, extra ...ckc.Option) []ckc.Option {
	return append([]ckc.Option{
		ckc.WithLogger(zaptest.NewLogger(t).Sugar()),
		ckc.WithClock(clock.NewFake()),
	}, extra...)
}

func newController(t *testing.T, m mem.Provider, opts ...ckc.Option) *ckc.Controller {
	t.Helper()
	c, err := New(m, testConfig(), testOptions(t, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

type stepLog struct {
	dir   ckc.Direction
	steps []ckc.Step
}

func (l *stepLog) hook(_ ckc.Domain, dir ckc.Direction, s ckc.Step) {
	l.dir = dir
	l.steps = append(l.steps, s)
}

func (l *stepLog) take() []ckc.Step {
	s := l.steps
	l.steps = nil
	return s
}

func TestBootState(t *testing.T) {
	c := newController(t, NewSimulator())
	r := c.Sources()
	for src, want := range map[ckc.Source]uint64{
		ckc.SrcXIN:     24 * ckc.MHz,
		ckc.SrcXTIN:    32768,
		ckc.SrcPLL0:    1200 * ckc.MHz,
		ckc.SrcPLL0Div: 600 * ckc.MHz,
		ckc.SrcPLL1Div: 500 * ckc.MHz,
		ckc.SrcPLL2Div: 200 * ckc.MHz,
		ckc.SrcPLL3Div: 0,
		ckc.SrcPLL4:    1600 * ckc.MHz,
		ckc.SrcDPLL:    0,
	} {
		if r[src] != want {
			t.Errorf("%v = %d, want %d", src, r[src], want)
		}
	}
	for d, want := range map[ckc.Domain]uint64{
		ckc.DomainCPU0: 1200 * ckc.MHz,
		ckc.DomainMEM:  800 * ckc.MHz,
		ckc.DomainIO:   250 * ckc.MHz,
		ckc.DomainGPU:  400 * ckc.MHz,
		ckc.DomainG2D:  300 * ckc.MHz,
	} {
		if got, err := c.BusClockGetRate(d); err != nil || got != want {
			t.Errorf("%v bus = %d, %v; want %d", d, got, err, want)
		}
	}
	for _, d := range []ckc.Domain{ckc.DomainGPU, ckc.DomainDDI, ckc.DomainVBUS} {
		if st, _ := c.DomainState(d); st != ckc.PoweredUp {
			t.Errorf("%v is %v at boot, want up", d, st)
		}
	}
}

func TestPLLSetRate(t *testing.T) {
	sim := NewSimulator()
	c := newController(t, sim)
	if err := c.PLLSetRate(0, 800*ckc.MHz); err != nil {
		t.Fatal(err)
	}
	p := ckc.DecodePLL(sim.Peek(PLLPMS(0)), false)
	if p.P != 3 || p.M != 400 || p.S != 2 || !p.Enabled {
		t.Errorf("PLL0 programmed as %v, want P=3 M=400 S=2", p)
	}
	r := c.Sources()
	if r[ckc.SrcPLL0] != 800*ckc.MHz || r[ckc.SrcPLL0Div] != 400*ckc.MHz {
		t.Errorf("PLL0 = %d, PLL0DIV = %d; want 800 and 400 MHz", r[ckc.SrcPLL0], r[ckc.SrcPLL0Div])
	}
	if err := c.PLLSetRate(PLLDithered, 600*ckc.MHz); err != nil {
		t.Fatal(err)
	}
	if got, _ := c.PLLGetRate(PLLDithered); got != 600*ckc.MHz {
		t.Errorf("DPLL = %d, want 600 MHz", got)
	}
	if got := c.Sources()[ckc.SrcDPLL]; got != 600*ckc.MHz {
		t.Errorf("DPLL in source table = %d, want 600 MHz", got)
	}

	sim.Stall(PLLPMS(1), ckc.PLLLock)
	if err := c.PLLSetRate(1, 900*ckc.MHz); !errors.Is(err, ckc.ErrTimeout) {
		t.Errorf("PLLSetRate on a stalled PLL = %v, want ErrTimeout", err)
	}
}

func TestPowerSequenceOrder(t *testing.T) {
	var l stepLog
	sim := NewSimulator()
	c := newController(t, sim, ckc.WithStepHook(l.hook))

	down := []ckc.Step{ckc.StepBusClock, ckc.StepBusReset, ckc.StepSoftReset, ckc.StepX2X, ckc.StepIsolation}
	up := []ckc.Step{ckc.StepIsolation, ckc.StepX2X, ckc.StepSoftReset, ckc.StepBusReset, ckc.StepBusClock, ckc.StepPLL}
	if err := c.PowerDomainSetPowered(ckc.DomainGPU, false); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(down, l.take()); diff != "" {
		t.Errorf("gpu power-down steps (-want +got):\n%s", diff)
	}
	if sim.Peek(GPUPLL) != 0 {
		t.Error("gpu PLL survived power-down")
	}
	if on, _ := c.IsDomainPowered(ckc.DomainGPU); on {
		t.Error("gpu still powered")
	}
	// Powering down again does nothing.
	if err := c.PowerDomainSetPowered(ckc.DomainGPU, false); err != nil || len(l.take()) != 0 {
		t.Errorf("second power-down = %v", err)
	}
	if err := c.PowerDomainSetPowered(ckc.DomainGPU, true); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(up, l.take()); diff != "" {
		t.Errorf("gpu power-up steps (-want +got):\n%s", diff)
	}
	if got, _ := c.BusClockGetRate(ckc.DomainGPU); got != 400*ckc.MHz {
		t.Errorf("gpu PLL = %d after power-up, want 400 MHz", got)
	}

	if err := c.PowerDomainSetPowered(ckc.DomainDDI, false); err != nil {
		t.Fatal(err)
	}
	want := []ckc.Step{ckc.StepBusClock, ckc.StepBusReset, ckc.StepSoftReset, ckc.StepX2X, ckc.StepPMU}
	if diff := cmp.Diff(want, l.take()); diff != "" {
		t.Errorf("ddi power-down steps (-want +got):\n%s", diff)
	}
	if sim.Peek(PMUStatus)&bitDDI != 0 {
		t.Error("PMU still reports ddi powered")
	}
	if err := c.PowerDomainSetPowered(ckc.DomainDDI, true); err != nil {
		t.Fatal(err)
	}
	want = []ckc.Step{ckc.StepPMU, ckc.StepX2X, ckc.StepSoftReset, ckc.StepBusReset, ckc.StepBusClock}
	if diff := cmp.Diff(want, l.take()); diff != "" {
		t.Errorf("ddi power-up steps (-want +got):\n%s", diff)
	}
	if sim.Peek(MBusClkMask)&bitDDI == 0 || sim.Peek(X2XReq)&bitDDI != 0 {
		t.Error("ddi bus not released after power-up")
	}
}

func TestPowerNonSwitchable(t *testing.T) {
	var l stepLog
	c := newController(t, NewSimulator(), ckc.WithStepHook(l.hook))
	if err := c.PowerDomainSetPowered(ckc.DomainCPU0, false); err != nil {
		t.Fatal(err)
	}
	if len(l.steps) != 0 {
		t.Errorf("cpu0 power-down ran %v", l.steps)
	}
	if on, _ := c.IsDomainPowered(ckc.DomainCPU0); !on {
		t.Error("cpu0 reported off while clocked")
	}

	soc := NewSoC()
	soc.Domains[ckc.DomainGPU].PMUCapable = false
	c, err := ckc.New(soc, NewSimulator(), testConfig().Board, testOptions(t, ckc.WithStepHook(l.hook))...)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.PowerDomainSetPowered(ckc.DomainGPU, false); err != nil {
		t.Fatal(err)
	}
	if len(l.steps) != 0 {
		t.Errorf("gpu without PMU control ran %v", l.steps)
	}
}

func TestPowerBusy(t *testing.T) {
	var c *ckc.Controller
	var inner error
	hook := func(d ckc.Domain, _ ckc.Direction, s ckc.Step) {
		if d == ckc.DomainVBUS && s == ckc.StepBusClock {
			inner = c.PowerDomainSetPowered(ckc.DomainVBUS, true)
		}
	}
	c = newController(t, NewSimulator(), ckc.WithStepHook(hook))
	if err := c.PowerDomainSetPowered(ckc.DomainVBUS, false); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(inner, ckc.ErrBusy) {
		t.Errorf("nested request = %v, want ErrBusy", inner)
	}
}

func gauge(t *testing.T, name, domain string) float64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "domain" && lp.GetValue() == domain {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	return 0
}

func TestPowerTimeoutAndRecover(t *testing.T) {
	var l stepLog
	sim := NewSimulator()
	c := newController(t, sim, ckc.WithStepHook(l.hook))
	sim.Stall(X2XAck, bitDDI)

	err := c.PowerDomainSetPowered(ckc.DomainDDI, false)
	var te *ckc.TimeoutError
	if !errors.As(err, &te) || te.Register != X2XAck {
		t.Fatalf("power-down with a stalled bridge = %v, want timeout on X2X ack", err)
	}
	want := []ckc.Step{ckc.StepBusClock, ckc.StepBusReset, ckc.StepSoftReset, ckc.StepX2X}
	if diff := cmp.Diff(want, l.take()); diff != "" {
		t.Errorf("steps before abort (-want +got):\n%s", diff)
	}
	if st, _ := c.DomainState(ckc.DomainDDI); st != ckc.Transitioning {
		t.Errorf("ddi is %v, want stuck transitioning", st)
	}
	if v := gauge(t, "ckc_power_stuck", "ddi"); v != 1 {
		t.Errorf("stuck gauge = %v, want 1", v)
	}
	if err := c.PowerDomainSetPowered(ckc.DomainDDI, true); !errors.Is(err, ckc.ErrStuck) {
		t.Errorf("power-up of stuck domain = %v, want ErrStuck", err)
	}
	if err := c.RecoverDomain(ckc.DomainDDI); !errors.Is(err, ckc.ErrTimeout) {
		t.Errorf("recover with the bridge still stalled = %v, want ErrTimeout", err)
	}
	if stuck, _ := c.DomainStuck(ckc.DomainDDI); !stuck {
		t.Error("failed recovery cleared the stuck flag")
	}

	sim.Unstall()
	if err := c.RecoverDomain(ckc.DomainDDI); err != nil {
		t.Fatal(err)
	}
	if st, _ := c.DomainState(ckc.DomainDDI); st != ckc.PoweredDown {
		t.Errorf("ddi is %v after recovery, want down", st)
	}
	if v := gauge(t, "ckc_power_stuck", "ddi"); v != 0 {
		t.Errorf("stuck gauge = %v after recovery, want 0", v)
	}
	if err := c.PowerDomainSetPowered(ckc.DomainDDI, true); err != nil {
		t.Fatal(err)
	}
	if on, _ := c.IsDomainPowered(ckc.DomainDDI); !on {
		t.Error("ddi not powered after recovery and power-up")
	}
	if err := c.RecoverDomain(ckc.DomainDDI); err != nil {
		t.Errorf("recovering a healthy domain = %v", err)
	}
}

func TestBusClockEnableDisable(t *testing.T) {
	sim := NewSimulator()
	c := newController(t, sim)
	if err := c.BusClockDisable(ckc.DomainG2D); err != nil {
		t.Fatal(err)
	}
	if on, _ := c.IsBusClockEnabled(ckc.DomainG2D); on {
		t.Error("g2d clock still on")
	}
	if on, _ := c.IsDomainPowered(ckc.DomainG2D); on {
		t.Error("g2d still powered")
	}
	if sim.Peek(PMUIso)&bitG2D == 0 || sim.Peek(PMUPwrSw)&(swG2D0|swG2D1) != 0 {
		t.Errorf("g2d not isolated: iso %#x switches %#x", sim.Peek(PMUIso), sim.Peek(PMUPwrSw))
	}
	// A rate set while off is applied on the way up.
	if err := c.BusClockSetRate(ckc.DomainG2D, 400*ckc.MHz); err != nil {
		t.Fatal(err)
	}
	if got, _ := c.BusClockGetRate(ckc.DomainG2D); got != 0 {
		t.Errorf("g2d PLL = %d while off", got)
	}
	if err := c.BusClockEnable(ckc.DomainG2D); err != nil {
		t.Fatal(err)
	}
	if got, _ := c.BusClockGetRate(ckc.DomainG2D); got != 400*ckc.MHz {
		t.Errorf("g2d PLL = %d after enable, want 400 MHz", got)
	}
	if err := c.BusClockSetRate(ckc.DomainMEM, 400*ckc.MHz); !errors.Is(err, ckc.ErrInvalidDomain) {
		t.Errorf("BusClockSetRate(mem) = %v, want ErrInvalidDomain", err)
	}
	if err := c.BusClockSetRate(ckc.DomainHSIO, 100*ckc.MHz); err != nil {
		t.Fatal(err)
	}
	if got, _ := c.BusClockGetRate(ckc.DomainHSIO); got != 100*ckc.MHz {
		t.Errorf("hsio bus = %d, want 100 MHz", got)
	}
}

func TestDitheredPLLKeepsSpreadSpectrum(t *testing.T) {
	bootSSE := ckc.EncodePLL(ckc.PLLParams{P: 1, M: 50, S: 1, Enabled: true, Dithered: true, SpreadSpectrum: true}) | ckc.PLLLock
	for _, tc := range []struct {
		name string
		boot uint32
		set  func(c *ckc.Controller) error
		want bool
	}{
		{"boot loader", bootSSE, nil, true},
		{"switched on", 0, func(c *ckc.Controller) error { return c.PLLSetSpreadSpectrum(PLLDithered, true) }, true},
		{"switched off", bootSSE, func(c *ckc.Controller) error { return c.PLLSetSpreadSpectrum(PLLDithered, false) }, false},
	} {
		sim := NewSimulator()
		sim.Poke(DPLLPMS, tc.boot)
		c := newController(t, sim)
		if tc.set != nil {
			if err := tc.set(c); err != nil {
				t.Fatalf("%s: %v", tc.name, err)
			}
		}
		if err := c.PLLSetRate(PLLDithered, 600*ckc.MHz); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got := ckc.DecodePLL(sim.Peek(DPLLPMS), true).SpreadSpectrum; got != tc.want {
			t.Errorf("%s: spread spectrum after PLLSetRate = %v, want %v", tc.name, got, tc.want)
		}
		if got, _ := c.PLLGetRate(PLLDithered); got != 600*ckc.MHz {
			t.Errorf("%s: dpll = %d, want 600 MHz", tc.name, got)
		}
	}

	c := newController(t, NewSimulator())
	if err := c.PLLSetSpreadSpectrum(0, true); !errors.Is(err, ckc.ErrInvalidDomain) {
		t.Errorf("spread spectrum on pll0 = %v, want ErrInvalidDomain", err)
	}
}

func TestDedicatedRateWhileSequencing(t *testing.T) {
	var c *ckc.Controller
	var during error
	called := false
	hook := func(d ckc.Domain, _ ckc.Direction, _ ckc.Step) {
		if d == ckc.DomainGPU && !called {
			called = true
			during = c.BusClockSetRate(ckc.DomainGPU, 300*ckc.MHz)
		}
	}
	c = newController(t, NewSimulator(), ckc.WithStepHook(hook))
	if err := c.PowerDomainSetPowered(ckc.DomainGPU, false); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(during, ckc.ErrBusy) {
		t.Errorf("BusClockSetRate during power-down = %v, want ErrBusy", during)
	}

	if err := c.BusClockSetRate(ckc.DomainGPU, 300*ckc.MHz); err != nil {
		t.Fatal(err)
	}
	if err := c.PowerDomainSetPowered(ckc.DomainGPU, true); err != nil {
		t.Fatal(err)
	}
	if got, _ := c.BusClockGetRate(ckc.DomainGPU); got != 300*ckc.MHz {
		t.Errorf("gpu = %d after power-up, want the rate set while off", got)
	}
}
