// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ckc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/u-root/u-ckc/pkg/hardware/mem"
	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"
)

type PowerState int

const (
	PoweredDown PowerState = iota
	PoweredUp
	// Transitioning is held while a sequence runs, and for good once a
	// sequence timed out until the domain is recovered.
	Transitioning
)

func (s PowerState) String() string {
	switch s {
	case PoweredDown:
		return "down"
	case PoweredUp:
		return "up"
	}
	return "transitioning"
}

// Step is one stage of a power sequence.
type Step int

const (
	StepBusClock Step = iota
	StepBusReset
	StepSoftReset
	StepX2X
	StepPMU
	StepIsolation
	// StepPLL restores a dedicated PLL after power-up.
	StepPLL
)

var stepNames = [...]string{"busclk", "busreset", "swreset", "x2x", "pmu", "isolation", "pll"}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return stepNames[s]
}

type Direction int

const (
	Down Direction = iota
	Up
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// StepHook observes power sequencing.
type StepHook func(d Domain, dir Direction, s Step)

// PowerDownSteps lists the steps taking dd down, in order. Power-up runs
// them backwards. Domains without switchable power have none.
func PowerDownSteps(dd *DomainDesc) []Step {
	if !dd.PMUCapable {
		return nil
	}
	var steps []Step
	if dd.MBusClk != 0 {
		steps = append(steps, StepBusClock)
	}
	if dd.MBusRst != 0 {
		steps = append(steps, StepBusReset)
	}
	if dd.SWReset != 0 {
		steps = append(steps, StepSoftReset)
	}
	if dd.X2X != 0 {
		steps = append(steps, StepX2X)
	}
	if dd.Manual {
		steps = append(steps, StepIsolation)
	} else if dd.PMU != 0 {
		steps = append(steps, StepPMU)
	}
	return steps
}

type domainPower struct {
	// sem is held for the length of a sequence.
	sem *semaphore.Weighted

	m     sync.Mutex
	state PowerState
	stuck bool
	// rate is what a dedicated PLL is brought back to on power-up.
	rate uint64
}

type sequencer struct {
	c    *Controller
	doms [NumDomains]domainPower
}

func newSequencer(c *Controller) *sequencer {
	s := &sequencer{c: c}
	r := &c.soc.Regs
	for i := range s.doms {
		p := &s.doms[i]
		dd := &c.soc.Domains[i]
		p.sem = semaphore.NewWeighted(1)
		p.state = PoweredUp
		if !dd.PMUCapable {
			continue
		}
		var on bool
		if dd.Manual {
			sw := dd.PwrSw[0] | dd.PwrSw[1]
			on = c.mem.MustRead32(r.PMUPwrSw)&sw == sw && c.mem.MustRead32(r.PMUIso)&dd.Iso == 0
		} else {
			on = c.mem.MustRead32(r.PMUStatus)&dd.PMU != 0
		}
		if !on {
			p.state = PoweredDown
		}
		if on && dd.Kind == DedicatedPLL {
			p.rate = c.readPLL(dd.PLL).Rate
		}
		c.log.Debugw("power domain state", "domain", Domain(i).String(), "state", p.state.String())
	}
	return s
}

func (s *sequencer) state(d Domain) PowerState {
	p := &s.doms[d]
	p.m.Lock()
	defer p.m.Unlock()
	return p.state
}

func (s *sequencer) stuck(d Domain) bool {
	p := &s.doms[d]
	p.m.Lock()
	defer p.m.Unlock()
	return p.stuck
}

func (s *sequencer) target(d Domain) uint64 {
	p := &s.doms[d]
	p.m.Lock()
	defer p.m.Unlock()
	return p.rate
}

func (s *sequencer) setTarget(d Domain, hz uint64) {
	p := &s.doms[d]
	p.m.Lock()
	p.rate = hz
	p.m.Unlock()
}

// begin claims d for a sequence towards want. It reports false when the
// domain is already there.
func (s *sequencer) begin(d Domain, want PowerState) (bool, error) {
	p := &s.doms[d]
	if !p.sem.TryAcquire(1) {
		return false, fmt.Errorf("%s: %w", d, ErrBusy)
	}
	p.m.Lock()
	defer p.m.Unlock()
	switch {
	case p.stuck:
		p.sem.Release(1)
		return false, fmt.Errorf("%s: %w", d, ErrStuck)
	case p.state == want:
		p.sem.Release(1)
		return false, nil
	}
	p.state = Transitioning
	return true, nil
}

// hold claims d without sequencing it. The returned func releases it.
func (s *sequencer) hold(d Domain) (func(), error) {
	p := &s.doms[d]
	if !p.sem.TryAcquire(1) {
		return nil, fmt.Errorf("%s: %w", d, ErrBusy)
	}
	return func() { p.sem.Release(1) }, nil
}

// end records the outcome of a sequence and releases the domain. A
// handshake timeout leaves it stuck.
func (s *sequencer) end(d Domain, dir Direction, want PowerState, err error) {
	p := &s.doms[d]
	p.m.Lock()
	if err != nil && errors.Is(err, ErrTimeout) {
		p.stuck = true
		stuckDomains.WithLabelValues(d.String()).Set(1)
		s.c.log.Errorw("power domain stuck", "domain", d.String(), "direction", dir.String(), "err", err)
	} else {
		p.state = want
	}
	p.m.Unlock()
	powerTransitions.WithLabelValues(d.String(), dir.String(), result(err)).Inc()
	p.sem.Release(1)
}

func (s *sequencer) down(d Domain, dd *DomainDesc) error {
	if !dd.PMUCapable {
		return nil
	}
	ok, err := s.begin(d, PoweredDown)
	if !ok {
		return err
	}
	err = s.run(d, dd, Down, false)
	s.end(d, Down, PoweredDown, err)
	return err
}

func (s *sequencer) up(d Domain, dd *DomainDesc) error {
	if !dd.PMUCapable {
		return nil
	}
	ok, err := s.begin(d, PoweredUp)
	if !ok {
		return err
	}
	err = s.run(d, dd, Up, false)
	if err == nil && dd.Kind == DedicatedPLL {
		s.notify(d, Up, StepPLL)
		_, err = s.c.restoreDedicated(d, dd, s.target(d))
	}
	s.end(d, Up, PoweredUp, err)
	return err
}

// forceDown powers a stuck domain down, running every step even when an
// earlier one fails.
func (s *sequencer) forceDown(d Domain, dd *DomainDesc) error {
	if !dd.PMUCapable {
		return nil
	}
	p := &s.doms[d]
	if !p.sem.TryAcquire(1) {
		return fmt.Errorf("%s: %w", d, ErrBusy)
	}
	defer p.sem.Release(1)
	if !s.stuck(d) {
		return nil
	}
	s.c.log.Warnw("recovering power domain", "domain", d.String())
	if err := s.run(d, dd, Down, true); err != nil {
		powerTransitions.WithLabelValues(d.String(), "recover", "error").Inc()
		return fmt.Errorf("recovering %s: %w", d, err)
	}
	p.m.Lock()
	p.stuck = false
	p.state = PoweredDown
	p.m.Unlock()
	stuckDomains.WithLabelValues(d.String()).Set(0)
	powerTransitions.WithLabelValues(d.String(), "recover", "ok").Inc()
	return nil
}

func (s *sequencer) notify(d Domain, dir Direction, st Step) {
	if s.c.hook != nil {
		s.c.hook(d, dir, st)
	}
}

func (s *sequencer) run(d Domain, dd *DomainDesc, dir Direction, keepGoing bool) error {
	steps := PowerDownSteps(dd)
	if dir == Up {
		for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
			steps[i], steps[j] = steps[j], steps[i]
		}
	}
	var errs error
	for _, st := range steps {
		s.notify(d, dir, st)
		if err := s.exec(dd, st, dir); err != nil {
			handshakeTimeouts.WithLabelValues(d.String(), st.String()).Inc()
			err = fmt.Errorf("%s %s, step %s: %w", d, dir, st, err)
			if !keepGoing {
				return err
			}
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (s *sequencer) exec(dd *DomainDesc, st Step, dir Direction) error {
	r := &s.c.soc.Regs
	m := s.c.mem
	w := &s.c.wait
	down := dir == Down
	switch st {
	case StepBusClock:
		if !down {
			mem.SetBits(m, r.MBusClkMask, dd.MBusClk)
			return nil
		}
		mem.ClearBits(m, r.MBusClkMask, dd.MBusClk)
		if dd.MBusBusy != 0 {
			return w.clear(r.MBusStatus, dd.MBusBusy)
		}
	case StepBusReset:
		if down {
			mem.ClearBits(m, r.MBusReset, dd.MBusRst)
		} else {
			mem.SetBits(m, r.MBusReset, dd.MBusRst)
		}
	case StepSoftReset:
		if down {
			mem.ClearBits(m, r.SWReset, dd.SWReset)
		} else {
			mem.SetBits(m, r.SWReset, dd.SWReset)
		}
	case StepX2X:
		if down {
			mem.SetBits(m, r.X2XReq, dd.X2X)
			return w.clear(r.X2XAck, dd.X2X)
		}
		mem.ClearBits(m, r.X2XReq, dd.X2X)
		return w.set(r.X2XAck, dd.X2X)
	case StepPMU:
		if down {
			m.MustWrite32(r.PMUPwrDn, dd.PMU)
			return w.clear(r.PMUStatus, dd.PMU)
		}
		m.MustWrite32(r.PMUPwrUp, dd.PMU)
		return w.set(r.PMUStatus, dd.PMU)
	case StepIsolation:
		if down {
			mem.SetBits(m, r.PMUIso, dd.Iso)
			mem.ClearBits(m, r.PMUPwrSw, dd.PwrSw[1])
			mem.ClearBits(m, r.PMUPwrSw, dd.PwrSw[0])
		} else {
			mem.SetBits(m, r.PMUPwrSw, dd.PwrSw[0])
			mem.SetBits(m, r.PMUPwrSw, dd.PwrSw[1])
			mem.ClearBits(m, r.PMUIso, dd.Iso)
		}
	}
	return nil
}

// restoreDedicated brings a domain's own PLL back to rate. The solver
// may land just below a rate the hardware cannot hit exactly; one retry
// aims a hertz higher so the PLL ends at or above the old rate.
func (c *Controller) restoreDedicated(d Domain, dd *DomainDesc, rate uint64) (bool, error) {
	c.busMu[d].Lock()
	defer c.busMu[d].Unlock()
	p, err := c.programPLL(dd.PLL, rate)
	if err != nil {
		return false, err
	}
	if p.Rate >= rate {
		return false, nil
	}
	pllRelockRetries.WithLabelValues(d.String()).Inc()
	c.log.Debugw("dedicated pll undershot, retrying", "domain", d.String(), "want", FormatHz(rate), "got", FormatHz(p.Rate))
	_, err = c.programPLL(dd.PLL, rate+1)
	return true, err
}

// PowerDomainSetPowered sequences d up or down. Domains without
// switchable power accept either request and do nothing.
func (c *Controller) PowerDomainSetPowered(d Domain, on bool) error {
	dd, err := c.domain(d)
	if err != nil {
		return err
	}
	if on {
		return c.power.up(d, dd)
	}
	return c.power.down(d, dd)
}

// IsDomainPowered reports the sequencer's view of d. Domains without
// switchable power are powered while their bus clock runs.
func (c *Controller) IsDomainPowered(d Domain) (bool, error) {
	dd, err := c.domain(d)
	if err != nil {
		return false, err
	}
	if !dd.PMUCapable {
		return c.IsBusClockEnabled(d)
	}
	return c.power.state(d) == PoweredUp, nil
}

func (c *Controller) DomainState(d Domain) (PowerState, error) {
	if _, err := c.domain(d); err != nil {
		return 0, err
	}
	return c.power.state(d), nil
}

// DomainStuck reports whether d needs RecoverDomain.
func (c *Controller) DomainStuck(d Domain) (bool, error) {
	if _, err := c.domain(d); err != nil {
		return false, err
	}
	return c.power.stuck(d), nil
}

// RecoverDomain forces a stuck domain down. It is a no-op for a domain
// that is not stuck.
func (c *Controller) RecoverDomain(d Domain) error {
	dd, err := c.domain(d)
	if err != nil {
		return err
	}
	return c.power.forceDown(d, dd)
}
