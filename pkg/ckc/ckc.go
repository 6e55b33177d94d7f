// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ckc drives the clock controller and power domains of the
// Telechips TCC802x family.
//
// A Controller owns the table of clock source rates, solves PLL, bus and
// peripheral clock settings against it, sequences power domains through
// their hardware handshakes and saves and restores the whole clock state
// around a suspend. Everything reaches the hardware through a
// mem.Provider, so it runs unchanged on /dev/mem, a simulator or a
// scripted fake.
package ckc

import (
	"fmt"
	"sync"

	"github.com/jmhodges/clock"
	"github.com/u-root/u-ckc/config"
	"github.com/u-root/u-ckc/pkg/hardware/mem"
	"github.com/u-root/u-ckc/pkg/logger"
	"go.uber.org/zap"
)

// Controller implements Ops for one SoC.
type Controller struct {
	soc   *SoC
	mem   mem.Provider
	board config.Board
	log   *zap.SugaredLogger
	clk   clock.Clock
	wcfg  config.Wait
	wait  waiter
	hook  StepHook

	src   SourceTable
	pllMu []sync.Mutex
	busMu [NumDomains]sync.Mutex
	// regMu serializes read-modify-write of CLKCTRL and PCLKCTRL.
	regMu sync.Mutex

	power *sequencer

	snapMu  sync.Mutex
	snap    *Snapshot
	snapSeq uint64
}

type Option func(*Controller)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Controller) { c.log = l }
}

// WithClock replaces the time source used to bound handshakes.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clk = clk }
}

func WithWait(w config.Wait) Option {
	return func(c *Controller) { c.wcfg = w }
}

// WithStepHook installs an observer called before every power sequencing
// step. The hook runs with the domain marked busy.
func WithStepHook(h StepHook) Option {
	return func(c *Controller) { c.hook = h }
}

// New builds a Controller for soc and reads the current PLL settings and
// power states from the hardware.
func New(soc *SoC, m mem.Provider, board config.Board, opts ...Option) (*Controller, error) {
	if err := soc.validate(); err != nil {
		return nil, err
	}
	if board.XinHz == 0 {
		return nil, fmt.Errorf("%s: board has no XIN rate", soc.Name)
	}
	c := &Controller{
		soc:   soc,
		mem:   m,
		board: board,
		clk:   clock.New(),
		wcfg:  config.DefaultConfig.Wait,
		pllMu: make([]sync.Mutex, len(soc.PLLs)),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = logger.LogContainer.GetSimpleLogger()
	}
	c.wait = waiter{mem: m, clk: c.clk, cfg: normalizeWait(c.wcfg)}

	c.src.setStatic(SrcXIN, board.XinHz)
	if board.XtinPresent {
		c.src.setStatic(SrcXTIN, board.XtinHz)
	}
	for i, hz := range board.ExternalClocks {
		c.src.setStatic(SrcExt0+Source(i), hz)
	}
	for i := range soc.PLLs {
		c.refreshPLL(&soc.PLLs[i])
	}
	c.power = newSequencer(c)
	c.log.Infow("clock controller ready", "soc", soc.Name, "xin", FormatHz(board.XinHz))
	return c, nil
}

func (c *Controller) SoC() *SoC {
	return c.soc
}

// Sources returns the current source rate table.
func (c *Controller) Sources() Rates {
	return c.src.Rates()
}

func (c *Controller) Close() {
	c.mem.Close()
}

func (c *Controller) pllDesc(id int) (*PLLDesc, error) {
	if id < 0 || id >= len(c.soc.PLLs) {
		return nil, fmt.Errorf("%w: pll %d", ErrInvalidDomain, id)
	}
	return &c.soc.PLLs[id], nil
}

func (c *Controller) domain(d Domain) (*DomainDesc, error) {
	if d < 0 || d >= NumDomains {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDomain, d)
	}
	return &c.soc.Domains[d], nil
}

func (c *Controller) peripheral(id int) (*PeripheralDesc, error) {
	if id < 0 || id >= len(c.soc.Peripherals) {
		return nil, fmt.Errorf("%w: peripheral %d", ErrInvalidDomain, id)
	}
	return &c.soc.Peripherals[id], nil
}

// PeripheralID looks a peripheral up by name.
func (c *Controller) PeripheralID(name string) (int, error) {
	for i, p := range c.soc.Peripherals {
		if p.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown peripheral %q", ErrInvalidDomain, name)
}

func (c *Controller) readPLL(d *PLLDesc) PLLParams {
	p := DecodePLL(c.mem.MustRead32(d.PMS), d.Dithered)
	ref := d.Ref
	if !d.Dithered {
		ref = p.Source
	}
	p.Rate = PLLRate(c.src.Rate(ref), p)
	return p
}

// refreshPLL reads a PLL and its post-divider back into the source table.
func (c *Controller) refreshPLL(d *PLLDesc) uint64 {
	rate := c.readPLL(d).Rate
	var divRate uint64
	if d.Div != 0 {
		if div, en := DecodePLLDiv(c.mem.MustRead32(d.Div)); en {
			divRate = rate / uint64(div+1)
		}
	}
	c.src.setPLL(d.Out, d.DivOut, rate, divRate)
	return rate
}

// writePLL switches the PLL off, loads the new parameters and, when p is
// enabled, switches it back on and waits for lock.
func (c *Controller) writePLL(d *PLLDesc, p PLLParams) error {
	cur := c.mem.MustRead32(d.PMS)
	c.mem.MustWrite32(d.PMS, cur&^(PLLEn|PLLLock))
	en := p.Enabled
	p.Enabled = false
	v := EncodePLL(p)
	c.mem.MustWrite32(d.PMS, v)
	if !en {
		return nil
	}
	c.mem.MustWrite32(d.PMS, v|PLLEn)
	return c.wait.set(d.PMS, PLLLock)
}

// programPLL solves and programs d for hz. When no parameters fit, the
// PLL is left disabled at its minimum settings and its rate reads zero.
func (c *Controller) programPLL(d *PLLDesc, hz uint64) (PLLParams, error) {
	p, err := SolvePLL(hz, c.src.Rate(d.Ref), d.Limits)
	solverResult("pll", err)
	// Spread spectrum is a board decision, a new rate keeps it.
	sse := d.Dithered && DecodePLL(c.mem.MustRead32(d.PMS), true).SpreadSpectrum
	if err != nil || !p.Enabled {
		off := disabledPLL(d.Limits)
		off.Source, off.Dithered, off.SpreadSpectrum = d.Ref, d.Dithered, sse
		c.writePLL(d, off)
		c.src.setPLL(d.Out, d.DivOut, 0, 0)
		if err != nil {
			c.log.Errorw("pll disabled", "pll", d.Name, "target", FormatHz(hz), "err", err)
			return PLLParams{}, fmt.Errorf("pll %s: %w", d.Name, err)
		}
		return off, nil
	}
	p.Source, p.Dithered, p.SpreadSpectrum = d.Ref, d.Dithered, sse
	if err := c.writePLL(d, p); err != nil {
		c.refreshPLL(d)
		c.log.Errorw("pll did not lock", "pll", d.Name, "err", err)
		return p, fmt.Errorf("pll %s: %w", d.Name, err)
	}
	c.refreshPLL(d)
	c.log.Debugw("pll programmed", "pll", d.Name, "target", FormatHz(hz), "params", p.String())
	return p, nil
}

func (c *Controller) PLLSetRate(id int, hz uint64) error {
	d, err := c.pllDesc(id)
	if err != nil {
		return err
	}
	c.pllMu[id].Lock()
	defer c.pllMu[id].Unlock()
	_, err = c.programPLL(d, hz)
	return err
}

func (c *Controller) PLLGetRate(id int) (uint64, error) {
	d, err := c.pllDesc(id)
	if err != nil {
		return 0, err
	}
	return c.readPLL(d).Rate, nil
}

func (c *Controller) IsPLLEnabled(id int) (bool, error) {
	d, err := c.pllDesc(id)
	if err != nil {
		return false, err
	}
	return c.mem.MustRead32(d.PMS)&PLLEn != 0, nil
}

// PLLSetSpreadSpectrum switches frequency dithering of a dithered PLL on
// or off without touching its rate.
func (c *Controller) PLLSetSpreadSpectrum(id int, on bool) error {
	d, err := c.pllDesc(id)
	if err != nil {
		return err
	}
	if !d.Dithered {
		return fmt.Errorf("%w: pll %s has no spread spectrum", ErrInvalidDomain, d.Name)
	}
	c.pllMu[id].Lock()
	defer c.pllMu[id].Unlock()
	if on {
		mem.SetBits(c.mem, d.PMS, dpllSSE)
	} else {
		mem.ClearBits(c.mem, d.PMS, dpllSSE)
	}
	return nil
}

// PLLSetDivider sets the PLLnDIV output to the PLL rate divided by div.
// Zero switches the divided output off.
func (c *Controller) PLLSetDivider(id int, div uint32) error {
	d, err := c.pllDesc(id)
	if err != nil {
		return err
	}
	if d.Div == 0 {
		return fmt.Errorf("%w: pll %s has no post-divider", ErrInvalidDomain, d.Name)
	}
	if div > pllDivMask+1 {
		return fmt.Errorf("%w: pll %s divider %d out of range", ErrNoSolution, d.Name, div)
	}
	c.pllMu[id].Lock()
	defer c.pllMu[id].Unlock()
	if div == 0 {
		c.mem.MustWrite32(d.Div, EncodePLLDiv(0, false))
	} else {
		c.mem.MustWrite32(d.Div, EncodePLLDiv(div-1, true))
	}
	c.refreshPLL(d)
	return nil
}

// writeClkCtrl writes a bus clock register and waits for the change
// request to be taken.
func (c *Controller) writeClkCtrl(a uintptr, v uint32) error {
	c.mem.MustWrite32(a, v)
	return c.wait.clear(a, ClkCtrlChgReq)
}

func (c *Controller) setClkCtrlEn(dd *DomainDesc, en bool) error {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	v := c.mem.MustRead32(dd.ClkCtrl) &^ ClkCtrlChgReq
	if en {
		v |= ClkCtrlEn
	} else {
		v &^= ClkCtrlEn
	}
	return c.writeClkCtrl(dd.ClkCtrl, v)
}

// BusClockEnable gates the bus clock on and powers the domain up when the
// domain has switchable power.
func (c *Controller) BusClockEnable(d Domain) error {
	dd, err := c.domain(d)
	if err != nil {
		return err
	}
	if err := c.setClkCtrlEn(dd, true); err != nil {
		return fmt.Errorf("enabling %s bus clock: %w", d, err)
	}
	if dd.PMUCapable {
		return c.power.up(d, dd)
	}
	return nil
}

// BusClockDisable powers the domain down when it has switchable power,
// then gates the bus clock off.
func (c *Controller) BusClockDisable(d Domain) error {
	dd, err := c.domain(d)
	if err != nil {
		return err
	}
	if dd.PMUCapable {
		if err := c.power.down(d, dd); err != nil {
			return err
		}
	}
	if err := c.setClkCtrlEn(dd, false); err != nil {
		return fmt.Errorf("disabling %s bus clock: %w", d, err)
	}
	return nil
}

func (c *Controller) BusClockSetRate(d Domain, hz uint64) error {
	dd, err := c.domain(d)
	if err != nil {
		return err
	}
	if d == DomainMEM {
		return fmt.Errorf("%w: the memory bus clock is fixed at runtime", ErrInvalidDomain)
	}
	if dd.Kind == DedicatedPLL {
		// Hold the domain so it cannot power down under the lock wait.
		release, err := c.power.hold(d)
		if err != nil {
			return err
		}
		defer release()
		c.busMu[d].Lock()
		defer c.busMu[d].Unlock()
		st := c.power.state(d)
		c.power.setTarget(d, hz)
		if st != PoweredUp {
			c.log.Debugw("domain is off, rate applied at power-up", "domain", d.String(), "rate", FormatHz(hz))
			return nil
		}
		_, err = c.programPLL(dd.PLL, hz)
		return err
	}
	sel, err := SolveBus(hz, c.src.Rates(), c.soc.BusExcluded)
	solverResult("bus", err)
	if err != nil {
		return fmt.Errorf("%s bus clock: %w", d, err)
	}
	c.regMu.Lock()
	defer c.regMu.Unlock()
	v := EncodeClkCtrl(c.mem.MustRead32(dd.ClkCtrl), sel.Source, sel.Div)
	if err := c.writeClkCtrl(dd.ClkCtrl, v); err != nil {
		return fmt.Errorf("%s bus clock: %w", d, err)
	}
	c.log.Debugw("bus clock set", "domain", d.String(), "target", FormatHz(hz), "selection", sel.String())
	return nil
}

func (c *Controller) BusClockGetRate(d Domain) (uint64, error) {
	dd, err := c.domain(d)
	if err != nil {
		return 0, err
	}
	if dd.Kind == DedicatedPLL {
		return c.readPLL(dd.PLL).Rate, nil
	}
	src, div, _ := DecodeClkCtrl(c.mem.MustRead32(dd.ClkCtrl))
	if src >= NumSources {
		return 0, nil
	}
	return c.src.Rate(src) / uint64(div), nil
}

func (c *Controller) IsBusClockEnabled(d Domain) (bool, error) {
	dd, err := c.domain(d)
	if err != nil {
		return false, err
	}
	return c.mem.MustRead32(dd.ClkCtrl)&ClkCtrlEn != 0, nil
}

func (c *Controller) PeripheralSetRate(id int, hz uint64) error {
	pd, err := c.peripheral(id)
	if err != nil {
		return err
	}
	sel, err := SolvePeripheral(hz, pd.Class, c.src.Rates(), c.soc.PeriReserved)
	solverResult("peripheral", err)
	if err != nil {
		return fmt.Errorf("%s clock: %w", pd.Name, err)
	}
	c.regMu.Lock()
	defer c.regMu.Unlock()
	// Switch with the clock gated, then put the gate back.
	_, en := DecodePclk(c.mem.MustRead32(pd.Reg))
	c.mem.MustWrite32(pd.Reg, EncodePclk(sel, false))
	if en {
		c.mem.MustWrite32(pd.Reg, EncodePclk(sel, true))
	}
	c.log.Debugw("peripheral clock set", "peripheral", pd.Name, "target", FormatHz(hz), "selection", sel.String())
	return nil
}

func (c *Controller) PeripheralGetRate(id int) (uint64, error) {
	pd, err := c.peripheral(id)
	if err != nil {
		return 0, err
	}
	sel, _ := DecodePclk(c.mem.MustRead32(pd.Reg))
	return sel.rateOf(c.src.Rates()), nil
}

func (c *Controller) setPclkEn(id int, en bool) error {
	pd, err := c.peripheral(id)
	if err != nil {
		return err
	}
	c.regMu.Lock()
	defer c.regMu.Unlock()
	if en {
		mem.SetBits(c.mem, pd.Reg, PclkEn)
	} else {
		mem.ClearBits(c.mem, pd.Reg, PclkEn)
	}
	return nil
}

func (c *Controller) PeripheralEnable(id int) error {
	return c.setPclkEn(id, true)
}

func (c *Controller) PeripheralDisable(id int) error {
	return c.setPclkEn(id, false)
}

func (c *Controller) IsPeripheralEnabled(id int) (bool, error) {
	pd, err := c.peripheral(id)
	if err != nil {
		return false, err
	}
	return c.mem.MustRead32(pd.Reg)&PclkEn != 0, nil
}

// parkPeripheral moves a gated peripheral clock to XIN at the smallest
// divider so it holds no PLL.
func (c *Controller) parkPeripheral(pd *PeripheralDesc) {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	c.mem.MustWrite32(pd.Reg, EncodePclk(PeripheralSelection{Mode: ModeDivider, Source: SrcXIN}, false))
}
