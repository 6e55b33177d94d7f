// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ckc

import (
	"fmt"

	"go.uber.org/multierr"
)

type PLLState struct {
	ID   int
	Rate uint64
}

type BusState struct {
	Rate     uint64
	Enabled  bool
	Powered  bool
	SubPwdn  uint32
	SubReset uint32

	// dropped is set when saving switched the domain off.
	dropped bool
}

type PeripheralState struct {
	Rate    uint64
	Enabled bool

	parked bool
}

// Snapshot is the clock state captured by SaveState. Only the most
// recent snapshot can be restored, and only once.
type Snapshot struct {
	ID          uint64
	Dropped     bool
	PMUIso      uint32
	PLLs        []PLLState
	Buses       [NumDomains]BusState
	Peripherals []PeripheralState
}

// SaveState records every PLL, bus and peripheral clock. With dropUnused,
// gated peripheral clocks are parked on XIN and enabled non-essential
// domains are switched off.
func (c *Controller) SaveState(dropUnused bool) (*Snapshot, error) {
	c.snapMu.Lock()
	if c.snap != nil {
		c.snapMu.Unlock()
		snapshotOps.WithLabelValues("save", "concurrent").Inc()
		return nil, ErrConcurrentSnapshot
	}
	c.snapSeq++
	s := &Snapshot{ID: c.snapSeq, Dropped: dropUnused}
	c.snap = s
	c.snapMu.Unlock()

	err := c.save(s, dropUnused)
	snapshotOps.WithLabelValues("save", result(err)).Inc()
	if err != nil {
		err = multierr.Append(err, c.undrop(s))
		c.snapMu.Lock()
		c.snap = nil
		c.snapMu.Unlock()
		return nil, fmt.Errorf("saving clock state: %w", err)
	}
	c.log.Infow("clock state saved", "snapshot", s.ID, "dropped", dropUnused)
	return s, nil
}

func (c *Controller) save(s *Snapshot, drop bool) error {
	// Isolation goes first: dropping domains below changes it.
	if r := c.soc.Regs.PMUIso; r != 0 {
		s.PMUIso = c.mem.MustRead32(r)
	}

	s.Peripherals = make([]PeripheralState, len(c.soc.Peripherals))
	for i := range c.soc.Peripherals {
		rate, _ := c.PeripheralGetRate(i)
		en, _ := c.IsPeripheralEnabled(i)
		s.Peripherals[i] = PeripheralState{Rate: rate, Enabled: en}
		if drop && !en {
			c.parkPeripheral(&c.soc.Peripherals[i])
			s.Peripherals[i].parked = true
		}
	}

	for i := range c.soc.Domains {
		d, dd := Domain(i), &c.soc.Domains[i]
		b := &s.Buses[d]
		b.Enabled, _ = c.IsBusClockEnabled(d)
		b.Powered, _ = c.IsDomainPowered(d)
		if dd.Kind == DedicatedPLL {
			b.Rate = c.power.target(d)
		} else {
			b.Rate, _ = c.BusClockGetRate(d)
		}
		if dd.SubPwdn != 0 {
			b.SubPwdn = c.mem.MustRead32(dd.SubPwdn)
		}
		if dd.SubReset != 0 {
			b.SubReset = c.mem.MustRead32(dd.SubReset)
		}
		if drop && b.Enabled && !dd.Essential {
			if err := c.BusClockDisable(d); err != nil {
				return err
			}
			b.dropped = true
		}
	}

	for i := range c.soc.PLLs {
		if i == c.soc.ReservedPLL {
			continue
		}
		rate, _ := c.PLLGetRate(i)
		s.PLLs = append(s.PLLs, PLLState{ID: i, Rate: rate})
	}
	return nil
}

// undrop switches back on what a failed save already dropped.
func (c *Controller) undrop(s *Snapshot) error {
	var errs error
	for i := range c.soc.Domains {
		d, b := Domain(i), &s.Buses[i]
		if !b.dropped {
			continue
		}
		errs = multierr.Append(errs, c.BusClockEnable(d))
		if !b.Powered {
			errs = multierr.Append(errs, c.PowerDomainSetPowered(d, false))
		}
	}
	for i, p := range s.Peripherals {
		if p.parked && p.Rate != 0 {
			errs = multierr.Append(errs, c.PeripheralSetRate(i, p.Rate))
		}
	}
	if errs != nil {
		c.log.Errorw("undoing a failed save", "snapshot", s.ID, "err", errs)
	}
	return errs
}

// RestoreState brings the clocks back to s. Every part is attempted; the
// errors of all failed parts are returned together. s is consumed even
// when restoring fails.
func (c *Controller) RestoreState(s *Snapshot) error {
	c.snapMu.Lock()
	if s == nil || c.snap != s {
		c.snapMu.Unlock()
		snapshotOps.WithLabelValues("restore", "stale").Inc()
		return ErrNoSnapshot
	}
	c.snap = nil
	c.snapMu.Unlock()

	var errs error
	for _, p := range s.PLLs {
		errs = multierr.Append(errs, c.PLLSetRate(p.ID, p.Rate))
	}

	for i := range c.soc.Domains {
		d, dd := Domain(i), &c.soc.Domains[i]
		b := s.Buses[d]
		if !b.Enabled {
			errs = multierr.Append(errs, c.BusClockDisable(d))
			continue
		}
		switch {
		case dd.Kind == DedicatedPLL:
			// Power-up brings the PLL back by itself; a domain that
			// stayed up needs it done here.
			wasUp := c.power.state(d) == PoweredUp
			c.power.setTarget(d, b.Rate)
			errs = multierr.Append(errs, c.BusClockEnable(d))
			if wasUp {
				_, err := c.restoreDedicated(d, dd, b.Rate)
				errs = multierr.Append(errs, err)
			}
		case d == DomainMEM:
			errs = multierr.Append(errs, c.BusClockEnable(d))
		default:
			errs = multierr.Append(errs, c.BusClockEnable(d))
			errs = multierr.Append(errs, c.BusClockSetRate(d, b.Rate))
		}
		if dd.PMUCapable && !b.Powered {
			// Clock running with the power switched off.
			errs = multierr.Append(errs, c.PowerDomainSetPowered(d, false))
		}
		if dd.SubReset != 0 {
			c.mem.MustWrite32(dd.SubReset, b.SubReset)
		}
		if dd.SubPwdn != 0 {
			c.mem.MustWrite32(dd.SubPwdn, b.SubPwdn)
		}
	}

	xin := c.src.Rate(SrcXIN)
	for i, p := range s.Peripherals {
		rate := p.Rate
		if rate == 0 {
			rate = xin
		}
		errs = multierr.Append(errs, c.PeripheralSetRate(i, rate))
		if p.Enabled {
			errs = multierr.Append(errs, c.PeripheralEnable(i))
		} else {
			errs = multierr.Append(errs, c.PeripheralDisable(i))
		}
	}

	if r := c.soc.Regs.PMUIso; r != 0 {
		c.mem.MustWrite32(r, s.PMUIso)
	}
	snapshotOps.WithLabelValues("restore", result(errs)).Inc()
	if errs != nil {
		c.log.Errorw("clock state restored with errors", "snapshot", s.ID, "err", errs)
		return fmt.Errorf("restoring clock state: %w", errs)
	}
	c.log.Infow("clock state restored", "snapshot", s.ID, "dropped", s.Dropped)
	return nil
}
