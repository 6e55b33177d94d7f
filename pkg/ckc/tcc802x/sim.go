// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tcc802x

import (
	"sync"

	"github.com/u-root/u-ckc/pkg/ckc"
	"github.com/u-root/u-ckc/pkg/hardware/mem"
)

// Simulator is an in-memory TCC802x that answers the handshakes the
// clock engine waits on: PLLs lock, clock change requests complete, bus
// and bridge acks follow their requests and the PMU reports power state.
// Switching off a graphics domain loses its PLL setting.
//
// Stall freezes chosen status bits so timeouts can be provoked.
type Simulator struct {
	*mem.RegFile

	m       sync.Mutex
	stalled map[uintptr]uint32
}

// Boot-time PLL settings, all from a 24 MHz XIN.
var bootPLLs = [NumPLLs]ckc.PLLParams{
	{P: 2, M: 200, S: 1, Enabled: true}, // 1.2 GHz
	{P: 3, M: 250, S: 1, Enabled: true}, // 1 GHz
	{P: 3, M: 400, S: 2, Enabled: true}, // 800 MHz
	{P: 2, M: 200, S: 2, Enabled: true}, // 600 MHz
	{P: 3, M: 200, S: 0, Enabled: true}, // 1.6 GHz
	{P: 1, M: 16, S: 0, Dithered: true},
}

// NewSimulator returns a simulator in the state the boot loader leaves:
// PLLs running, every bus clocked and powered, peripheral clocks gated
// on XIN.
func NewSimulator() *Simulator {
	s := &Simulator{
		RegFile: mem.NewRegFile(),
		stalled: make(map[uintptr]uint32),
	}
	for i, p := range bootPLLs {
		a := PLLPMS(i)
		if p.Dithered {
			a = DPLLPMS
		}
		s.OnWrite(a, s.pllHook(a))
		v := ckc.EncodePLL(p)
		if p.Enabled {
			v |= ckc.PLLLock
		}
		s.Poke(a, v)
	}
	s.Poke(PLLDiv(0), ckc.EncodePLLDiv(1, true)) // 600 MHz
	s.Poke(PLLDiv(1), ckc.EncodePLLDiv(1, true)) // 500 MHz
	s.Poke(PLLDiv(2), ckc.EncodePLLDiv(3, true)) // 200 MHz

	for _, g := range []struct {
		a uintptr
		p ckc.PLLParams
	}{
		{GPUPLL, ckc.PLLParams{P: 3, M: 400, S: 3, Enabled: true}}, // 400 MHz
		{G2DPLL, ckc.PLLParams{P: 2, M: 200, S: 3, Enabled: true}}, // 300 MHz
	} {
		s.OnWrite(g.a, s.pllHook(g.a))
		s.Poke(g.a, ckc.EncodePLL(g.p)|ckc.PLLLock)
	}

	for d := ckc.Domain(0); d < ckc.NumDomains; d++ {
		a := ClkCtrl(d)
		v := ckc.EncodeClkCtrl(0, ckc.SrcPLL1, 4) | ckc.ClkCtrlEn // 250 MHz
		switch d {
		case ckc.DomainCPU0, ckc.DomainCPU1:
			v = ckc.EncodeClkCtrl(0, ckc.SrcPLL0, 1) | ckc.ClkCtrlEn
		case ckc.DomainMEM:
			v = ckc.EncodeClkCtrl(0, ckc.SrcPLL4, 2) | ckc.ClkCtrlEn
		case ckc.DomainSMU:
			v = ckc.EncodeClkCtrl(0, ckc.SrcXIN, 1) | ckc.ClkCtrlEn
		}
		s.OnWrite(a, s.clkCtrlHook(a))
		s.Poke(a, v)
	}
	for i := range peripherals {
		s.Poke(PclkCtrl(i), ckc.EncodePclk(ckc.PeripheralSelection{Source: ckc.SrcXIN}, false))
	}

	all := uint32(bitGPU | bitG2D | bitDDI | bitVBUS)
	s.Poke(SWReset, 1<<uint(ckc.NumDomains)-1)
	s.Poke(MBusClkMask, all)
	s.Poke(MBusReset, all)
	s.Poke(MBusStatus, all)
	s.Poke(X2XAck, all)
	s.Poke(PMUStatus, bitDDI|bitVBUS)
	s.Poke(PMUPwrSw, swGPU0|swGPU1|swG2D0|swG2D1)
	for _, base := range []uintptr{DDIBusBase, VBUSBase, IOBusBase, HSIOBusBase} {
		s.Poke(base+0x04, 0xffffffff)
	}

	s.OnWrite(MBusClkMask, s.mbusHook)
	s.OnWrite(X2XReq, s.x2xHook)
	s.OnWrite(PMUPwrDn, s.pmuHook(false))
	s.OnWrite(PMUPwrUp, s.pmuHook(true))
	s.OnWrite(PMUPwrSw, s.pwrSwHook)
	return s
}

// Stall stops the simulator from changing the bits in mask of register
// a. Stalling a PLL register's LOCK bit keeps the PLL unlocked.
func (s *Simulator) Stall(a uintptr, mask uint32) {
	s.m.Lock()
	s.stalled[a] |= mask
	s.m.Unlock()
}

// Unstall undoes every Stall.
func (s *Simulator) Unstall() {
	s.m.Lock()
	s.stalled = make(map[uintptr]uint32)
	s.m.Unlock()
}

// drive moves the bits in mask of register a to the bits of v, except
// those that are stalled.
func (s *Simulator) drive(a uintptr, mask, v uint32) {
	s.m.Lock()
	mask &^= s.stalled[a]
	s.m.Unlock()
	old := s.Peek(a)
	s.Poke(a, old&^mask|v&mask)
}

func (s *Simulator) isStalled(a uintptr, bits uint32) bool {
	s.m.Lock()
	defer s.m.Unlock()
	return s.stalled[a]&bits != 0
}

func (s *Simulator) pllHook(a uintptr) mem.WriteHook {
	return func(_ *mem.RegFile, old, v uint32) uint32 {
		v &^= ckc.PLLLock
		if v&ckc.PLLEn != 0 && !s.isStalled(a, ckc.PLLLock) {
			v |= ckc.PLLLock
		}
		return v
	}
}

func (s *Simulator) clkCtrlHook(a uintptr) mem.WriteHook {
	return func(_ *mem.RegFile, old, v uint32) uint32 {
		if s.isStalled(a, ckc.ClkCtrlChgReq) {
			return v | ckc.ClkCtrlChgReq
		}
		return v &^ ckc.ClkCtrlChgReq
	}
}

// A bus stays busy while its clock runs.
func (s *Simulator) mbusHook(_ *mem.RegFile, _, v uint32) uint32 {
	s.drive(MBusStatus, ^uint32(0), v)
	return v
}

// The bridge acks by dropping its ack bit while a request is up.
func (s *Simulator) x2xHook(_ *mem.RegFile, _, v uint32) uint32 {
	s.drive(X2XAck, ^uint32(0), ^v)
	return v
}

func (s *Simulator) pmuHook(up bool) mem.WriteHook {
	return func(_ *mem.RegFile, _, v uint32) uint32 {
		if up {
			s.drive(PMUStatus, v, v)
		} else {
			s.drive(PMUStatus, v, 0)
		}
		return 0
	}
}

// Opening both switches of a graphics domain cuts its PLL.
func (s *Simulator) pwrSwHook(_ *mem.RegFile, _, v uint32) uint32 {
	if v&(swGPU0|swGPU1) == 0 {
		s.Poke(GPUPLL, 0)
	}
	if v&(swG2D0|swG2D1) == 0 {
		s.Poke(G2DPLL, 0)
	}
	return v
}
