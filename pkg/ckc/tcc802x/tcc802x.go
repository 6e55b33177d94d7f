// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tcc802x describes the clock controller, memory bus and PMU of
// the Telechips TCC802x.
package tcc802x

import (
	"fmt"

	"github.com/u-root/u-ckc/config"
	"github.com/u-root/u-ckc/pkg/ckc"
	"github.com/u-root/u-ckc/pkg/hardware/mem"
)

const (
	CKCBase  = 0x14000000
	MBusBase = 0x13500000
	PMUBase  = 0x14400000

	GPUBusBase  = 0x10000000
	G2DBusBase  = 0x10010000
	DDIBusBase  = 0x12380000
	IOBusBase   = 0x16051000
	VBUSBase    = 0x15100000
	HSIOBusBase = 0x11da0000
)

// NumPLLs counts PLL0..PLL4 and the dithered PLL, which has id 5.
const (
	NumPLLs     = 6
	PLLDithered = 5
	// PLLReserved feeds the memory bus and is never touched by
	// suspend or by peripheral clocks.
	PLLReserved = 4
)

func ClkCtrl(d ckc.Domain) uintptr { return CKCBase + 0x000 + uintptr(d)*4 }
func PLLPMS(n int) uintptr         { return CKCBase + 0x040 + uintptr(n)*4 }
func PLLDiv(n int) uintptr         { return CKCBase + 0x060 + uintptr(n)*4 }
func PclkCtrl(n int) uintptr       { return CKCBase + 0x0d0 + uintptr(n)*4 }

const (
	DPLLPMS = CKCBase + 0x080
	SWReset = CKCBase + 0x0c0

	MBusClkMask = MBusBase + 0x00
	MBusReset   = MBusBase + 0x04
	MBusStatus  = MBusBase + 0x08

	PMUPwrDn  = PMUBase + 0x00
	PMUPwrUp  = PMUBase + 0x04
	PMUStatus = PMUBase + 0x08
	PMUIso    = PMUBase + 0x0c
	PMUPwrSw  = PMUBase + 0x10
	X2XReq    = PMUBase + 0x14
	X2XAck    = PMUBase + 0x18

	// The graphics domains keep their PLL inside the domain.
	GPUPLL = GPUBusBase + 0x10
	G2DPLL = G2DBusBase + 0x10
)

// Memory-bus, X2X and isolation bit of each switchable domain.
const (
	bitGPU = 1 << iota
	bitG2D
	bitDDI
	bitVBUS
)

// PMU power switch bits of the manually sequenced domains.
const (
	swGPU0 = 1 << iota
	swGPU1
	swG2D0
	swG2D1
)

var peripherals = []ckc.PeripheralDesc{
	{Name: "tct", Class: ckc.ClassDefault},
	{Name: "tsensor", Class: ckc.ClassDefault},
	{Name: "lcd0", Class: ckc.ClassDefault},
	{Name: "lcd1", Class: ckc.ClassDefault},
	{Name: "lvds", Class: ckc.ClassDefault},
	{Name: "sdmmc0", Class: ckc.ClassSDMMC},
	{Name: "sdmmc1", Class: ckc.ClassSDMMC},
	{Name: "sdmmc2", Class: ckc.ClassSDMMC},
	{Name: "i2s0", Class: ckc.ClassAudio},
	{Name: "i2s1", Class: ckc.ClassAudio},
	{Name: "spdif", Class: ckc.ClassAudio},
	{Name: "uart0", Class: ckc.ClassDefault},
	{Name: "uart1", Class: ckc.ClassDefault},
	{Name: "uart2", Class: ckc.ClassDefault},
	{Name: "gpsb0", Class: ckc.ClassDefault},
	{Name: "gpsb1", Class: ckc.ClassDefault},
	{Name: "i2c0", Class: ckc.ClassDefault},
	{Name: "i2c1", Class: ckc.ClassDefault},
	{Name: "pwm", Class: ckc.ClassDefault},
	{Name: "can0", Class: ckc.ClassDefault},
	{Name: "usb30", Class: ckc.ClassDefault},
	{Name: "gmac", Class: ckc.ClassDefault},
}

// NewSoC returns a fresh TCC802x description. Callers may adjust it
// before handing it to ckc.New.
func NewSoC() *ckc.SoC {
	s := &ckc.SoC{
		Name:        "tcc802x",
		ReservedPLL: PLLReserved,
		Regs: ckc.Regs{
			MBusClkMask: MBusClkMask,
			MBusReset:   MBusReset,
			MBusStatus:  MBusStatus,
			SWReset:     SWReset,
			X2XReq:      X2XReq,
			X2XAck:      X2XAck,
			PMUPwrDn:    PMUPwrDn,
			PMUPwrUp:    PMUPwrUp,
			PMUStatus:   PMUStatus,
			PMUIso:      PMUIso,
			PMUPwrSw:    PMUPwrSw,
		},
		// EXT0 and EXT1 are routed to the audio codec only.
		BusExcluded:  ckc.NewSourceSet(ckc.SrcExt0, ckc.SrcExt1),
		PeriReserved: ckc.NewSourceSet(ckc.SrcPLL4, ckc.SrcPLL4Div),
	}
	for i := 0; i < 5; i++ {
		s.PLLs = append(s.PLLs, ckc.PLLDesc{
			Name:   fmt.Sprintf("pll%d", i),
			PMS:    PLLPMS(i),
			Div:    PLLDiv(i),
			Ref:    ckc.SrcXIN,
			Out:    ckc.SrcPLL0 + ckc.Source(i),
			DivOut: ckc.SrcPLL0Div + ckc.Source(i),
			Limits: ckc.PLLLimitsTCC,
		})
	}
	s.PLLs = append(s.PLLs, ckc.PLLDesc{
		Name:     "dpll",
		PMS:      DPLLPMS,
		Ref:      ckc.SrcXIN,
		Out:      ckc.SrcDPLL,
		DivOut:   ckc.NoSource,
		Dithered: true,
		Limits:   ckc.DitheredLimits,
	})

	s.Domains = make([]ckc.DomainDesc, ckc.NumDomains)
	for d := ckc.Domain(0); d < ckc.NumDomains; d++ {
		s.Domains[d] = ckc.DomainDesc{
			Name:    d.String(),
			ClkCtrl: ClkCtrl(d),
			SWReset: 1 << uint(d),
		}
	}
	graphics := func(d ckc.Domain, bit uint32, sw [2]uint32, pll uintptr) {
		dd := &s.Domains[d]
		dd.Kind = ckc.DedicatedPLL
		dd.PLL = &ckc.PLLDesc{
			Name:   d.String(),
			PMS:    pll,
			Ref:    ckc.SrcXIN,
			Out:    ckc.NoSource,
			DivOut: ckc.NoSource,
			Limits: ckc.PLLLimitsTCC,
		}
		dd.PMUCapable = true
		dd.Manual = true
		dd.MBusClk, dd.MBusBusy, dd.MBusRst = bit, bit, bit
		dd.X2X = bit
		dd.Iso = bit
		dd.PwrSw = sw
	}
	graphics(ckc.DomainGPU, bitGPU, [2]uint32{swGPU0, swGPU1}, GPUPLL)
	graphics(ckc.DomainG2D, bitG2D, [2]uint32{swG2D0, swG2D1}, G2DPLL)

	pmu := func(d ckc.Domain, bit uint32, base uintptr) {
		dd := &s.Domains[d]
		dd.PMUCapable = true
		dd.MBusClk, dd.MBusBusy, dd.MBusRst = bit, bit, bit
		dd.X2X = bit
		dd.PMU = bit
		dd.SubPwdn, dd.SubReset = base+0x00, base+0x04
	}
	pmu(ckc.DomainDDI, bitDDI, DDIBusBase)
	pmu(ckc.DomainVBUS, bitVBUS, VBUSBase)

	s.Domains[ckc.DomainIO].SubPwdn = IOBusBase + 0x00
	s.Domains[ckc.DomainIO].SubReset = IOBusBase + 0x04
	s.Domains[ckc.DomainHSIO].SubPwdn = HSIOBusBase + 0x00
	s.Domains[ckc.DomainHSIO].SubReset = HSIOBusBase + 0x04

	for _, d := range []ckc.Domain{ckc.DomainCPU0, ckc.DomainCPU1, ckc.DomainMEM, ckc.DomainIO, ckc.DomainSMU, ckc.DomainCMBUS} {
		s.Domains[d].Essential = true
	}

	s.Peripherals = make([]ckc.PeripheralDesc, len(peripherals))
	for i, p := range peripherals {
		p.Reg = PclkCtrl(i)
		s.Peripherals[i] = p
	}
	return s
}

// New opens a controller for a TCC802x board.
func New(m mem.Provider, c *config.Config, opts ...ckc.Option) (*ckc.Controller, error) {
	opts = append([]ckc.Option{ckc.WithWait(c.Wait)}, opts...)
	return ckc.New(NewSoC(), m, c.Board, opts...)
}
