// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ckc

import (
	"fmt"
)

// Domain identifies a bus clock and the power domain behind it. The two
// share ids.
type Domain int

const (
	DomainGPU Domain = iota
	DomainG2D
	DomainDDI
	DomainVBUS
	DomainCPU0
	DomainCPU1
	DomainMEM
	DomainIO
	DomainHSIO
	DomainCMBUS
	DomainCODA
	DomainSMU
	NumDomains
)

var domainNames = [NumDomains]string{
	"gpu", "g2d", "ddi", "vbus", "cpu0", "cpu1", "mem", "io", "hsio", "cmbus", "coda", "smu",
}

func (d Domain) String() string {
	if d < 0 || d >= NumDomains {
		return fmt.Sprintf("Domain(%d)", int(d))
	}
	return domainNames[d]
}

// ParseDomain is the inverse of Domain.String.
func ParseDomain(s string) (Domain, error) {
	for i, n := range domainNames {
		if n == s {
			return Domain(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown domain %q", ErrInvalidDomain, s)
}

// BusClockKind says how a domain's bus clock rate is produced.
type BusClockKind int

const (
	// GenericDivider domains divide a shared source in CLKCTRL.
	GenericDivider BusClockKind = iota
	// DedicatedPLL domains own a PLL that is lost when the domain is
	// powered off.
	DedicatedPLL
)

// PLLDesc describes one PLL.
type PLLDesc struct {
	Name string
	// PMS is the parameter register, Div the post-divider register or
	// zero when the PLL has none.
	PMS, Div uintptr
	Ref      Source
	// Out and DivOut are the source ids fed by the PLL, NoSource when
	// the output is not selectable.
	Out, DivOut Source
	Dithered    bool
	Limits      PLLLimits
}

// DomainDesc describes a bus clock and how its power domain is
// sequenced. A zero mask skips the corresponding step.
type DomainDesc struct {
	Name    string
	ClkCtrl uintptr
	Kind    BusClockKind
	// PLL is set for DedicatedPLL domains.
	PLL *PLLDesc

	// PMUCapable domains have their power switched on enable and
	// disable. Manual ones are switched by toggling isolation and the
	// power switches directly instead of asking the PMU.
	PMUCapable bool
	Manual     bool
	// Essential domains stay up across a suspend with dropped clocks.
	Essential bool

	MBusClk  uint32 // memory-bus clock mask bit
	MBusBusy uint32 // memory-bus busy bit, polled after masking
	MBusRst  uint32 // memory-bus reset bit, low in reset
	SWReset  uint32 // CKC soft reset bit, low in reset
	X2X      uint32 // X2X bridge request/ack bit
	PMU      uint32 // PMU power request/status bit
	Iso      uint32 // isolation bit for manual domains
	PwrSw    [2]uint32

	// SubPwdn and SubReset are the domain's own block power-down and
	// reset registers, saved across suspend. Zero when absent.
	SubPwdn, SubReset uintptr
}

// PeripheralDesc describes one peripheral clock.
type PeripheralDesc struct {
	Name  string
	Reg   uintptr
	Class PeripheralClass
}

// Regs are the shared control registers used by the power sequencer.
type Regs struct {
	MBusClkMask uintptr
	MBusReset   uintptr
	MBusStatus  uintptr
	SWReset     uintptr
	X2XReq      uintptr
	X2XAck      uintptr
	PMUPwrDn    uintptr
	PMUPwrUp    uintptr
	PMUStatus   uintptr
	PMUIso      uintptr
	PMUPwrSw    uintptr
}

// SoC ties together everything the engine needs to know about a chip.
type SoC struct {
	Name string
	// PLLs are indexed by PLL id.
	PLLs []PLLDesc
	// ReservedPLL is left alone by save and restore. -1 for none.
	ReservedPLL int
	// Domains are indexed by Domain.
	Domains     []DomainDesc
	Peripherals []PeripheralDesc
	Regs        Regs
	// BusExcluded sources are never picked for bus clocks and
	// PeriReserved sources never for peripheral clocks.
	BusExcluded  SourceSet
	PeriReserved SourceSet
}

func (s *SoC) validate() error {
	if len(s.Domains) != int(NumDomains) {
		return fmt.Errorf("%s: %d domains, want %d", s.Name, len(s.Domains), NumDomains)
	}
	for i, d := range s.Domains {
		if d.Kind == DedicatedPLL && d.PLL == nil {
			return fmt.Errorf("%s: domain %s has a dedicated PLL but no PLL descriptor", s.Name, Domain(i))
		}
	}
	if s.ReservedPLL >= len(s.PLLs) {
		return fmt.Errorf("%s: reserved PLL %d out of range", s.Name, s.ReservedPLL)
	}
	return nil
}
