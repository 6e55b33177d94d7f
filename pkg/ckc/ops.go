// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ckc

// Ops is the clock and power interface offered to the rest of the system.
// PLL and peripheral ids index the SoC's tables; every call with an id
// outside them fails with ErrInvalidDomain.
type Ops interface {
	PLLSetRate(pll int, hz uint64) error
	PLLGetRate(pll int) (uint64, error)
	IsPLLEnabled(pll int) (bool, error)
	PLLSetSpreadSpectrum(pll int, on bool) error

	BusClockEnable(d Domain) error
	BusClockDisable(d Domain) error
	BusClockSetRate(d Domain, hz uint64) error
	BusClockGetRate(d Domain) (uint64, error)
	IsBusClockEnabled(d Domain) (bool, error)

	PeripheralEnable(id int) error
	PeripheralDisable(id int) error
	PeripheralSetRate(id int, hz uint64) error
	PeripheralGetRate(id int) (uint64, error)
	IsPeripheralEnabled(id int) (bool, error)

	PowerDomainSetPowered(d Domain, on bool) error
	IsDomainPowered(d Domain) (bool, error)
	DomainState(d Domain) (PowerState, error)
	RecoverDomain(d Domain) error

	SaveState(dropUnused bool) (*Snapshot, error)
	RestoreState(s *Snapshot) error
}

var _ Ops = &Controller{}
