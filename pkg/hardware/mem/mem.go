// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mem provides 32-bit access to memory mapped SoC registers.
//
// Everything that touches clock or power hardware goes through a Provider,
// so the same code can run against /dev/mem on the target, against an
// in-memory RegFile when simulating, or against a scripted fake in tests.
package mem

// Provider reads and writes 32-bit registers. Must* calls never fail: a
// provider that cannot reach the hardware panics, since there is nothing
// sensible a clock sequence can do halfway through.
type Provider interface {
	MustRead32(uintptr) uint32
	MustWrite32(uintptr, uint32)
	Close()
}

// Update does a read-modify-write of the register at a: bits in clr are
// cleared, then bits in set are set. The written value is returned.
func Update(p Provider, a uintptr, clr, set uint32) uint32 {
	v := (p.MustRead32(a) &^ clr) | set
	p.MustWrite32(a, v)
	return v
}

// SetBits sets bits in the register at a.
func SetBits(p Provider, a uintptr, bits uint32) {
	Update(p, a, 0, bits)
}

// ClearBits clears bits in the register at a.
func ClearBits(p Provider, a uintptr, bits uint32) {
	Update(p, a, bits, 0)
}
