// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ckc

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoSolution means no divider/multiplier combination meets the
	// hardware limits for the requested rate.
	ErrNoSolution = errors.New("no clock parameters satisfy the hardware limits")
	// ErrInvalidDomain is returned for ids outside the SoC tables and for
	// operations a domain does not support.
	ErrInvalidDomain = errors.New("invalid clock or power domain")
	// ErrTimeout is matched by every *TimeoutError.
	ErrTimeout = errors.New("hardware handshake timed out")
	// ErrConcurrentSnapshot is returned by SaveState while an earlier
	// snapshot has not been restored.
	ErrConcurrentSnapshot = errors.New("a snapshot is already outstanding")
	// ErrNoSnapshot is returned when restoring a snapshot that is not the
	// outstanding one.
	ErrNoSnapshot = errors.New("snapshot is not outstanding")
	// ErrBusy is returned when a power domain is already being sequenced.
	ErrBusy = errors.New("power domain is in transition")
	// ErrStuck is returned for a domain whose last sequence timed out,
	// until RecoverDomain succeeds.
	ErrStuck = errors.New("power domain is stuck in transition, recovery required")
)

// TimeoutError describes a status bit that did not reach its expected
// value in time.
type TimeoutError struct {
	Register uintptr
	Mask     uint32
	Want     uint32
	Got      uint32
	Attempts int
	Elapsed  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("register %08x: mask %08x still %08x, want %08x after %d reads (%v)",
		e.Register, e.Mask, e.Got, e.Want, e.Attempts, e.Elapsed)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}
