// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ckc

import (
	"fmt"
	"math"
)

const (
	PeriDivMax = 4096
	// DCOScale is the full scale of the DCO phase accumulator.
	DCOScale = 65536
)

// ClockMode is how a peripheral clock derives its rate from the source.
type ClockMode int

const (
	ModeDivider ClockMode = iota
	ModeDCO
)

func (m ClockMode) String() string {
	if m == ModeDCO {
		return "dco"
	}
	return "div"
}

// PeripheralClass captures how a peripheral may be clocked.
type PeripheralClass struct {
	// DCO allows the fractional DCO mode. Audio clocks can't use it.
	DCO bool
	// NoOvershoot rejects any rate above the target.
	NoOvershoot bool
}

var (
	ClassDefault = PeripheralClass{DCO: true}
	ClassAudio   = PeripheralClass{}
	ClassSDMMC   = PeripheralClass{DCO: true, NoOvershoot: true}
)

// PeripheralSelection is a peripheral clock setting. Code is the register
// value: the divisor minus one in divider mode, the DCO code otherwise.
type PeripheralSelection struct {
	Mode   ClockMode
	Source Source
	Code   uint32
	Rate   uint64
}

func (p PeripheralSelection) String() string {
	return fmt.Sprintf("%s %s:%d (%s)", p.Source, p.Mode, p.Code, FormatHz(p.Rate))
}

// dcoRate is the output of the DCO at code. Codes above half scale fold
// back, the accumulator only toggles once per wrap.
func dcoRate(src uint64, code uint32) uint64 {
	c := uint64(code)
	if c > DCOScale/2 {
		c = DCOScale - c
	}
	return src * c / DCOScale
}

// rateOf returns what s produces from rates.
func (p PeripheralSelection) rateOf(rates Rates) uint64 {
	if p.Source < 0 || p.Source >= NumSources {
		return 0
	}
	src := rates[p.Source]
	if p.Mode == ModeDCO {
		return dcoRate(src, p.Code)
	}
	return src / (uint64(p.Code) + 1)
}

// SolvePeripheral picks source, mode and code closest to target. Sources
// are scanned from the highest id down; reserved sources are skipped.
// Divider mode wins ties against DCO mode, and between DCO settings the
// smaller code wins.
func SolvePeripheral(target uint64, class PeripheralClass, rates Rates, reserved SourceSet) (PeripheralSelection, error) {
	if target == 0 {
		return PeripheralSelection{}, fmt.Errorf("%w: zero peripheral rate", ErrNoSolution)
	}
	errOf := func(rate uint64) uint64 {
		if class.NoOvershoot && rate > target {
			return math.MaxUint64
		}
		return absDiff(rate, target)
	}
	var best PeripheralSelection
	bestErr := uint64(math.MaxUint64)
	for s := NumSources - 1; s >= 0; s-- {
		r := rates[s]
		if r == 0 || reserved.Has(s) {
			continue
		}
		d := clamp((r+target/2)/target, 1, PeriDivMax)
		pick := PeripheralSelection{Mode: ModeDivider, Source: s, Code: uint32(d - 1), Rate: r / d}
		pickErr := errOf(pick.Rate)
		if class.DCO && s.Kind() != KindExternal {
			code := (target*DCOScale + r/2) / r
			if code != 0 && code <= DCOScale/2 {
				rate := dcoRate(r, uint32(code))
				if e := errOf(rate); e < pickErr {
					pick = PeripheralSelection{Mode: ModeDCO, Source: s, Code: uint32(code), Rate: rate}
					pickErr = e
				}
			}
		}
		if pickErr == math.MaxUint64 {
			continue
		}
		if pickErr < bestErr || pickErr == bestErr && betterTie(pick, best) {
			best, bestErr = pick, pickErr
		}
	}
	if bestErr == math.MaxUint64 {
		return PeripheralSelection{}, fmt.Errorf("%w: no peripheral source reaches %s", ErrNoSolution, FormatHz(target))
	}
	return best, nil
}

func betterTie(a, b PeripheralSelection) bool {
	if a.Mode == ModeDivider {
		return b.Mode == ModeDCO
	}
	return b.Mode == ModeDCO && a.Code < b.Code
}
