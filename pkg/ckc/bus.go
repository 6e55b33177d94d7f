// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ckc

import (
	"fmt"
)

const (
	BusDivMin = 1
	BusDivMax = 16
)

// BusSelection is a bus clock source and integer divisor.
type BusSelection struct {
	Source Source
	Div    uint32
	Rate   uint64
}

func (b BusSelection) String() string {
	return fmt.Sprintf("%s/%d (%s)", b.Source, b.Div, FormatHz(b.Rate))
}

// SolveBus picks the source and divisor giving the highest rate that does
// not exceed target. Equal results prefer an even divisor, and the search
// stops at the first exact match.
//
// Targets below half of XIN get XIN/2 regardless, which is the only case
// where the result may exceed target.
func SolveBus(target uint64, rates Rates, excluded SourceSet) (BusSelection, error) {
	xin := rates[SrcXIN]
	if target < xin/2 {
		return BusSelection{Source: SrcXIN, Div: 2, Rate: xin / 2}, nil
	}
	if target == 0 {
		return BusSelection{}, fmt.Errorf("%w: zero bus rate without XIN", ErrNoSolution)
	}
	var best BusSelection
	var bestErr uint64
	found := false
	for s := Source(0); s < NumSources; s++ {
		r := rates[s]
		if r == 0 || excluded.Has(s) {
			continue
		}
		d := clamp((r+target-1)/target, BusDivMin, BusDivMax)
		rate := r / d
		if rate > target {
			continue
		}
		e := target - rate
		if !found || e < bestErr || (e == bestErr && d%2 == 0 && best.Div%2 != 0) {
			best = BusSelection{Source: s, Div: uint32(d), Rate: rate}
			bestErr = e
			found = true
		}
		if e == 0 {
			break
		}
	}
	if !found {
		return BusSelection{}, fmt.Errorf("%w: no bus source reaches %s", ErrNoSolution, FormatHz(target))
	}
	return best, nil
}
