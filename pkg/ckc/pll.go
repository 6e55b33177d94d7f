// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ckc

import (
	"fmt"
	"math"
)

const (
	KHz = 1000
	MHz = 1000 * KHz
	GHz = 1000 * MHz
)

// PLLLimits are the legal ranges of a PLL's parameters, its VCO and its
// output. All bounds are inclusive.
type PLLLimits struct {
	PMin, PMax       uint64
	MMin, MMax       uint64
	SMin, SMax       uint64
	VCOMin, VCOMax   uint64
	RateMin, RateMax uint64
}

var (
	// PLLLimitsTCC applies to PLL0..PLL4 and the dedicated PLLs inside
	// power domains.
	PLLLimitsTCC = PLLLimits{
		PMin: 2, PMax: 63,
		MMin: 64, MMax: 1023,
		SMin: 0, SMax: 5,
		VCOMin: 1600 * MHz, VCOMax: 3200 * MHz,
		RateMin: 25 * MHz, RateMax: 3200 * MHz,
	}
	// DitheredLimits applies to the spread-spectrum PLL.
	DitheredLimits = PLLLimits{
		PMin: 1, PMax: 63,
		MMin: 16, MMax: 511,
		SMin: 0, SMax: 6,
		VCOMin: 1000 * MHz, VCOMax: 2000 * MHz,
		RateMin: 20 * MHz, RateMax: 2000 * MHz,
	}
)

// PLLParams is one PLL configuration: output = (ref * M / P) >> S.
type PLLParams struct {
	P, M, S        uint64
	Enabled        bool
	Source         Source
	Dithered       bool
	SpreadSpectrum bool
	// Rate is the output this configuration produces.
	Rate uint64
}

func (p PLLParams) String() string {
	if !p.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("P=%d M=%d S=%d (%s)", p.P, p.M, p.S, FormatHz(p.Rate))
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

func clamp(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SolvePLL finds P, M and S producing the rate closest to target from a
// ref Hz reference. Higher post-dividers are tried first, then smaller
// pre-dividers, and the first candidate with the smallest error wins.
// A zero target yields the disabled configuration.
func SolvePLL(target, ref uint64, lim PLLLimits) (PLLParams, error) {
	if target == 0 {
		return PLLParams{}, nil
	}
	if ref == 0 {
		return PLLParams{}, fmt.Errorf("%w: reference clock is not running", ErrNoSolution)
	}
	var best PLLParams
	bestErr := uint64(math.MaxUint64)
	for s := int(lim.SMax); s >= int(lim.SMin); s-- {
		vco := target << uint(s)
		if vco>>uint(s) != target || vco < lim.VCOMin || vco > lim.VCOMax {
			continue
		}
		for p := lim.PMin; p <= lim.PMax; p++ {
			// Output is monotonic in M, so the best M is one of the two
			// integers around vco*p/ref. Try the rounded one first.
			lo := vco * p / ref
			m1, m2 := lo, lo+1
			if (vco*p)%ref >= (ref+1)/2 {
				m1, m2 = m2, m1
			}
			for _, m := range [2]uint64{m1, m2} {
				m = clamp(m, lim.MMin, lim.MMax)
				rate := (m * ref / p) >> uint(s)
				if rate < lim.RateMin || rate > lim.RateMax {
					continue
				}
				if e := absDiff(rate, target); e < bestErr {
					bestErr = e
					best = PLLParams{P: p, M: m, S: uint64(s), Enabled: true, Rate: rate}
				}
			}
			if bestErr == 0 {
				return best, nil
			}
		}
	}
	if bestErr == math.MaxUint64 {
		return PLLParams{}, fmt.Errorf("%w: %s from %s", ErrNoSolution, FormatHz(target), FormatHz(ref))
	}
	return best, nil
}

// disabledPLL is what a PLL is left at when no rate could be solved:
// switched off, with the smallest legal parameters.
func disabledPLL(lim PLLLimits) PLLParams {
	return PLLParams{P: lim.PMin, M: lim.MMin, S: lim.SMin}
}
