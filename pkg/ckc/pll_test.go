// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ckc

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSolvePLL(t *testing.T) {
	t.Parallel()
	data := []struct {
		name   string
		target uint64
		lim    PLLLimits
		want   PLLParams
	}{
		{"800MHz", 800 * MHz, PLLLimitsTCC, PLLParams{P: 3, M: 400, S: 2, Enabled: true, Rate: 800 * MHz}},
		{"1.6GHz", 1600 * MHz, PLLLimitsTCC, PLLParams{P: 3, M: 400, S: 1, Enabled: true, Rate: 1600 * MHz}},
		{"dithered 600MHz", 600 * MHz, DitheredLimits, PLLParams{P: 1, M: 50, S: 1, Enabled: true, Rate: 600 * MHz}},
		{"off", 0, PLLLimitsTCC, PLLParams{}},
	}
	for _, d := range data {
		got, err := SolvePLL(d.target, 24*MHz, d.lim)
		if err != nil {
			t.Errorf("%s: %v", d.name, err)
			continue
		}
		if diff := cmp.Diff(d.want, got); diff != "" {
			t.Errorf("%s: mismatch (-want +got):\n%s", d.name, diff)
		}
	}
}

func TestSolvePLLNoSolution(t *testing.T) {
	t.Parallel()
	for _, target := range []uint64{10 * MHz, 4 * GHz} {
		if p, err := SolvePLL(target, 24*MHz, PLLLimitsTCC); !errors.Is(err, ErrNoSolution) {
			t.Errorf("SolvePLL(%d) = %v, %v; want ErrNoSolution", target, p, err)
		}
	}
	if _, err := SolvePLL(800*MHz, 0, PLLLimitsTCC); !errors.Is(err, ErrNoSolution) {
		t.Errorf("SolvePLL without reference = %v; want ErrNoSolution", err)
	}
}

// bruteForcePLL returns the smallest error any legal parameter set has,
// or MaxUint64 when none is legal.
func bruteForcePLL(target, ref uint64, lim PLLLimits) uint64 {
	best := uint64(math.MaxUint64)
	for s := lim.SMin; s <= lim.SMax; s++ {
		vco := target << s
		if vco < lim.VCOMin || vco > lim.VCOMax {
			continue
		}
		for p := lim.PMin; p <= lim.PMax; p++ {
			for m := lim.MMin; m <= lim.MMax; m++ {
				rate := (m * ref / p) >> s
				if rate < lim.RateMin || rate > lim.RateMax {
					continue
				}
				if e := absDiff(rate, target); e < best {
					best = e
				}
			}
		}
	}
	return best
}

func TestSolvePLLOptimal(t *testing.T) {
	t.Parallel()
	lim := PLLLimits{
		PMin: 1, PMax: 6,
		MMin: 8, MMax: 60,
		SMin: 0, SMax: 3,
		VCOMin: 100 * MHz, VCOMax: 400 * MHz,
		RateMin: 10 * MHz, RateMax: 400 * MHz,
	}
	const ref = 10 * MHz
	for target := uint64(10 * MHz); target <= 400*MHz; target += 1234567 {
		want := bruteForcePLL(target, ref, lim)
		got, err := SolvePLL(target, ref, lim)
		if want == math.MaxUint64 {
			if !errors.Is(err, ErrNoSolution) {
				t.Errorf("SolvePLL(%d) = %v, %v; want ErrNoSolution", target, got, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("SolvePLL(%d): %v", target, err)
			continue
		}
		if e := absDiff(got.Rate, target); e != want {
			t.Errorf("SolvePLL(%d) = %v, error %d; best possible is %d", target, got, e, want)
		}
		if got.P < lim.PMin || got.P > lim.PMax || got.M < lim.MMin || got.M > lim.MMax || got.S > lim.SMax {
			t.Errorf("SolvePLL(%d) = %v, outside limits", target, got)
		}
		if r := PLLRate(ref, got); r != got.Rate {
			t.Errorf("SolvePLL(%d) reports %d Hz, parameters give %d Hz", target, got.Rate, r)
		}
	}
}

func TestSolvePLLIdempotent(t *testing.T) {
	t.Parallel()
	for target := uint64(50 * MHz); target <= 3200*MHz; target += 7777777 {
		first, err := SolvePLL(target, 24*MHz, PLLLimitsTCC)
		if err != nil {
			t.Errorf("SolvePLL(%d): %v", target, err)
			continue
		}
		again, err := SolvePLL(first.Rate, 24*MHz, PLLLimitsTCC)
		if err != nil {
			t.Errorf("SolvePLL(%d): %v", first.Rate, err)
			continue
		}
		if again.Rate != first.Rate {
			t.Errorf("SolvePLL(%d) = %d Hz, but SolvePLL(%d) = %d Hz", target, first.Rate, first.Rate, again.Rate)
		}
	}
}
