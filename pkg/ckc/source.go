// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ckc

import (
	"fmt"
	"sync"
)

// Source is a physical clock source a bus or peripheral clock can select.
// The numbering is also the value of the clock select fields.
type Source int

const (
	SrcPLL0 Source = iota
	SrcPLL1
	SrcPLL2
	SrcPLL3
	SrcPLL4
	SrcXIN
	SrcPLL0Div
	SrcPLL1Div
	SrcPLL2Div
	SrcPLL3Div
	SrcPLL4Div
	SrcXTIN
	SrcExt0
	SrcExt1
	SrcExt2
	SrcExt3
	SrcDPLL
	NumSources

	// NoSource marks a PLL whose output is not selectable, such as the
	// dedicated PLL inside a power domain.
	NoSource Source = -1
)

var sourceNames = [NumSources]string{
	"PLL0", "PLL1", "PLL2", "PLL3", "PLL4", "XIN",
	"PLL0DIV", "PLL1DIV", "PLL2DIV", "PLL3DIV", "PLL4DIV", "XTIN",
	"EXT0", "EXT1", "EXT2", "EXT3", "DPLL",
}

func (s Source) String() string {
	if s < 0 || s >= NumSources {
		return fmt.Sprintf("Source(%d)", int(s))
	}
	return sourceNames[s]
}

// SourceKind classifies a Source.
type SourceKind int

const (
	KindPLL SourceKind = iota
	KindPLLDiv
	KindDithered
	KindCrystal
	KindExternal
)

// Kind reports what kind of source s is.
func (s Source) Kind() SourceKind {
	switch {
	case s >= SrcPLL0 && s <= SrcPLL4:
		return KindPLL
	case s >= SrcPLL0Div && s <= SrcPLL4Div:
		return KindPLLDiv
	case s == SrcXIN || s == SrcXTIN:
		return KindCrystal
	case s >= SrcExt0 && s <= SrcExt3:
		return KindExternal
	}
	return KindDithered
}

// SourceSet is a set of sources.
type SourceSet uint32

func NewSourceSet(srcs ...Source) SourceSet {
	var s SourceSet
	for _, src := range srcs {
		s |= 1 << uint(src)
	}
	return s
}

func (s SourceSet) Has(src Source) bool {
	return src >= 0 && s&(1<<uint(src)) != 0
}

// Rates holds one rate per source in Hz. Zero means inactive or unknown.
type Rates [NumSources]uint64

// SourceTable is the process-wide view of what every clock source runs
// at. The PLL solvers are its only writers after start-up; readers take a
// copy with Rates and may see a slightly stale table.
type SourceTable struct {
	m     sync.RWMutex
	rates Rates
}

func (t *SourceTable) Rate(s Source) uint64 {
	if s < 0 || s >= NumSources {
		return 0
	}
	t.m.RLock()
	defer t.m.RUnlock()
	return t.rates[s]
}

func (t *SourceTable) Rates() Rates {
	t.m.RLock()
	defer t.m.RUnlock()
	return t.rates
}

// setPLL updates a PLL output and its post-divided output together so no
// reader sees one without the other.
func (t *SourceTable) setPLL(out, divOut Source, rate, divRate uint64) {
	t.m.Lock()
	defer t.m.Unlock()
	if out != NoSource {
		t.rates[out] = rate
	}
	if divOut != NoSource {
		t.rates[divOut] = divRate
	}
}

func (t *SourceTable) setStatic(s Source, rate uint64) {
	t.m.Lock()
	defer t.m.Unlock()
	t.rates[s] = rate
}
