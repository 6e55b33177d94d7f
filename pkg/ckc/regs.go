// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ckc

// Field layouts of the CKC registers. Encoders take the current register
// value and only replace the fields they own.

const (
	pllPShift   = 0
	pllPMask    = 0x3f
	pllMShift   = 6
	pllMMask    = 0x3ff
	pllSShift   = 16
	pllSMask    = 0x7
	pllSrcShift = 24
	pllSrcMask  = 0x3
	// The dithered PLL has a narrower M field and a spread-spectrum
	// enable where the normal PLLs keep their source select.
	dpllMMask = 0x1ff
	dpllSSE   = 1 << 28

	PLLLock = 1 << 30
	PLLEn   = 1 << 31
)

const (
	pllDivMask = 0x3f
	PLLDivEn   = 1 << 7
)

const (
	clkctrlSelMask  = 0x1f
	clkctrlDivShift = 8
	clkctrlDivMask  = 0xf
	ClkCtrlEn       = 1 << 21
	ClkCtrlChgReq   = 1 << 29
)

const (
	pclkDivMask  = 0xffff
	pclkSelShift = 24
	pclkSelMask  = 0x1f
	PclkEn       = 1 << 29
	// PclkDivider selects divider mode; clear means DCO.
	PclkDivider = 1 << 31
)

// pllRefSel maps a PLL reference to its source select value.
func pllRefSel(s Source) uint32 {
	if s == SrcXTIN {
		return 1
	}
	return 0
}

func pllRefFromSel(v uint32) Source {
	if v == 1 {
		return SrcXTIN
	}
	return SrcXIN
}

// EncodePLL returns the PMS register value for p. The LOCK bit is read
// only and always written as zero.
func EncodePLL(p PLLParams) uint32 {
	mMask := uint32(pllMMask)
	if p.Dithered {
		mMask = dpllMMask
	}
	v := (uint32(p.P)&pllPMask)<<pllPShift |
		(uint32(p.M)&mMask)<<pllMShift |
		(uint32(p.S)&pllSMask)<<pllSShift
	if p.Dithered {
		if p.SpreadSpectrum {
			v |= dpllSSE
		}
	} else {
		v |= pllRefSel(p.Source) << pllSrcShift
	}
	if p.Enabled {
		v |= PLLEn
	}
	return v
}

// DecodePLL is the inverse of EncodePLL. Rate is left zero; use PLLRate.
func DecodePLL(v uint32, dithered bool) PLLParams {
	mMask := uint32(pllMMask)
	if dithered {
		mMask = dpllMMask
	}
	p := PLLParams{
		P:        uint64(v >> pllPShift & pllPMask),
		M:        uint64(v >> pllMShift & mMask),
		S:        uint64(v >> pllSShift & pllSMask),
		Enabled:  v&PLLEn != 0,
		Dithered: dithered,
		Source:   SrcXIN,
	}
	if dithered {
		p.SpreadSpectrum = v&dpllSSE != 0
	} else {
		p.Source = pllRefFromSel(v >> pllSrcShift & pllSrcMask)
	}
	return p
}

// PLLRate is the output of a PLL programmed with p and fed ref Hz.
func PLLRate(ref uint64, p PLLParams) uint64 {
	if !p.Enabled || p.P == 0 {
		return 0
	}
	return (p.M * ref / p.P) >> p.S
}

// EncodePLLDiv returns the post-divider register value for a divide by
// div+1.
func EncodePLLDiv(div uint32, en bool) uint32 {
	v := div & pllDivMask
	if en {
		v |= PLLDivEn
	}
	return v
}

func DecodePLLDiv(v uint32) (div uint32, en bool) {
	return v & pllDivMask, v&PLLDivEn != 0
}

// EncodeClkCtrl replaces the source and divider fields of cur. div is the
// divisor, 1 to 16.
func EncodeClkCtrl(cur uint32, src Source, div uint32) uint32 {
	cur &^= clkctrlSelMask | clkctrlDivMask<<clkctrlDivShift | ClkCtrlChgReq
	return cur | uint32(src)&clkctrlSelMask | ((div-1)&clkctrlDivMask)<<clkctrlDivShift
}

// DecodeClkCtrl returns the selected source and divisor.
func DecodeClkCtrl(v uint32) (src Source, div uint32, en bool) {
	return Source(v & clkctrlSelMask), (v>>clkctrlDivShift)&clkctrlDivMask + 1, v&ClkCtrlEn != 0
}

// EncodePclk returns the peripheral clock register value for s.
func EncodePclk(s PeripheralSelection, en bool) uint32 {
	v := s.Code&pclkDivMask | (uint32(s.Source)&pclkSelMask)<<pclkSelShift
	if s.Mode == ModeDivider {
		v |= PclkDivider
	}
	if en {
		v |= PclkEn
	}
	return v
}

// DecodePclk returns the selection held in v. Rate is left zero.
func DecodePclk(v uint32) (PeripheralSelection, bool) {
	s := PeripheralSelection{
		Mode:   ModeDCO,
		Source: Source(v >> pclkSelShift & pclkSelMask),
		Code:   v & pclkDivMask,
	}
	if v&PclkDivider != 0 {
		s.Mode = ModeDivider
	}
	return s, v&PclkEn != 0
}
