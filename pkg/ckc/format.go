// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ckc

import (
	"github.com/dustin/go-humanize"
)

// FormatHz renders a rate like "800 MHz".
func FormatHz(hz uint64) string {
	return humanize.SI(float64(hz), "Hz")
}
