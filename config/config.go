// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"time"
)

// Board describes the clock inputs a board wires to the SoC.
type Board struct {
	XinHz       uint64
	XtinHz      uint64
	XtinPresent bool
	// ExternalClocks are the rates of the EXT0..EXT3 inputs, zero when
	// the pin is unused.
	ExternalClocks [4]uint64
}

// Wait bounds every hardware handshake: a wait gives up after Timeout or
// after MaxAttempts reads, whichever comes first. A zero field is no bound.
type Wait struct {
	Timeout     time.Duration
	MaxAttempts int
	MinInterval time.Duration
	MaxInterval time.Duration
}

type Config struct {
	Board          Board
	Wait           Wait
	DeviceTree     string
	LogFile        string
	MetricsAddress string
}

var DefaultConfig = &Config{
	Board: Board{
		XinHz:       24000000,
		XtinHz:      32768,
		XtinPresent: true,
	},

	// A PLL lock or bus ack that has not shown up after a few
	// milliseconds is not going to.
	Wait: Wait{
		Timeout:     20 * time.Millisecond,
		MaxAttempts: 100000,
		MinInterval: time.Microsecond,
		MaxInterval: 100 * time.Microsecond,
	},

	DeviceTree:     "/sys/firmware/fdt",
	LogFile:        "/tmp/u-ckc.log",
	MetricsAddress: "",
}
