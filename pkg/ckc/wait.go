// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ckc

import (
	"github.com/jmhodges/clock"
	"github.com/jpillora/backoff"
	"github.com/u-root/u-ckc/config"
	"github.com/u-root/u-ckc/pkg/hardware/mem"
)

// waiter polls status bits with a growing interval until they settle or
// the configured bound runs out.
type waiter struct {
	mem mem.Provider
	clk clock.Clock
	cfg config.Wait
}

func normalizeWait(w config.Wait) config.Wait {
	d := config.DefaultConfig.Wait
	if w.Timeout <= 0 && w.MaxAttempts <= 0 {
		w.Timeout, w.MaxAttempts = d.Timeout, d.MaxAttempts
	}
	if w.MinInterval <= 0 {
		w.MinInterval = d.MinInterval
	}
	if w.MaxInterval < w.MinInterval {
		w.MaxInterval = w.MinInterval
	}
	return w
}

// until returns once the bits in mask of register a equal want.
func (w *waiter) until(a uintptr, mask, want uint32) error {
	b := &backoff.Backoff{
		Min:    w.cfg.MinInterval,
		Max:    w.cfg.MaxInterval,
		Factor: 2,
		Jitter: false,
	}
	start := w.clk.Now()
	for attempt := 1; ; attempt++ {
		v := w.mem.MustRead32(a)
		elapsed := w.clk.Now().Sub(start)
		if v&mask == want {
			handshakeLatency.Observe(elapsed.Seconds())
			return nil
		}
		if (w.cfg.MaxAttempts > 0 && attempt >= w.cfg.MaxAttempts) ||
			(w.cfg.Timeout > 0 && elapsed >= w.cfg.Timeout) {
			return &TimeoutError{
				Register: a,
				Mask:     mask,
				Want:     want,
				Got:      v & mask,
				Attempts: attempt,
				Elapsed:  elapsed,
			}
		}
		w.clk.Sleep(b.Duration())
	}
}

// set waits for all of bits to read as one, clear for all to read zero.
func (w *waiter) set(a uintptr, bits uint32) error {
	return w.until(a, bits, bits)
}

func (w *waiter) clear(a uintptr, bits uint32) error {
	return w.until(a, bits, 0)
}
