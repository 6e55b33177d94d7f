// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ckc

import (
	"errors"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/u-root/u-ckc/config"
	"github.com/u-root/u-ckc/pkg/hardware/mem"
	"github.com/u-root/u-ckc/pkg/hardware/mem/memtest"
)

func handshakeSamples(t *testing.T) uint64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() == "ckc_handshake_duration_seconds" {
			return mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	return 0
}

func TestWaitSettles(t *testing.T) {
	before := handshakeSamples(t)
	fm := memtest.New(t)
	fm.FakeRead32(0x1000, 0)
	fm.FakeRead32(0x1000, 0x10)
	fm.FakeRead32(0x1000, 0x13)
	w := waiter{mem: fm, clk: clock.NewFake(), cfg: normalizeWait(config.Wait{MaxAttempts: 5})}
	if err := w.until(0x1000, 0x3, 0x3); err != nil {
		t.Fatal(err)
	}
	fm.Done()
	if got := handshakeSamples(t); got <= before {
		t.Errorf("handshake latency samples %d -> %d, want one more", before, got)
	}
}

func TestWaitMaxAttempts(t *testing.T) {
	t.Parallel()
	fm := memtest.New(t)
	for i := 0; i < 3; i++ {
		fm.FakeRead32(0x1000, 0x1)
	}
	w := waiter{mem: fm, clk: clock.NewFake(), cfg: normalizeWait(config.Wait{MaxAttempts: 3})}
	err := w.clear(0x1000, 0x1)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("clear = %v, want *TimeoutError", err)
	}
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("%v does not match ErrTimeout", err)
	}
	if te.Attempts != 3 || te.Register != 0x1000 || te.Got != 0x1 {
		t.Errorf("TimeoutError = %+v", te)
	}
	fm.Done()
}

func TestWaitTimeout(t *testing.T) {
	t.Parallel()
	rf := mem.NewRegFile()
	clk := clock.NewFake()
	w := waiter{mem: rf, clk: clk, cfg: normalizeWait(config.Wait{
		Timeout:     10 * time.Microsecond,
		MaxAttempts: 1000,
		MinInterval: time.Microsecond,
		MaxInterval: 4 * time.Microsecond,
	})}
	err := w.set(0x2000, 0x80000000)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("set = %v, want *TimeoutError", err)
	}
	if te.Elapsed < 10*time.Microsecond {
		t.Errorf("gave up after %v, want at least 10µs", te.Elapsed)
	}
	if te.Attempts >= 1000 {
		t.Errorf("gave up after %d reads, the time bound should have hit first", te.Attempts)
	}
}

func TestNormalizeWait(t *testing.T) {
	t.Parallel()
	w := normalizeWait(config.Wait{})
	if w.Timeout == 0 && w.MaxAttempts == 0 {
		t.Error("unbounded wait accepted")
	}
	if w.MinInterval <= 0 || w.MaxInterval < w.MinInterval {
		t.Errorf("bad intervals %v..%v", w.MinInterval, w.MaxInterval)
	}
}
