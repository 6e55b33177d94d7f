// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memtest has a scripted register fake: tests queue the reads and
// writes they expect, in order, and any deviation is reported.
package memtest

import (
	"testing"

	"github.com/u-root/u-ckc/pkg/hardware/mem"
)

type Fake struct {
	t   testing.TB
	ops []mem.Op
}

func New(t testing.TB) *Fake {
	return &Fake{t: t}
}

func (m *Fake) next() (mem.Op, bool) {
	if len(m.ops) == 0 {
		return mem.Op{}, false
	}
	o := m.ops[0]
	m.ops = m.ops[1:]
	return o, true
}

func (m *Fake) MustRead32(a uintptr) uint32 {
	m.t.Helper()
	o, ok := m.next()
	if !ok {
		m.t.Errorf("Expected nothing, got 32 bit read on %08x", a)
		return 0
	}
	if o.Write || o.Address != a {
		m.t.Errorf("Expected %s, got 32 bit read on %08x", o, a)
	}
	return o.Data
}

func (m *Fake) MustWrite32(a uintptr, d uint32) {
	m.t.Helper()
	o, ok := m.next()
	if !ok {
		m.t.Errorf("Expected nothing, got 32 bit write of %08x on %08x", d, a)
		return
	}
	if !o.Write || o.Address != a || o.Data != d {
		m.t.Errorf("Expected %s, got 32 bit write of %08x on %08x", o, d, a)
	}
}

// ExpectWrite32 queues a write that must happen next.
func (m *Fake) ExpectWrite32(a uintptr, d uint32) {
	m.ops = append(m.ops, mem.Op{Write: true, Address: a, Data: d})
}

// FakeRead32 queues a read and the value it returns.
func (m *Fake) FakeRead32(a uintptr, d uint32) {
	m.ops = append(m.ops, mem.Op{Address: a, Data: d})
}

// Done reports any queued operation that never happened.
func (m *Fake) Done() {
	m.t.Helper()
	for _, o := range m.ops {
		m.t.Errorf("Expected %s, never happened", o)
	}
	m.ops = nil
}

func (m *Fake) Close() {
}
