// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mem

import (
	"sort"
	"sync"
)

// WriteHook is called for a write to a hooked register. It receives the
// value currently stored and the value written, and returns what the
// register should hold afterwards. Hooks may Poke other registers.
type WriteHook func(rf *RegFile, old, v uint32) uint32

// RegFile is a sparse in-memory register file. Unwritten registers read
// as zero.
type RegFile struct {
	m     sync.Mutex
	regs  map[uintptr]uint32
	hooks map[uintptr]WriteHook
}

func NewRegFile() *RegFile {
	return &RegFile{
		regs:  make(map[uintptr]uint32),
		hooks: make(map[uintptr]WriteHook),
	}
}

// OnWrite installs h for writes to a, replacing any earlier hook.
func (r *RegFile) OnWrite(a uintptr, h WriteHook) {
	r.m.Lock()
	defer r.m.Unlock()
	r.hooks[a] = h
}

// Peek reads a register without side effects.
func (r *RegFile) Peek(a uintptr) uint32 {
	r.m.Lock()
	defer r.m.Unlock()
	return r.regs[a]
}

// Poke stores a value without running hooks.
func (r *RegFile) Poke(a uintptr, v uint32) {
	r.m.Lock()
	defer r.m.Unlock()
	r.regs[a] = v
}

// Addresses returns every register that has been written, in order.
func (r *RegFile) Addresses() []uintptr {
	r.m.Lock()
	defer r.m.Unlock()
	as := make([]uintptr, 0, len(r.regs))
	for a := range r.regs {
		as = append(as, a)
	}
	sort.Slice(as, func(i, j int) bool { return as[i] < as[j] })
	return as
}

func (r *RegFile) MustRead32(a uintptr) uint32 {
	return r.Peek(a)
}

func (r *RegFile) MustWrite32(a uintptr, v uint32) {
	r.m.Lock()
	h := r.hooks[a]
	old := r.regs[a]
	r.m.Unlock()
	if h != nil {
		v = h(r, old, v)
	}
	r.Poke(a, v)
}

func (r *RegFile) Close() {
}
