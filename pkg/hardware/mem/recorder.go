// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mem

import (
	"fmt"
	"sync"
)

// Op is one recorded register access.
type Op struct {
	Write   bool
	Address uintptr
	Data    uint32
}

func (o Op) String() string {
	t := "read"
	if o.Write {
		t = "write"
	}
	return fmt.Sprintf("{%s @ %08x = %08x}", t, o.Address, o.Data)
}

// Recorder passes accesses through to another Provider and keeps a log
// of them.
type Recorder struct {
	p   Provider
	m   sync.Mutex
	ops []Op
}

func NewRecorder(p Provider) *Recorder {
	return &Recorder{p: p}
}

func (r *Recorder) MustRead32(a uintptr) uint32 {
	v := r.p.MustRead32(a)
	r.m.Lock()
	r.ops = append(r.ops, Op{false, a, v})
	r.m.Unlock()
	return v
}

func (r *Recorder) MustWrite32(a uintptr, v uint32) {
	r.p.MustWrite32(a, v)
	r.m.Lock()
	r.ops = append(r.ops, Op{true, a, v})
	r.m.Unlock()
}

func (r *Recorder) Close() {
	r.p.Close()
}

// Ops returns a copy of everything recorded so far.
func (r *Recorder) Ops() []Op {
	r.m.Lock()
	defer r.m.Unlock()
	return append([]Op(nil), r.ops...)
}

// Writes returns the values written to a, oldest first.
func (r *Recorder) Writes(a uintptr) []uint32 {
	r.m.Lock()
	defer r.m.Unlock()
	var ws []uint32
	for _, o := range r.ops {
		if o.Write && o.Address == a {
			ws = append(ws, o.Data)
		}
	}
	return ws
}

// Reset forgets the recorded log.
func (r *Recorder) Reset() {
	r.m.Lock()
	r.ops = nil
	r.m.Unlock()
}
