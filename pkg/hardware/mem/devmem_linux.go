// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mem

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

type devMem struct {
	mf *os.File
	ps uintptr
}

// OpenDevMem maps registers through /dev/mem. Each access maps the page
// holding the register, which is slow but keeps no long-lived mappings
// around while a power domain is being switched off.
func OpenDevMem() (Provider, error) {
	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("open /dev/mem: %w", err)
	}
	return &devMem{mf: f, ps: uintptr(unix.Getpagesize())}, nil
}

func (m *devMem) mmap(address uintptr, prot int) ([]byte, uintptr) {
	page := address &^ (m.ps - 1)
	b, err := unix.Mmap(int(m.mf.Fd()), int64(page), int(m.ps), prot, unix.MAP_SHARED)
	if err != nil {
		panic(fmt.Sprintf("mmap %08x: %v", page, err))
	}
	return b, address - page
}

func (m *devMem) MustRead32(address uintptr) uint32 {
	b, off := m.mmap(address, unix.PROT_READ)
	v := *(*uint32)(unsafe.Pointer(&b[off]))
	if err := unix.Munmap(b); err != nil {
		panic(err)
	}
	return v
}

func (m *devMem) MustWrite32(address uintptr, data uint32) {
	b, off := m.mmap(address, unix.PROT_READ|unix.PROT_WRITE)
	*(*uint32)(unsafe.Pointer(&b[off])) = data
	if err := unix.Munmap(b); err != nil {
		panic(err)
	}
}

func (m *devMem) Close() {
	m.mf.Close()
}
