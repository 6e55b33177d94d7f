// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"bytes"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/u-root/u-root/pkg/dt"
)

// CompatibleCKC is the compatible string of the clock controller node.
const CompatibleCKC = "telechips,ckc"

// LoadDeviceTree reads a flattened device tree and applies the clock
// controller node's properties to c.
func LoadDeviceTree(path string, c *Config) error {
	return loadDeviceTree(afero.NewOsFs(), path, c)
}

func loadDeviceTree(fs afero.Fs, path string, c *Config) error {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return fmt.Errorf("reading device tree: %w", err)
	}
	fdt, err := dt.ReadFDT(bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("parsing device tree %s: %w", path, err)
	}
	var ckc *dt.Node
	err = fdt.RootNode.Walk(func(n *dt.Node) error {
		if ckc == nil && isCKC(n) {
			ckc = n
		}
		return nil
	})
	if err != nil {
		return err
	}
	if ckc == nil {
		return fmt.Errorf("no %q node in %s", CompatibleCKC, path)
	}
	return ApplyNode(ckc, c)
}

func isCKC(n *dt.Node) bool {
	p, ok := n.LookProperty("compatible")
	if !ok {
		return false
	}
	// compatible is a list of NUL terminated strings.
	for _, s := range bytes.Split(p.Value, []byte{0}) {
		if string(s) == CompatibleCKC {
			return true
		}
	}
	return false
}

// ApplyNode copies the clock properties of n into c. Properties that are
// absent leave c unchanged, except except-src-xtin whose presence marks
// the 32.768 kHz crystal as not fitted.
func ApplyNode(n *dt.Node, c *Config) error {
	for i := range c.Board.ExternalClocks {
		v, ok, err := u32(n, fmt.Sprintf("external-clk%d", i))
		if err != nil {
			return err
		}
		if ok {
			c.Board.ExternalClocks[i] = uint64(v)
		}
	}
	if _, ok := n.LookProperty("except-src-xtin"); ok {
		c.Board.XtinPresent = false
	}
	if v, ok, err := u32(n, "xin-frequency"); err != nil {
		return err
	} else if ok {
		if v == 0 {
			return fmt.Errorf("%s: xin-frequency must not be zero", n.Name)
		}
		c.Board.XinHz = uint64(v)
	}
	if v, ok, err := u32(n, "handshake-timeout-us"); err != nil {
		return err
	} else if ok {
		c.Wait.Timeout = time.Duration(v) * time.Microsecond
	}
	if v, ok, err := u32(n, "handshake-max-attempts"); err != nil {
		return err
	} else if ok {
		c.Wait.MaxAttempts = int(v)
	}
	return nil
}

func u32(n *dt.Node, name string) (uint32, bool, error) {
	p, ok := n.LookProperty(name)
	if !ok {
		return 0, false, nil
	}
	v, err := p.AsU32()
	if err != nil {
		return 0, false, fmt.Errorf("%s: property %s: %w", n.Name, name, err)
	}
	return v, true, nil
}
