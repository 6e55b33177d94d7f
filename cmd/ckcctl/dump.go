// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/u-root/u-ckc/pkg/ckc"
)

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// lines renders the clock state one line per clock, so two dumps can be
// compared line by line.
func lines(c *ckc.Controller) []string {
	var ls []string
	r := c.Sources()
	for s := ckc.Source(0); s < ckc.NumSources; s++ {
		ls = append(ls, fmt.Sprintf("source\t%s\t%s\t", s, ckc.FormatHz(r[s])))
	}
	for i, p := range c.SoC().PLLs {
		hz, _ := c.PLLGetRate(i)
		en, _ := c.IsPLLEnabled(i)
		ls = append(ls, fmt.Sprintf("pll\t%s\t%s\t%s", p.Name, ckc.FormatHz(hz), onOff(en)))
	}
	for d := ckc.Domain(0); d < ckc.NumDomains; d++ {
		hz, _ := c.BusClockGetRate(d)
		en, _ := c.IsBusClockEnabled(d)
		st, _ := c.DomainState(d)
		stuck, _ := c.DomainStuck(d)
		power := st.String()
		if stuck {
			power = "stuck"
		}
		ls = append(ls, fmt.Sprintf("bus\t%s\t%s\t%s, power %s", d, ckc.FormatHz(hz), onOff(en), power))
	}
	for i, p := range c.SoC().Peripherals {
		hz, _ := c.PeripheralGetRate(i)
		en, _ := c.IsPeripheralEnabled(i)
		ls = append(ls, fmt.Sprintf("peri\t%s\t%s\t%s", p.Name, ckc.FormatHz(hz), onOff(en)))
	}
	return ls
}

func dump(w io.Writer, c *ckc.Controller) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, l := range lines(c) {
		fmt.Fprintln(tw, l)
	}
	tw.Flush()
}

// suspend saves the clock state, optionally dropping unused clocks, then
// restores it and reports every clock that did not come back the same.
func suspend(w io.Writer, c *ckc.Controller, drop bool) error {
	before := lines(c)
	s, err := c.SaveState(drop)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "saved snapshot %d\n", s.ID)
	if drop {
		dump(w, c)
	}
	if err := c.RestoreState(s); err != nil {
		return err
	}
	after := lines(c)
	changed := 0
	for i := range before {
		if before[i] != after[i] {
			fmt.Fprintf(w, "- %s\n+ %s\n", before[i], after[i])
			changed++
		}
	}
	fmt.Fprintf(w, "restored snapshot %d, %d clocks differ\n", s.ID, changed)
	return nil
}
