// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// ckcctl inspects and changes TCC802x clocks and power domains.
//
// Usage:
//
//	ckcctl [flags] dump
//	ckcctl [flags] pll <id> <rate>
//	ckcctl [flags] sse <id> on|off
//	ckcctl [flags] bus <domain> <rate>
//	ckcctl [flags] peri <name> <rate> [on|off]
//	ckcctl [flags] power <domain> on|off
//	ckcctl [flags] recover <domain>
//	ckcctl [flags] suspend
//
// Rates take SI suffixes: 800M, 24MHz, 32.768k.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/u-root/u-ckc/config"
	"github.com/u-root/u-ckc/pkg/ckc"
	"github.com/u-root/u-ckc/pkg/ckc/tcc802x"
	"github.com/u-root/u-ckc/pkg/hardware/mem"
	"github.com/u-root/u-ckc/pkg/logger"
	"github.com/u-root/u-ckc/pkg/metric"
)

var (
	dtb     = flag.String("dtb", "", "Flattened device tree to read the board clocks from")
	sim     = flag.Bool("sim", false, "Run against the built-in simulator instead of /dev/mem")
	metrics = flag.String("metrics", "", "Serve /metrics on this address and keep running")
	debug   = flag.Bool("debug", false, "Log debug messages")
	logFile = flag.String("log", config.DefaultConfig.LogFile, "JSON log file, empty for none")
	drop    = flag.Bool("drop", true, "suspend: switch off unused clocks and domains while saved")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] dump|pll|sse|bus|peri|power|recover|suspend ...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger.LogContainer.SetLogFile(*logFile)
	logger.LogContainer.SetDebug(*debug)
	l := logger.LogContainer.GetSimpleLogger()
	defer l.Sync()

	cfg := *config.DefaultConfig
	if *dtb != "" {
		if err := config.LoadDeviceTree(*dtb, &cfg); err != nil {
			log.Fatal(err)
		}
	}

	var m mem.Provider
	if *sim {
		m = tcc802x.NewSimulator()
	} else {
		var err error
		if m, err = mem.OpenDevMem(); err != nil {
			log.Fatal(err)
		}
	}
	c, err := tcc802x.New(m, &cfg, ckc.WithLogger(l))
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	if *metrics != "" {
		mux := http.NewServeMux()
		metric.StartMetrics(mux)
		go func() {
			l.Fatal(http.ListenAndServe(*metrics, mux))
		}()
	}

	if err := run(c, flag.Args()); err != nil {
		log.Fatal(err)
	}

	if *metrics != "" {
		l.Infof("serving metrics on %s", *metrics)
		select {}
	}
}

func parseRate(s string) (uint64, error) {
	v, _, err := humanize.ParseSI(s)
	if err != nil {
		return 0, fmt.Errorf("bad rate %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("bad rate %q: negative", s)
	}
	return uint64(v + 0.5), nil
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("want on or off, got %q", s)
}

func need(args []string, n int, usage string) error {
	if len(args) < n+1 {
		return fmt.Errorf("usage: %s %s", args[0], usage)
	}
	return nil
}

func run(c *ckc.Controller, args []string) error {
	switch args[0] {
	case "dump":
		dump(os.Stdout, c)
		return nil

	case "pll":
		if err := need(args, 2, "<id> <rate>"); err != nil {
			return err
		}
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		hz, err := parseRate(args[2])
		if err != nil {
			return err
		}
		if err := c.PLLSetRate(id, hz); err != nil {
			return err
		}
		got, _ := c.PLLGetRate(id)
		fmt.Printf("pll%d: %s\n", id, ckc.FormatHz(got))

	case "sse":
		if err := need(args, 2, "<id> on|off"); err != nil {
			return err
		}
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		on, err := parseOnOff(args[2])
		if err != nil {
			return err
		}
		return c.PLLSetSpreadSpectrum(id, on)

	case "bus":
		if err := need(args, 2, "<domain> <rate>"); err != nil {
			return err
		}
		d, err := ckc.ParseDomain(args[1])
		if err != nil {
			return err
		}
		hz, err := parseRate(args[2])
		if err != nil {
			return err
		}
		if err := c.BusClockSetRate(d, hz); err != nil {
			return err
		}
		got, _ := c.BusClockGetRate(d)
		fmt.Printf("%s: %s\n", d, ckc.FormatHz(got))

	case "peri":
		if err := need(args, 2, "<name> <rate> [on|off]"); err != nil {
			return err
		}
		id, err := c.PeripheralID(args[1])
		if err != nil {
			return err
		}
		hz, err := parseRate(args[2])
		if err != nil {
			return err
		}
		if err := c.PeripheralSetRate(id, hz); err != nil {
			return err
		}
		if len(args) > 3 {
			on, err := parseOnOff(args[3])
			if err != nil {
				return err
			}
			if on {
				err = c.PeripheralEnable(id)
			} else {
				err = c.PeripheralDisable(id)
			}
			if err != nil {
				return err
			}
		}
		got, _ := c.PeripheralGetRate(id)
		fmt.Printf("%s: %s\n", args[1], ckc.FormatHz(got))

	case "power":
		if err := need(args, 2, "<domain> on|off"); err != nil {
			return err
		}
		d, err := ckc.ParseDomain(args[1])
		if err != nil {
			return err
		}
		on, err := parseOnOff(args[2])
		if err != nil {
			return err
		}
		if err := c.PowerDomainSetPowered(d, on); err != nil {
			return err
		}
		st, _ := c.DomainState(d)
		fmt.Printf("%s: %s\n", d, st)

	case "recover":
		if err := need(args, 1, "<domain>"); err != nil {
			return err
		}
		d, err := ckc.ParseDomain(args[1])
		if err != nil {
			return err
		}
		return c.RecoverDomain(d)

	case "suspend":
		return suspend(os.Stdout, c, *drop)

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}
