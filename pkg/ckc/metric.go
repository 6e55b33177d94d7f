// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ckc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/u-root/u-ckc/pkg/metric"
)

var (
	solverResults = metric.CounterVec(metric.MetricOpts{
		Namespace: "ckc",
		Subsystem: "solver",
		Name:      "results_total",
		Help:      "Clock parameter searches by solver and outcome",
	}, []string{"solver", "result"})

	powerTransitions = metric.CounterVec(metric.MetricOpts{
		Namespace: "ckc",
		Subsystem: "power",
		Name:      "transitions_total",
		Help:      "Power domain sequences by domain, direction and outcome",
	}, []string{"domain", "direction", "result"})

	handshakeTimeouts = metric.CounterVec(metric.MetricOpts{
		Namespace: "ckc",
		Subsystem: "power",
		Name:      "handshake_timeouts_total",
		Help:      "Hardware handshakes that did not complete in time",
	}, []string{"domain", "step"})

	stuckDomains = metric.GaugeVec(metric.MetricOpts{
		Namespace: "ckc",
		Subsystem: "power",
		Name:      "stuck",
		Help:      "1 while a power domain needs recovery",
	}, []string{"domain"})

	handshakeLatency = metric.Histogram(metric.MetricOpts{
		Namespace: "ckc",
		Subsystem: "handshake",
		Name:      "duration_seconds",
		Help:      "Time until a polled status bit settled",
	}, prometheus.ExponentialBuckets(1e-6, 4, 10))

	pllRelockRetries = metric.CounterVec(metric.MetricOpts{
		Namespace: "ckc",
		Subsystem: "pll",
		Name:      "relock_retries_total",
		Help:      "Dedicated PLL restores that were retried one Hz higher",
	}, []string{"domain"})

	snapshotOps = metric.CounterVec(metric.MetricOpts{
		Namespace: "ckc",
		Subsystem: "snapshot",
		Name:      "operations_total",
		Help:      "Clock state saves and restores by outcome",
	}, []string{"op", "result"})
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func solverResult(solver string, err error) {
	solverResults.WithLabelValues(solver, result(err)).Inc()
}
