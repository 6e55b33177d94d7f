// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metric

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pt "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounterVecExposed(t *testing.T) {
	c := CounterVec(MetricOpts{
		Namespace: "ckctest",
		Subsystem: "metric",
		Name:      "events_total",
	}, []string{"kind"})
	c.WithLabelValues("a").Inc()
	c.WithLabelValues("a").Inc()
	if v := pt.ToFloat64(c.WithLabelValues("a")); v != 2 {
		t.Errorf("counter = %v, want 2", v)
	}

	mux := http.NewServeMux()
	StartMetrics(mux)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rr.Body.String(), `ckctest_metric_events_total{kind="a"} 2`) {
		t.Errorf("/metrics does not expose the counter:\n%s", rr.Body.String())
	}
}
