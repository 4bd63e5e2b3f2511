// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gogama/httpflow"
	"github.com/gogama/httpflow/request"
	"github.com/gogama/httpflow/timings"
)

// Metrics is an event handler maintaining Prometheus metrics about
// executions.
type Metrics struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
	timeouts *prometheus.CounterVec
	active   *prometheus.GaugeVec
}

// NewMetrics registers the execution metrics with reg and returns a
// handler updating them. If reg is nil, prometheus.DefaultRegisterer is
// used.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "httpflow_execution_duration_seconds",
				Help:    "Duration of successful executions in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "status_code", "host"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "httpflow_execution_failures_total",
				Help: "Total number of executions that ended in an error.",
			},
			[]string{"method", "host", "code"},
		),
		timeouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "httpflow_execution_timeouts_total",
				Help: "Total number of executions that timed out.",
			},
			[]string{"method", "host"},
		),
		active: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "httpflow_active_executions",
				Help: "Number of executions in flight.",
			},
			[]string{"host"},
		),
	}
}

// Handle updates the metrics for evt.
func (m *Metrics) Handle(evt httpflow.Event, e *request.Execution) {
	h := host(e.URI)
	switch evt {
	case httpflow.BeforeExecutionStart:
		m.active.WithLabelValues(h).Inc()
	case httpflow.AfterTimeout:
		m.timeouts.WithLabelValues(e.Method, h).Inc()
	case httpflow.AfterExecutionEnd:
		m.active.WithLabelValues(h).Dec()
		if e.Err != nil {
			m.failures.WithLabelValues(e.Method, h, failureCode(e.Err)).Inc()
			return
		}
		m.duration.WithLabelValues(e.Method, strconv.Itoa(e.StatusCode()), h).Observe(e.Duration().Seconds())
	}
}

func failureCode(err error) string {
	var te *httpflow.TransportError
	var ae *httpflow.AuthenticationError
	switch {
	case errors.As(err, &te):
		return te.Code.String()
	case errors.As(err, &ae):
		return "LoginDenied"
	default:
		return "Unknown"
	}
}

// A TimingsCollector is a prometheus.Collector exporting the phase
// statistics of a timer, typically a *httpflow.Client.
type TimingsCollector struct {
	timer httpflow.Timer

	count    *prometheus.Desc
	mean     *prometheus.Desc
	min      *prometheus.Desc
	max      *prometheus.Desc
	variance *prometheus.Desc
}

// NewTimingsCollector returns a collector reading t on every scrape.
// The constant labels are attached to every metric.
func NewTimingsCollector(t httpflow.Timer, constLabels prometheus.Labels) *TimingsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("httpflow_phase_"+name, help, []string{"phase"}, constLabels)
	}
	return &TimingsCollector{
		timer:    t,
		count:    desc("samples", "Number of successful executions measured."),
		mean:     desc("mean_seconds", "Mean offset of the phase in seconds."),
		min:      desc("min_seconds", "Minimum offset of the phase in seconds."),
		max:      desc("max_seconds", "Maximum offset of the phase in seconds."),
		variance: desc("variance_seconds2", "Population variance of the phase offset in seconds squared."),
	}
}

// Describe implements prometheus.Collector.
func (c *TimingsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.count
	ch <- c.mean
	ch <- c.min
	ch <- c.max
	ch <- c.variance
}

// Collect implements prometheus.Collector.
func (c *TimingsCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.timer.Timings()
	for _, p := range timings.Phases() {
		s := snap.Get(p)
		name := p.Name()
		ch <- prometheus.MustNewConstMetric(c.count, prometheus.CounterValue, float64(s.Count), name)
		ch <- prometheus.MustNewConstMetric(c.mean, prometheus.GaugeValue, s.Mean.Seconds(), name)
		ch <- prometheus.MustNewConstMetric(c.min, prometheus.GaugeValue, s.Min.Seconds(), name)
		ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, s.Max.Seconds(), name)
		ch <- prometheus.MustNewConstMetric(c.variance, prometheus.GaugeValue, s.Variance, name)
	}
}
