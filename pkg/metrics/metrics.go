// Package metrics provides Prometheus counters for the form engine. A nil
// *Collector is valid and records nothing, so components can accept one
// unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeDiscarded = "discarded"
	OutcomeInvalid   = "invalid"
	OutcomeBusy      = "busy"
)

// Collector holds the engine metrics.
type Collector struct {
	OptionFetches  *prometheus.CounterVec
	RecordFetches  *prometheus.CounterVec
	Submits        *prometheus.CounterVec
	SubmitDuration *prometheus.HistogramVec
	InFlight       prometheus.Gauge
}

// New creates a collector and registers it with reg. A nil registerer skips
// registration, which keeps tests free of global state.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		OptionFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scmform",
				Name:      "option_fetches_total",
				Help:      "Remote option list fetches by field and outcome",
			},
			[]string{"form", "field", "outcome"},
		),
		RecordFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scmform",
				Name:      "record_fetches_total",
				Help:      "Edit-mode record fetches by outcome",
			},
			[]string{"form", "outcome"},
		),
		Submits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scmform",
				Name:      "submits_total",
				Help:      "Submit attempts by mode and outcome",
			},
			[]string{"form", "mode", "outcome"},
		),
		SubmitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "scmform",
				Name:      "submit_duration_seconds",
				Help:      "Time spent waiting on create/update calls",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"form", "mode"},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "scmform",
				Name:      "fetches_in_flight",
				Help:      "Remote fetches currently awaiting a response",
			},
		),
	}
	if reg == nil {
		return c, nil
	}
	for _, collector := range []prometheus.Collector{c.OptionFetches, c.RecordFetches, c.Submits, c.SubmitDuration, c.InFlight} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveOptionFetch counts one option fetch.
func (c *Collector) ObserveOptionFetch(form, field, outcome string) {
	if c == nil {
		return
	}
	c.OptionFetches.WithLabelValues(form, field, outcome).Inc()
}

// ObserveRecordFetch counts one record fetch.
func (c *Collector) ObserveRecordFetch(form, outcome string) {
	if c == nil {
		return
	}
	c.RecordFetches.WithLabelValues(form, outcome).Inc()
}

// ObserveSubmit counts one submit attempt and, when seconds > 0, its latency.
func (c *Collector) ObserveSubmit(form, mode, outcome string, seconds float64) {
	if c == nil {
		return
	}
	c.Submits.WithLabelValues(form, mode, outcome).Inc()
	if seconds > 0 {
		c.SubmitDuration.WithLabelValues(form, mode).Observe(seconds)
	}
}

// FetchStarted bumps the in-flight gauge; call the returned func when done.
func (c *Collector) FetchStarted() func() {
	if c == nil {
		return func() {}
	}
	c.InFlight.Inc()
	return c.InFlight.Dec
}
