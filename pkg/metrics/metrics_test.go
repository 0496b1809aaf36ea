package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/goliatone/go-scmform/pkg/metrics"
)

func TestCollectorCounts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c, err := metrics.New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.ObserveOptionFetch("Student", "role", metrics.OutcomeFailure)
	c.ObserveOptionFetch("Student", "role", metrics.OutcomeFailure)
	c.ObserveSubmit("Student", "create", metrics.OutcomeSuccess, 0.2)
	done := c.FetchStarted()

	if got := testutil.ToFloat64(c.OptionFetches.WithLabelValues("Student", "role", metrics.OutcomeFailure)); got != 2 {
		t.Fatalf("option fetch failures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Submits.WithLabelValues("Student", "create", metrics.OutcomeSuccess)); got != 1 {
		t.Fatalf("submits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.InFlight); got != 1 {
		t.Fatalf("in flight = %v, want 1", got)
	}
	done()
	if got := testutil.ToFloat64(c.InFlight); got != 0 {
		t.Fatalf("in flight after done = %v, want 0", got)
	}

	if _, err := metrics.New(reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	t.Parallel()

	var c *metrics.Collector
	c.ObserveOptionFetch("f", "x", metrics.OutcomeSuccess)
	c.ObserveRecordFetch("f", metrics.OutcomeFailure)
	c.ObserveSubmit("f", "update", metrics.OutcomeBusy, 0)
	c.FetchStarted()()
}
