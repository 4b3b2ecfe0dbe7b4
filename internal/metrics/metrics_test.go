package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	done := m.Start()
	if got := testutil.ToFloat64(m.inFlight); got != 1 {
		t.Fatalf("in flight = %v, want 1", got)
	}
	done("EFHK", "ok")
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Fatalf("in flight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.Renders().WithLabelValues("EFHK", "ok")); got != 1 {
		t.Fatalf("renders = %v, want 1", got)
	}

	m.Start()("", "parse")
	if got := testutil.ToFloat64(m.Renders().WithLabelValues("unknown", "parse")); got != 1 {
		t.Fatalf("renders unknown = %v, want 1", got)
	}

	m.BackgroundFailed("SE")
	if got := testutil.ToFloat64(m.BackgroundFailures().WithLabelValues("SE")); got != 1 {
		t.Fatalf("background failures = %v", got)
	}

	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Fatalf("gather = %d, %v", n, err)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.Start()("x", "ok")
	m.BackgroundFailed("x")
}
