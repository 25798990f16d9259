package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAccessMetricsRecordsByStageAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAccessMetrics(reg)

	m.Record(StageAuth, OutcomeAllowed)
	m.Record(StageAuth, OutcomeAllowed)
	m.Record(StageEntitlement, OutcomeDenied)

	if got := testutil.ToFloat64(m.decisions.WithLabelValues(StageAuth, OutcomeAllowed)); got != 2 {
		t.Fatalf("expected 2 auth allowed, got %f", got)
	}
	if got := testutil.ToFloat64(m.decisions.WithLabelValues(StageEntitlement, OutcomeDenied)); got != 1 {
		t.Fatalf("expected 1 entitlement denied, got %f", got)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	NewAccessMetrics(nil).Record(StageAuth, OutcomeDenied)
	NewEntitlementGauges(nil).SetLapsed(3)

	var m *AccessMetrics
	m.Record(StageAuth, OutcomeDenied)
}

func TestEntitlementGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	g := NewEntitlementGauges(reg)

	g.SetStatusCount("active", 4)
	g.SetStatusCount("active", 2)
	g.SetStatusCount("inactive", 7)
	g.SetLapsed(1)

	if got := testutil.ToFloat64(g.byStatus.WithLabelValues("active")); got != 2 {
		t.Fatalf("expected gauge to be overwritten to 2, got %f", got)
	}
	if got := testutil.ToFloat64(g.byStatus.WithLabelValues("inactive")); got != 7 {
		t.Fatalf("expected inactive 7, got %f", got)
	}
	if got := testutil.ToFloat64(g.lapsed); got != 1 {
		t.Fatalf("expected lapsed 1, got %f", got)
	}
}
