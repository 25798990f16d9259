package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Access decision stages.
const (
	StageAuth        = "auth"
	StageEntitlement = "entitlement"
)

// Access decision outcomes.
const (
	OutcomeAllowed     = "allowed"
	OutcomeDenied      = "denied"
	OutcomeUnavailable = "unavailable"
)

// AccessMetrics counts request authorization decisions.
type AccessMetrics struct {
	decisions *prometheus.CounterVec
}

// NewAccessMetrics registers the access decision counter on the provided registerer.
func NewAccessMetrics(reg prometheus.Registerer) *AccessMetrics {
	if reg == nil {
		return &AccessMetrics{}
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "access_decisions_total",
		Help: "Request authorization decisions by stage and outcome.",
	}, []string{"stage", "outcome"})
	reg.MustRegister(decisions)
	return &AccessMetrics{decisions: decisions}
}

// Record increments the counter for the stage/outcome pair.
func (a *AccessMetrics) Record(stage, outcome string) {
	if a == nil || a.decisions == nil {
		return
	}
	a.decisions.WithLabelValues(normalizeLabel(stage), normalizeLabel(outcome)).Inc()
}
