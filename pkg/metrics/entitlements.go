package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EntitlementGauges publishes the latest entitlement audit snapshot.
type EntitlementGauges struct {
	byStatus *prometheus.GaugeVec
	lapsed   prometheus.Gauge
}

// NewEntitlementGauges registers the audit gauges on the provided registerer.
func NewEntitlementGauges(reg prometheus.Registerer) *EntitlementGauges {
	if reg == nil {
		return &EntitlementGauges{}
	}
	byStatus := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "entitlements_by_status",
		Help: "Stored entitlements grouped by status.",
	}, []string{"status"})
	lapsed := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "entitlements_active_lapsed",
		Help: "Entitlements with status active whose expiry has passed.",
	})
	reg.MustRegister(byStatus, lapsed)
	return &EntitlementGauges{byStatus: byStatus, lapsed: lapsed}
}

// SetStatusCount sets the gauge for a single status.
func (g *EntitlementGauges) SetStatusCount(status string, count int64) {
	if g == nil || g.byStatus == nil {
		return
	}
	g.byStatus.WithLabelValues(normalizeLabel(status)).Set(float64(count))
}

// SetLapsed sets the active-but-expired gauge.
func (g *EntitlementGauges) SetLapsed(count int64) {
	if g == nil || g.lapsed == nil {
		return
	}
	g.lapsed.Set(float64(count))
}
