package cron

import (
	"context"
	"fmt"

	"github.com/kasiviral/kasiviral-backend/internal/entitlements"
	"github.com/kasiviral/kasiviral-backend/pkg/enums"
	"github.com/kasiviral/kasiviral-backend/pkg/logger"
	"github.com/kasiviral/kasiviral-backend/pkg/metrics"
	"go.uber.org/multierr"
)

const entitlementAuditJobName = "entitlement-audit"

type entitlementAuditor interface {
	Audit(ctx context.Context) (entitlements.StatusCounts, error)
}

// EntitlementAuditParams wires the audit job.
type EntitlementAuditParams struct {
	Logger  *logger.Logger
	Auditor entitlementAuditor
	Gauges  *metrics.EntitlementGauges
}

// EntitlementAuditJob publishes entitlement counts per status plus the number
// of active rows past expiry. It never writes: expiry is evaluated live.
type EntitlementAuditJob struct {
	logg    *logger.Logger
	auditor entitlementAuditor
	gauges  *metrics.EntitlementGauges
}

// NewEntitlementAuditJob builds the audit job.
func NewEntitlementAuditJob(params EntitlementAuditParams) (*EntitlementAuditJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Auditor == nil {
		return nil, fmt.Errorf("entitlement auditor required")
	}
	return &EntitlementAuditJob{
		logg:    params.Logger,
		auditor: params.Auditor,
		gauges:  params.Gauges,
	}, nil
}

func (j *EntitlementAuditJob) Name() string { return entitlementAuditJobName }

func (j *EntitlementAuditJob) Run(ctx context.Context) error {
	counts, err := j.auditor.Audit(ctx)
	if err != nil {
		return fmt.Errorf("audit entitlements: %w", err)
	}

	var errs error
	fields := map[string]any{"active_lapsed": counts.ActiveLapsed}
	known := map[enums.EntitlementStatus]struct{}{}
	for _, status := range enums.EntitlementStatuses() {
		known[status] = struct{}{}
		count := counts.ByStatus[status]
		j.gauges.SetStatusCount(string(status), count)
		fields["status_"+string(status)] = count
	}
	for status, count := range counts.ByStatus {
		if _, ok := known[status]; !ok && count > 0 {
			errs = multierr.Append(errs, fmt.Errorf("%d entitlements with unknown status %q", count, status))
		}
	}
	if counts.ActiveLapsed < 0 {
		errs = multierr.Append(errs, fmt.Errorf("negative lapsed count %d", counts.ActiveLapsed))
	} else {
		j.gauges.SetLapsed(counts.ActiveLapsed)
	}

	j.logg.Info(j.logg.WithFields(ctx, fields), "entitlement audit complete")
	return errs
}
