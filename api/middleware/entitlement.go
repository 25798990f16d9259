package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/kasiviral/kasiviral-backend/api/responses"
	pkgerrors "github.com/kasiviral/kasiviral-backend/pkg/errors"
	"github.com/kasiviral/kasiviral-backend/pkg/logger"
	"github.com/kasiviral/kasiviral-backend/pkg/metrics"
)

// ReasonSubscriptionRequired is the machine-readable reason on entitlement denials.
const ReasonSubscriptionRequired = "SUBSCRIPTION_REQUIRED"

// EntitlementChecker answers the live entitlement predicate.
type EntitlementChecker interface {
	IsEntitled(ctx context.Context, subjectID string) (bool, error)
}

// RequireEntitlement rejects principals without a live entitlement. Lookup
// failures and timeouts fail closed with a 503.
func RequireEntitlement(checker EntitlementChecker, timeout time.Duration, access *metrics.AccessMetrics, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subjectID := SubjectIDFromContext(r.Context())
			if subjectID == "" {
				access.Record(metrics.StageEntitlement, metrics.OutcomeDenied)
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			if checker == nil {
				access.Record(metrics.StageEntitlement, metrics.OutcomeUnavailable)
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeStoreUnavailable, "entitlement checker unavailable"))
				return
			}

			checkCtx := r.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				checkCtx, cancel = context.WithTimeout(checkCtx, timeout)
				defer cancel()
			}

			entitled, err := checker.IsEntitled(checkCtx, subjectID)
			if err == nil && checkCtx.Err() != nil {
				err = checkCtx.Err()
			}
			if err != nil {
				access.Record(metrics.StageEntitlement, metrics.OutcomeUnavailable)
				noteDenial(r.Context(), "entitlement_check_failed")
				if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStoreUnavailable {
					err = pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "entitlement check failed")
				}
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if !entitled {
				access.Record(metrics.StageEntitlement, metrics.OutcomeDenied)
				noteDenial(r.Context(), ReasonSubscriptionRequired)
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeSubscriptionRequired, "an active subscription is required").
					WithDetails(map[string]any{"reason": ReasonSubscriptionRequired}))
				return
			}

			access.Record(metrics.StageEntitlement, metrics.OutcomeAllowed)
			next.ServeHTTP(w, r)
		})
	}
}
