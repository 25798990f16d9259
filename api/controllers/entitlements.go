package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/kasiviral/kasiviral-backend/api/middleware"
	"github.com/kasiviral/kasiviral-backend/api/responses"
	"github.com/kasiviral/kasiviral-backend/api/validators"
	"github.com/kasiviral/kasiviral-backend/internal/entitlements"
	"github.com/kasiviral/kasiviral-backend/pkg/db/models"
	pkgerrors "github.com/kasiviral/kasiviral-backend/pkg/errors"
	"github.com/kasiviral/kasiviral-backend/pkg/logger"
)

type activateRequest struct {
	Plan      string    `json:"plan" validate:"required,plan"`
	ExpiresAt time.Time `json:"expiresAt" validate:"required"`
}

// ensureDefault provisions under the entitlement check budget. A store that
// does not answer in time fails closed as STORE_UNAVAILABLE.
func ensureDefault(ctx context.Context, svc entitlements.Service, subjectID string, timeout time.Duration) (*models.Entitlement, bool, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	row, created, err := svc.EnsureDefault(ctx, subjectID)
	if err != nil && pkgerrors.As(err) == nil {
		err = pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "provision entitlement")
	}
	return row, created, err
}

// EntitlementMe returns the caller's entitlement, provisioning the default
// inactive row on first sight.
func EntitlementMe(svc entitlements.Service, timeout time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}
		subjectID := middleware.SubjectIDFromContext(r.Context())
		if subjectID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		row, _, err := ensureDefault(r.Context(), svc, subjectID, timeout)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, svc.View(*row))
	}
}

// EntitlementActivate is the development shortcut that activates the caller
// directly. Production activation arrives through the billing webhook.
func EntitlementActivate(svc entitlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}
		subjectID := middleware.SubjectIDFromContext(r.Context())
		if subjectID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var body activateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		row, err := svc.Activate(r.Context(), subjectID, entitlements.ActivateInput{
			Plan:      body.Plan,
			ExpiresAt: body.ExpiresAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithField(r.Context(), "plan", body.Plan), "entitlement activated via shortcut")
		}
		responses.WriteSuccess(w, svc.View(*row))
	}
}
