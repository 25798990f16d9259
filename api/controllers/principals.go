package controllers

import (
	"net/http"
	"time"

	"github.com/kasiviral/kasiviral-backend/api/middleware"
	"github.com/kasiviral/kasiviral-backend/api/responses"
	"github.com/kasiviral/kasiviral-backend/internal/entitlements"
	pkgerrors "github.com/kasiviral/kasiviral-backend/pkg/errors"
	"github.com/kasiviral/kasiviral-backend/pkg/logger"
)

type registerResponse struct {
	Entitlement       entitlements.EntitlementView `json:"entitlement"`
	AlreadyRegistered bool                         `json:"alreadyRegistered"`
}

// PrincipalRegister provisions the caller's default entitlement. Repeated
// calls are safe and report alreadyRegistered.
func PrincipalRegister(svc entitlements.Service, timeout time.Duration, logg *logger.Logger) http.HandlerFunc {
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

		row, created, err := ensureDefault(r.Context(), svc, subjectID, timeout)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := registerResponse{
			Entitlement:       svc.View(*row),
			AlreadyRegistered: !created,
		}
		if created {
			if logg != nil {
				logg.Info(r.Context(), "principal registered")
			}
			responses.WriteSuccessStatus(w, http.StatusCreated, payload)
			return
		}
		responses.WriteSuccess(w, payload)
	}
}
