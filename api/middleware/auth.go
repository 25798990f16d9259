package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kasiviral/kasiviral-backend/api/responses"
	"github.com/kasiviral/kasiviral-backend/internal/identity"
	pkgerrors "github.com/kasiviral/kasiviral-backend/pkg/errors"
	"github.com/kasiviral/kasiviral-backend/pkg/logger"
	"github.com/kasiviral/kasiviral-backend/pkg/metrics"
)

const bearerPrefix = "bearer "

// Auth verifies the bearer credential with the identity provider and binds the
// principal to the request context. Missing credentials never reach the verifier.
func Auth(verifier identity.Verifier, timeout time.Duration, access *metrics.AccessMetrics, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				access.Record(metrics.StageAuth, metrics.OutcomeDenied)
				noteDenial(r.Context(), "missing_credentials")
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			if verifier == nil {
				access.Record(metrics.StageAuth, metrics.OutcomeUnavailable)
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "identity verifier unavailable"))
				return
			}

			verifyCtx := r.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				verifyCtx, cancel = context.WithTimeout(verifyCtx, timeout)
				defer cancel()
			}

			principal, err := verifier.Verify(verifyCtx, token)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					access.Record(metrics.StageAuth, metrics.OutcomeUnavailable)
					noteDenial(r.Context(), "verification_timeout")
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "identity verification timed out"))
					return
				}
				access.Record(metrics.StageAuth, metrics.OutcomeDenied)
				noteDenial(r.Context(), "invalid_credentials")
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid credentials"))
				return
			}
			if strings.TrimSpace(principal.SubjectID) == "" {
				access.Record(metrics.StageAuth, metrics.OutcomeDenied)
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials"))
				return
			}

			access.Record(metrics.StageAuth, metrics.OutcomeAllowed)
			ctx := WithPrincipal(r.Context(), principal.SubjectID, principal.Email)
			if logg != nil {
				ctx = logg.WithEmailDomain(logg.WithSubjectID(ctx, principal.SubjectID), principal.Email)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	raw := strings.TrimSpace(header)
	if len(raw) < len(bearerPrefix) || !strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(raw[len(bearerPrefix):])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}
