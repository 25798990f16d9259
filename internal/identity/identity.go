package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/kasiviral/kasiviral-backend/pkg/config"
	"github.com/kasiviral/kasiviral-backend/pkg/logger"
)

// ErrInvalidCredential is returned when the provider rejects a token.
var ErrInvalidCredential = errors.New("invalid credential")

// Principal is the verified identity bound to a request.
type Principal struct {
	SubjectID string
	Email     string
}

// Verifier checks a raw bearer token with the identity provider.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (Principal, error)
}

// New selects the verifier implementation configured by IDENTITY_MODE.
func New(cfg config.IdentityConfig, httpClient *http.Client, logg *logger.Logger) (Verifier, error) {
	switch cfg.NormalizedMode() {
	case config.IdentityModeJWT:
		return NewJWTVerifier(cfg)
	case config.IdentityModeRemote:
		return NewRemoteVerifier(RemoteParams{
			Endpoint:   cfg.Endpoint,
			AnonKey:    cfg.AnonKey,
			HTTPClient: httpClient,
			Logger:     logg,
		})
	default:
		return nil, fmt.Errorf("unsupported identity mode %q", cfg.Mode)
	}
}
