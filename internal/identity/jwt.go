package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/kasiviral/kasiviral-backend/pkg/auth"
	"github.com/kasiviral/kasiviral-backend/pkg/config"
)

// JWTVerifier validates provider-signed HS256 tokens locally.
type JWTVerifier struct {
	cfg config.IdentityConfig
}

// NewJWTVerifier requires the provider's signing secret.
func NewJWTVerifier(cfg config.IdentityConfig) (*JWTVerifier, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, fmt.Errorf("identity jwt secret is required")
	}
	return &JWTVerifier{cfg: cfg}, nil
}

func (v *JWTVerifier) Verify(ctx context.Context, rawToken string) (Principal, error) {
	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	claims, err := auth.ParseToken(v.cfg, rawToken)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	return Principal{
		SubjectID: claims.Subject,
		Email:     claims.Email,
	}, nil
}
