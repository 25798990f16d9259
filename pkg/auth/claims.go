package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenPayload captures the data placed in a provider-style access token.
type TokenPayload struct {
	SubjectID string
	Email     string
	Role      string
}

// ProviderClaims are the claims the identity provider signs into access tokens.
// The principal's stable id is the registered "sub" claim.
type ProviderClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
