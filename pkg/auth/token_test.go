package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kasiviral/kasiviral-backend/pkg/config"
)

func testIdentityConfig() config.IdentityConfig {
	return config.IdentityConfig{
		JWTSecret: "secret",
		Audience:  "authenticated",
	}
}

func TestMintAndParseToken(t *testing.T) {
	cfg := testIdentityConfig()
	now := time.Now().UTC()

	token, err := MintToken(cfg, now, 30*time.Minute, TokenPayload{SubjectID: "u1", Email: "u1@example.com", Role: "authenticated"})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	claims, err := ParseToken(cfg, token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "u1" {
		t.Fatalf("expected sub u1, got %q", claims.Subject)
	}
	if claims.Email != "u1@example.com" {
		t.Fatalf("expected email preserved, got %q", claims.Email)
	}

	exp := now.Add(30 * time.Minute)
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v", exp, claims.ExpiresAt.UTC())
	}
}

func TestParseTokenInvalidSignature(t *testing.T) {
	cfg := testIdentityConfig()
	token, err := MintToken(cfg, time.Now(), time.Minute, TokenPayload{SubjectID: "u1"})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	other := cfg
	other.JWTSecret = "different"
	if _, err := ParseToken(other, token); err == nil {
		t.Fatal("expected invalid signature error")
	}
}

func TestParseTokenExpired(t *testing.T) {
	cfg := testIdentityConfig()
	token, err := MintToken(cfg, time.Now().Add(-time.Hour), 15*time.Minute, TokenPayload{SubjectID: "u1"})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	_, err = ParseToken(cfg, token)
	if err == nil {
		t.Fatal("expected expiration error")
	}
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseTokenWrongAudience(t *testing.T) {
	cfg := testIdentityConfig()
	minter := cfg
	minter.Audience = "anon"
	token, err := MintToken(minter, time.Now(), time.Minute, TokenPayload{SubjectID: "u1"})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	if _, err := ParseToken(cfg, token); !errors.Is(err, jwt.ErrTokenInvalidAudience) {
		t.Fatalf("expected audience error, got %v", err)
	}
}

func TestParseTokenRequiresSubject(t *testing.T) {
	cfg := testIdentityConfig()
	claims := ProviderClaims{RegisteredClaims: jwt.RegisteredClaims{
		Audience:  jwt.ClaimStrings{cfg.Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := ParseToken(cfg, token); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected missing subject error, got %v", err)
	}
}

func TestMintTokenRejectsBadInput(t *testing.T) {
	cfg := testIdentityConfig()
	if _, err := MintToken(cfg, time.Now(), time.Minute, TokenPayload{}); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected missing subject error, got %v", err)
	}
	if _, err := MintToken(cfg, time.Now(), 0, TokenPayload{SubjectID: "u1"}); err == nil {
		t.Fatal("expected ttl error")
	}
	if _, err := MintToken(config.IdentityConfig{}, time.Now(), time.Minute, TokenPayload{SubjectID: "u1"}); err == nil {
		t.Fatal("expected secret error")
	}
}
