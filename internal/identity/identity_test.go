package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kasiviral/kasiviral-backend/pkg/auth"
	"github.com/kasiviral/kasiviral-backend/pkg/config"
)

func TestJWTVerifierAcceptsProviderToken(t *testing.T) {
	cfg := config.IdentityConfig{Mode: "jwt", JWTSecret: "secret", Audience: "authenticated"}
	verifier, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token, err := auth.MintToken(cfg, time.Now(), time.Minute, auth.TokenPayload{SubjectID: "u1", Email: "u1@example.com"})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	principal, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if principal.SubjectID != "u1" || principal.Email != "u1@example.com" {
		t.Fatalf("unexpected principal %+v", principal)
	}
}

func TestJWTVerifierRejectsGarbage(t *testing.T) {
	verifier, err := NewJWTVerifier(config.IdentityConfig{JWTSecret: "secret"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if _, err := verifier.Verify(context.Background(), "not-a-jwt"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
}

func TestJWTVerifierHonorsCanceledContext(t *testing.T) {
	verifier, err := NewJWTVerifier(config.IdentityConfig{JWTSecret: "secret"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	if _, err := verifier.Verify(ctx, "token"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestNewRejectsUnknownMode(t *testing.T) {
	if _, err := New(config.IdentityConfig{Mode: "saml"}, nil, nil); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestRemoteVerifierResolvesUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/user" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("apikey") != "anon" {
			t.Errorf("missing apikey header")
		}
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"u1","email":"u1@example.com"}`))
	}))
	defer srv.Close()

	verifier, err := NewRemoteVerifier(RemoteParams{Endpoint: srv.URL + "/", AnonKey: "anon", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new remote verifier: %v", err)
	}

	principal, err := verifier.Verify(context.Background(), "good")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if principal.SubjectID != "u1" || principal.Email != "u1@example.com" {
		t.Fatalf("unexpected principal %+v", principal)
	}

	if _, err := verifier.Verify(context.Background(), "bad"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
}

func TestRemoteVerifierRejectionsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	verifier, err := NewRemoteVerifier(RemoteParams{Endpoint: srv.URL, AnonKey: "anon", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new remote verifier: %v", err)
	}
	for i := 0; i < 10; i++ {
		if _, err := verifier.Verify(context.Background(), "bad"); !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("attempt %d: expected invalid credential, got %v", i, err)
		}
	}
}

func TestRemoteVerifierProviderFailureOpensBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	verifier, err := NewRemoteVerifier(RemoteParams{Endpoint: srv.URL, AnonKey: "anon", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new remote verifier: %v", err)
	}
	for i := 0; i < 8; i++ {
		if _, err := verifier.Verify(context.Background(), "token"); err == nil {
			t.Fatal("expected provider error")
		}
	}
	if got := calls.Load(); got != 5 {
		t.Fatalf("expected breaker to stop calls after 5 failures, got %d", got)
	}
}

func TestRemoteVerifierTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	verifier, err := NewRemoteVerifier(RemoteParams{Endpoint: srv.URL, AnonKey: "anon", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new remote verifier: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := verifier.Verify(ctx, "token"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNewRemoteVerifierRequiresConfig(t *testing.T) {
	if _, err := NewRemoteVerifier(RemoteParams{AnonKey: "anon"}); err == nil {
		t.Fatal("expected endpoint error")
	}
	if _, err := NewRemoteVerifier(RemoteParams{Endpoint: "https://auth.example.com"}); err == nil {
		t.Fatal("expected anon key error")
	}
}
