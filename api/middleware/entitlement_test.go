package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkgerrors "github.com/kasiviral/kasiviral-backend/pkg/errors"
	"github.com/kasiviral/kasiviral-backend/api/responses"
)

type stubChecker struct {
	entitled bool
	err      error
	delay    time.Duration
	calls    int
	subject  string
}

func (s *stubChecker) IsEntitled(ctx context.Context, subjectID string) (bool, error) {
	s.calls++
	s.subject = subjectID
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return s.entitled, s.err
}

func entitlementRequest(subject string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/threads/generate", nil)
	if subject != "" {
		req = req.WithContext(WithPrincipal(req.Context(), subject, subject+"@example.com"))
	}
	return req
}

func TestRequireEntitlementAllowsEntitledSubject(t *testing.T) {
	checker := &stubChecker{entitled: true}
	reached := false
	handler := RequireEntitlement(checker, time.Second, nil, nil)(okHandler(&reached))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, entitlementRequest("u1"))

	if resp.Code != http.StatusOK || !reached {
		t.Fatalf("expected handler to run, status %d", resp.Code)
	}
	if checker.subject != "u1" {
		t.Fatalf("expected checker to receive u1, got %q", checker.subject)
	}
}

func TestRequireEntitlementDeniesWithReason(t *testing.T) {
	checker := &stubChecker{entitled: false}
	reached := false
	handler := RequireEntitlement(checker, time.Second, nil, nil)(okHandler(&reached))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, entitlementRequest("u1"))

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
	if reached {
		t.Fatal("handler must not run without an entitlement")
	}

	var body responses.ErrorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != string(pkgerrors.CodeSubscriptionRequired) {
		t.Fatalf("unexpected code %s", body.Error.Code)
	}
	details, ok := body.Error.Details.(map[string]any)
	if !ok || details["reason"] != ReasonSubscriptionRequired {
		t.Fatalf("expected reason detail, got %#v", body.Error.Details)
	}
}

func TestRequireEntitlementStoreFailureIsUnavailable(t *testing.T) {
	cases := map[string]error{
		"plain":   errors.New("connection refused"),
		"wrapped": pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, errors.New("timeout"), "lookup entitlement"),
	}
	for name, checkErr := range cases {
		t.Run(name, func(t *testing.T) {
			checker := &stubChecker{entitled: true, err: checkErr}
			reached := false
			handler := RequireEntitlement(checker, time.Second, nil, nil)(okHandler(&reached))

			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, entitlementRequest("u1"))

			if resp.Code != http.StatusServiceUnavailable {
				t.Fatalf("expected 503 got %d", resp.Code)
			}
			if code := decodeErrorCode(t, resp); code != string(pkgerrors.CodeStoreUnavailable) {
				t.Fatalf("expected STORE_UNAVAILABLE got %s", code)
			}
			if reached {
				t.Fatal("handler must not run on store failure")
			}
		})
	}
}

func TestRequireEntitlementTimeoutFailsClosed(t *testing.T) {
	checker := &stubChecker{entitled: true, delay: time.Second}
	reached := false
	handler := RequireEntitlement(checker, 10*time.Millisecond, nil, nil)(okHandler(&reached))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, entitlementRequest("u1"))

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	if reached {
		t.Fatal("handler must not run after a timeout")
	}
}

func TestRequireEntitlementWithoutPrincipal(t *testing.T) {
	checker := &stubChecker{entitled: true}
	reached := false
	handler := RequireEntitlement(checker, time.Second, nil, nil)(okHandler(&reached))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, entitlementRequest(""))

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if checker.calls != 0 {
		t.Fatal("checker must not be called without a principal")
	}
}
