package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kasiviral/kasiviral-backend/api/middleware"
	"github.com/kasiviral/kasiviral-backend/internal/entitlements"
	"github.com/kasiviral/kasiviral-backend/pkg/db/models"
	"github.com/kasiviral/kasiviral-backend/pkg/enums"
	pkgerrors "github.com/kasiviral/kasiviral-backend/pkg/errors"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubEntitlementService struct {
	row         *models.Entitlement
	created     bool
	err         error
	ensureCalls int
	activated   *entitlements.ActivateInput
	// hang blocks EnsureDefault until its context ends.
	hang bool
}

func (s *stubEntitlementService) IsEntitled(ctx context.Context, subjectID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.row != nil && entitlements.Entitled(*s.row, fixedNow), nil
}

func (s *stubEntitlementService) EnsureDefault(ctx context.Context, subjectID string) (*models.Entitlement, bool, error) {
	s.ensureCalls++
	if s.hang {
		<-ctx.Done()
		return nil, false, ctx.Err()
	}
	if s.err != nil {
		return nil, false, s.err
	}
	return s.row, s.created, nil
}

func (s *stubEntitlementService) Activate(ctx context.Context, subjectID string, input entitlements.ActivateInput) (*models.Entitlement, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.activated = &input
	return &models.Entitlement{
		SubjectID: subjectID,
		Plan:      enums.Plan(input.Plan),
		Status:    enums.EntitlementStatusActive,
		ExpiresAt: input.ExpiresAt,
	}, nil
}

func (s *stubEntitlementService) Cancel(ctx context.Context, subjectID string) (*models.Entitlement, error) {
	return nil, s.err
}

func (s *stubEntitlementService) Audit(ctx context.Context) (entitlements.StatusCounts, error) {
	return entitlements.StatusCounts{}, s.err
}

func (s *stubEntitlementService) View(e models.Entitlement) entitlements.EntitlementView {
	return entitlements.View(e, fixedNow)
}

func inactiveRow(subject string) *models.Entitlement {
	return &models.Entitlement{
		SubjectID: subject,
		Plan:      enums.PlanMonthly,
		Status:    enums.EntitlementStatusInactive,
		ExpiresAt: fixedNow.Add(30 * 24 * time.Hour),
	}
}

func authed(req *http.Request, subject string) *http.Request {
	return req.WithContext(middleware.WithPrincipal(req.Context(), subject, subject+"@example.com"))
}

type viewEnvelope struct {
	Data entitlements.EntitlementView `json:"data"`
}

func TestEntitlementMeProvisionsAndReturnsView(t *testing.T) {
	svc := &stubEntitlementService{row: inactiveRow("u1"), created: true}
	rec := httptest.NewRecorder()
	EntitlementMe(svc, 0, nil).ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/entitlement/me", nil), "u1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var env viewEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Status != enums.EntitlementStatusInactive || env.Data.IsActive {
		t.Fatalf("unexpected view %+v", env.Data)
	}
	if env.Data.Plan != enums.PlanMonthly {
		t.Fatalf("expected monthly plan, got %s", env.Data.Plan)
	}
	if svc.ensureCalls != 1 {
		t.Fatalf("expected one provisioning call, got %d", svc.ensureCalls)
	}
}

func TestEntitlementMeStoreFailure(t *testing.T) {
	svc := &stubEntitlementService{err: pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, errors.New("down"), "lookup")}
	rec := httptest.NewRecorder()
	EntitlementMe(svc, 0, nil).ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/entitlement/me", nil), "u1"))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}

func TestProvisioningHonoursCheckTimeout(t *testing.T) {
	handlers := map[string]func(entitlements.Service) http.HandlerFunc{
		"me": func(svc entitlements.Service) http.HandlerFunc {
			return EntitlementMe(svc, 20*time.Millisecond, nil)
		},
		"register": func(svc entitlements.Service) http.HandlerFunc {
			return PrincipalRegister(svc, 20*time.Millisecond, nil)
		},
	}
	for name, build := range handlers {
		t.Run(name, func(t *testing.T) {
			svc := &stubEntitlementService{hang: true}
			rec := httptest.NewRecorder()
			done := make(chan struct{})
			go func() {
				defer close(done)
				build(svc).ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/entitlement/me", nil), "u1"))
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("handler did not give up on a hung store")
			}
			if rec.Code != http.StatusServiceUnavailable {
				t.Fatalf("expected 503 got %d", rec.Code)
			}
			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != string(pkgerrors.CodeStoreUnavailable) {
				t.Fatalf("expected STORE_UNAVAILABLE, got %s", body.Error.Code)
			}
		})
	}
}

func TestEntitlementMeRequiresPrincipal(t *testing.T) {
	svc := &stubEntitlementService{row: inactiveRow("u1")}
	rec := httptest.NewRecorder()
	EntitlementMe(svc, 0, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/entitlement/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if svc.ensureCalls != 0 {
		t.Fatal("service must not be called without a principal")
	}
}

func TestEntitlementActivate(t *testing.T) {
	svc := &stubEntitlementService{}
	expires := fixedNow.Add(365 * 24 * time.Hour)
	body := `{"plan":"annual","expiresAt":"` + expires.Format(time.RFC3339) + `"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/entitlement/activate", strings.NewReader(body)), "u1")
	rec := httptest.NewRecorder()
	EntitlementActivate(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.activated == nil || svc.activated.Plan != "annual" || !svc.activated.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected activation %+v", svc.activated)
	}
	var env viewEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !env.Data.IsActive || env.Data.Plan != enums.PlanAnnual {
		t.Fatalf("unexpected view %+v", env.Data)
	}
}

func TestEntitlementActivateRejectsInvalidBody(t *testing.T) {
	cases := map[string]string{
		"unknown_plan":   `{"plan":"weekly","expiresAt":"2027-01-01T00:00:00Z"}`,
		"missing_expiry": `{"plan":"monthly"}`,
		"status_field":   `{"plan":"monthly","expiresAt":"2027-01-01T00:00:00Z","status":"active"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubEntitlementService{}
			req := authed(httptest.NewRequest(http.MethodPost, "/entitlement/activate", strings.NewReader(body)), "u1")
			rec := httptest.NewRecorder()
			EntitlementActivate(svc, nil).ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", rec.Code)
			}
			if svc.activated != nil {
				t.Fatal("service must not be called on invalid input")
			}
		})
	}
}

func TestPrincipalRegisterCreatedThenExisting(t *testing.T) {
	svc := &stubEntitlementService{row: inactiveRow("u1"), created: true}
	rec := httptest.NewRecorder()
	PrincipalRegister(svc, 0, nil).ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPost, "/principal/register", nil), "u1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}

	var first struct {
		Data registerResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Data.AlreadyRegistered {
		t.Fatal("first registration must not be flagged as existing")
	}

	svc.created = false
	rec = httptest.NewRecorder()
	PrincipalRegister(svc, 0, nil).ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPost, "/principal/register", nil), "u1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var second struct {
		Data registerResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !second.Data.AlreadyRegistered {
		t.Fatal("expected alreadyRegistered on repeat call")
	}
}
