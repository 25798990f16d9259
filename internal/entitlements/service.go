package entitlements

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kasiviral/kasiviral-backend/pkg/db"
	"github.com/kasiviral/kasiviral-backend/pkg/db/models"
	"github.com/kasiviral/kasiviral-backend/pkg/enums"
	pkgerrors "github.com/kasiviral/kasiviral-backend/pkg/errors"
	"github.com/kasiviral/kasiviral-backend/pkg/logger"
)

const (
	defaultGraceWindow = 30 * 24 * time.Hour
	uniqueConstraint   = "entitlements_subject_id_key"
)

// Store is the persistence surface the service depends on.
type Store interface {
	Get(ctx context.Context, subjectID string) (*models.Entitlement, error)
	UpsertActive(ctx context.Context, params UpsertActiveParams) (*models.Entitlement, error)
	CreateInactive(ctx context.Context, params CreateInactiveParams) (*models.Entitlement, bool, error)
	MarkCanceled(ctx context.Context, subjectID string, now time.Time) (*models.Entitlement, error)
	CountByStatus(ctx context.Context, now time.Time) (StatusCounts, error)
}

// Service owns the entitlement predicate plus the provisioning and activation policy.
type Service interface {
	IsEntitled(ctx context.Context, subjectID string) (bool, error)
	EnsureDefault(ctx context.Context, subjectID string) (*models.Entitlement, bool, error)
	Activate(ctx context.Context, subjectID string, input ActivateInput) (*models.Entitlement, error)
	Cancel(ctx context.Context, subjectID string) (*models.Entitlement, error)
	Audit(ctx context.Context) (StatusCounts, error)
	View(e models.Entitlement) EntitlementView
}

// ActivateInput carries the fields a trusted billing event supplies.
type ActivateInput struct {
	Plan      string
	ExpiresAt time.Time
	Refs      BillingRefs
}

// ServiceParams wires the entitlement service.
type ServiceParams struct {
	Store       Store
	Logger      *logger.Logger
	DefaultPlan enums.Plan
	GraceWindow time.Duration
	Now         func() time.Time
}

type service struct {
	store       Store
	logg        *logger.Logger
	defaultPlan enums.Plan
	grace       time.Duration
	now         func() time.Time
}

// NewService validates dependencies and applies defaults.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "entitlement store required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	plan := params.DefaultPlan
	if plan == "" {
		plan = enums.PlanMonthly
	}
	if !plan.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid default plan %q", plan))
	}
	grace := params.GraceWindow
	if grace <= 0 {
		grace = defaultGraceWindow
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		store:       params.Store,
		logg:        params.Logger,
		defaultPlan: plan,
		grace:       grace,
		now:         now,
	}, nil
}

// IsEntitled reports whether the subject holds a live entitlement. It never writes.
func (s *service) IsEntitled(ctx context.Context, subjectID string) (bool, error) {
	subjectID, err := normalizeSubject(subjectID)
	if err != nil {
		return false, err
	}
	row, err := s.store.Get(ctx, subjectID)
	if err != nil {
		return false, storeError(err, "load entitlement")
	}
	if row == nil {
		return false, nil
	}
	return Entitled(*row, s.now()), nil
}

// EnsureDefault provisions the default inactive entitlement when the subject has none.
// The returned flag is true only for the call that created the row.
func (s *service) EnsureDefault(ctx context.Context, subjectID string) (*models.Entitlement, bool, error) {
	subjectID, err := normalizeSubject(subjectID)
	if err != nil {
		return nil, false, err
	}
	now := s.now().UTC()
	row, created, err := s.store.CreateInactive(ctx, CreateInactiveParams{
		SubjectID: subjectID,
		Plan:      s.defaultPlan,
		ExpiresAt: now.Add(s.grace),
		Now:       now,
	})
	if err != nil {
		if !db.IsUniqueViolation(err, uniqueConstraint) {
			return nil, false, storeError(err, "provision entitlement")
		}
		existing, getErr := s.store.Get(ctx, subjectID)
		if getErr != nil {
			return nil, false, storeError(getErr, "load entitlement after conflict")
		}
		if existing == nil {
			return nil, false, storeError(err, "provision entitlement")
		}
		return existing, false, nil
	}
	if created {
		logCtx := s.logg.WithSubjectID(ctx, subjectID)
		s.logg.Info(logCtx, "default entitlement provisioned")
	}
	return row, created, nil
}

// Activate sets the subject's entitlement active with the supplied plan and expiry.
func (s *service) Activate(ctx context.Context, subjectID string, input ActivateInput) (*models.Entitlement, error) {
	subjectID, err := normalizeSubject(subjectID)
	if err != nil {
		return nil, err
	}
	plan, err := enums.ParsePlan(input.Plan)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan").
			WithDetails(map[string]any{"field": "plan"})
	}
	now := s.now().UTC()
	if input.ExpiresAt.IsZero() || !input.ExpiresAt.After(now) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expiresAt must be in the future").
			WithDetails(map[string]any{"field": "expiresAt"})
	}

	row, err := s.store.UpsertActive(ctx, UpsertActiveParams{
		SubjectID: subjectID,
		Plan:      plan,
		ExpiresAt: input.ExpiresAt,
		Refs:      input.Refs,
		Now:       now,
	})
	if err != nil {
		return nil, storeError(err, "activate entitlement")
	}

	logCtx := s.logg.WithSubjectID(ctx, subjectID)
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"plan":       row.Plan,
		"expires_at": row.ExpiresAt,
	})
	s.logg.Info(logCtx, "entitlement activated")
	return row, nil
}

// Cancel records a billing cancellation. A subject without a record is a no-op.
func (s *service) Cancel(ctx context.Context, subjectID string) (*models.Entitlement, error) {
	subjectID, err := normalizeSubject(subjectID)
	if err != nil {
		return nil, err
	}
	row, err := s.store.MarkCanceled(ctx, subjectID, s.now())
	if err != nil {
		return nil, storeError(err, "cancel entitlement")
	}
	logCtx := s.logg.WithSubjectID(ctx, subjectID)
	if row == nil {
		s.logg.Warn(logCtx, "cancel requested for unknown subject")
		return nil, nil
	}
	s.logg.Info(logCtx, "entitlement canceled")
	return row, nil
}

// Audit returns the current status tally.
func (s *service) Audit(ctx context.Context) (StatusCounts, error) {
	counts, err := s.store.CountByStatus(ctx, s.now())
	if err != nil {
		return StatusCounts{}, storeError(err, "count entitlements")
	}
	return counts, nil
}

// View renders the entitlement against the service clock.
func (s *service) View(e models.Entitlement) EntitlementView {
	return View(e, s.now())
}

func normalizeSubject(subjectID string) (string, error) {
	trimmed := strings.TrimSpace(subjectID)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "subject id required")
	}
	return trimmed, nil
}

func storeError(err error, message string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, message)
}
