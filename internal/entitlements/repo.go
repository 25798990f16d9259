package entitlements

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kasiviral/kasiviral-backend/pkg/db/models"
	"github.com/kasiviral/kasiviral-backend/pkg/enums"
)

// BillingRefs carries the optional correlation handles into the billing provider.
// A nil or empty ref is treated as absent.
type BillingRefs struct {
	CustomerRef     *string
	SubscriptionRef *string
	PriceRef        *string
}

// UpsertActiveParams describes a single activation write.
type UpsertActiveParams struct {
	SubjectID string
	Plan      enums.Plan
	ExpiresAt time.Time
	Refs      BillingRefs
	Now       time.Time
}

// CreateInactiveParams describes a default provisioning write.
type CreateInactiveParams struct {
	SubjectID string
	Plan      enums.Plan
	ExpiresAt time.Time
	Now       time.Time
}

// StatusCounts is a point-in-time tally of stored entitlements.
type StatusCounts struct {
	ByStatus     map[enums.EntitlementStatus]int64
	ActiveLapsed int64
}

// Repository persists entitlements with single-statement atomic writes.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an entitlement repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the entitlement for the subject, or nil when none exists.
func (r *Repository) Get(ctx context.Context, subjectID string) (*models.Entitlement, error) {
	var row models.Entitlement
	err := r.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Take(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// UpsertActive inserts an active entitlement or overwrites plan, status and expiry
// on the existing row in one statement. Billing refs are only overwritten when supplied.
func (r *Repository) UpsertActive(ctx context.Context, params UpsertActiveParams) (*models.Entitlement, error) {
	now := params.Now.UTC()
	row := models.Entitlement{
		ID:                             uuid.New(),
		SubjectID:                      params.SubjectID,
		Plan:                           params.Plan,
		Status:                         enums.EntitlementStatusActive,
		ExpiresAt:                      params.ExpiresAt.UTC(),
		ExternalBillingCustomerRef:     normalizeRef(params.Refs.CustomerRef),
		ExternalBillingSubscriptionRef: normalizeRef(params.Refs.SubscriptionRef),
		ExternalPriceRef:               normalizeRef(params.Refs.PriceRef),
		CreatedAt:                      now,
		UpdatedAt:                      now,
	}

	updates := []string{"plan", "status", "expires_at", "updated_at"}
	if row.ExternalBillingCustomerRef != nil {
		updates = append(updates, "external_billing_customer_ref")
	}
	if row.ExternalBillingSubscriptionRef != nil {
		updates = append(updates, "external_billing_subscription_ref")
	}
	if row.ExternalPriceRef != nil {
		updates = append(updates, "external_price_ref")
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject_id"}},
			DoUpdates: clause.AssignmentColumns(updates),
		}).
		Create(&row).
		Error
	if err != nil {
		return nil, err
	}
	return r.mustGet(ctx, params.SubjectID)
}

// CreateInactive inserts a default inactive entitlement unless one already exists.
// The returned flag reports whether this call created the row.
func (r *Repository) CreateInactive(ctx context.Context, params CreateInactiveParams) (*models.Entitlement, bool, error) {
	now := params.Now.UTC()
	row := models.Entitlement{
		ID:        uuid.New(),
		SubjectID: params.SubjectID,
		Plan:      params.Plan,
		Status:    enums.EntitlementStatusInactive,
		ExpiresAt: params.ExpiresAt.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if result.Error != nil {
		return nil, false, result.Error
	}

	stored, err := r.mustGet(ctx, params.SubjectID)
	if err != nil {
		return nil, false, err
	}
	return stored, result.RowsAffected == 1, nil
}

// MarkCanceled moves the subject's entitlement to canceled. It returns nil when no row exists.
func (r *Repository) MarkCanceled(ctx context.Context, subjectID string, now time.Time) (*models.Entitlement, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Entitlement{}).
		Where("subject_id = ?", subjectID).
		Updates(map[string]any{
			"status":     enums.EntitlementStatusCanceled,
			"updated_at": now.UTC(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return r.mustGet(ctx, subjectID)
}

// CountByStatus tallies entitlements per status plus active rows whose expiry has passed.
func (r *Repository) CountByStatus(ctx context.Context, now time.Time) (StatusCounts, error) {
	type statusCount struct {
		Status enums.EntitlementStatus
		Count  int64
	}

	var rows []statusCount
	if err := r.db.WithContext(ctx).
		Model(&models.Entitlement{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).
		Error; err != nil {
		return StatusCounts{}, err
	}

	counts := StatusCounts{ByStatus: make(map[enums.EntitlementStatus]int64, len(rows))}
	for _, status := range enums.EntitlementStatuses() {
		counts.ByStatus[status] = 0
	}
	for _, row := range rows {
		counts.ByStatus[row.Status] = row.Count
	}

	if err := r.db.WithContext(ctx).
		Model(&models.Entitlement{}).
		Where("status = ? AND expires_at <= ?", enums.EntitlementStatusActive, now.UTC()).
		Count(&counts.ActiveLapsed).
		Error; err != nil {
		return StatusCounts{}, err
	}
	return counts, nil
}

func (r *Repository) mustGet(ctx context.Context, subjectID string) (*models.Entitlement, error) {
	row, err := r.Get(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return row, nil
}

func normalizeRef(ref *string) *string {
	if ref == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*ref)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
