package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kasiviral/kasiviral-backend/pkg/enums"
)

// Entitlement is the single paid-access record held for a principal.
type Entitlement struct {
	ID                             uuid.UUID               `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubjectID                      string                  `gorm:"column:subject_id;not null;uniqueIndex:entitlements_subject_id_key"`
	Plan                           enums.Plan              `gorm:"column:plan;type:entitlement_plan;not null;default:'monthly'"`
	Status                         enums.EntitlementStatus `gorm:"column:status;type:entitlement_status;not null;default:'inactive'"`
	ExpiresAt                      time.Time               `gorm:"column:expires_at;not null"`
	ExternalBillingCustomerRef     *string                 `gorm:"column:external_billing_customer_ref"`
	ExternalBillingSubscriptionRef *string                 `gorm:"column:external_billing_subscription_ref"`
	ExternalPriceRef               *string                 `gorm:"column:external_price_ref"`
	CreatedAt                      time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                      time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table name used by migrations.
func (Entitlement) TableName() string {
	return "entitlements"
}
