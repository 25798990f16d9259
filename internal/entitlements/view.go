package entitlements

import (
	"time"

	"github.com/kasiviral/kasiviral-backend/pkg/db/models"
	"github.com/kasiviral/kasiviral-backend/pkg/enums"
)

// EntitlementView is the client-facing shape of an entitlement.
type EntitlementView struct {
	Status    enums.EntitlementStatus `json:"status"`
	Plan      enums.Plan              `json:"plan"`
	ExpiresAt time.Time               `json:"expiresAt"`
	IsActive  bool                    `json:"isActive"`
}

// Entitled is the access predicate: active status with an expiry strictly after now.
func Entitled(e models.Entitlement, now time.Time) bool {
	return e.Status == enums.EntitlementStatusActive && now.Before(e.ExpiresAt)
}

// View projects an entitlement for clients, computing isActive at now.
func View(e models.Entitlement, now time.Time) EntitlementView {
	return EntitlementView{
		Status:    e.Status,
		Plan:      e.Plan,
		ExpiresAt: e.ExpiresAt.UTC(),
		IsActive:  Entitled(e, now),
	}
}
