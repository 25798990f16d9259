package enums

import "fmt"

// EntitlementStatus is the stored lifecycle state of a principal's entitlement.
// Only an active status with an unexpired expiry grants access.
type EntitlementStatus string

const (
	EntitlementStatusActive   EntitlementStatus = "active"
	EntitlementStatusInactive EntitlementStatus = "inactive"
	EntitlementStatusCanceled EntitlementStatus = "canceled"
)

var validEntitlementStatuses = []EntitlementStatus{
	EntitlementStatusActive,
	EntitlementStatusInactive,
	EntitlementStatusCanceled,
}

// String implements fmt.Stringer.
func (s EntitlementStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s EntitlementStatus) IsValid() bool {
	for _, candidate := range validEntitlementStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// EntitlementStatuses returns every known status in declaration order.
func EntitlementStatuses() []EntitlementStatus {
	out := make([]EntitlementStatus, len(validEntitlementStatuses))
	copy(out, validEntitlementStatuses)
	return out
}

// ParseEntitlementStatus converts raw input into an EntitlementStatus.
func ParseEntitlementStatus(value string) (EntitlementStatus, error) {
	for _, candidate := range validEntitlementStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid entitlement status %q", value)
}
