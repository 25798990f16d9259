package enums

import (
	"fmt"
	"strings"
)

// LengthTier selects how long a generated thread should be.
type LengthTier string

const (
	LengthTierShort  LengthTier = "short"
	LengthTierMedium LengthTier = "medium"
	LengthTierLong   LengthTier = "long"
)

var lengthTierUnits = map[LengthTier]int{
	LengthTierShort:  3,
	LengthTierMedium: 6,
	LengthTierLong:   10,
}

// String implements fmt.Stringer.
func (t LengthTier) String() string {
	return string(t)
}

// IsValid reports whether the value is a known LengthTier.
func (t LengthTier) IsValid() bool {
	_, ok := lengthTierUnits[t]
	return ok
}

// Units returns the number of thread posts requested for the tier.
func (t LengthTier) Units() int {
	return lengthTierUnits[t]
}

// ParseLengthTier converts raw input into a LengthTier.
func ParseLengthTier(value string) (LengthTier, error) {
	tier := LengthTier(strings.ToLower(strings.TrimSpace(value)))
	if !tier.IsValid() {
		return "", fmt.Errorf("invalid length tier %q", value)
	}
	return tier, nil
}
