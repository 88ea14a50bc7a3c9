package risk

import (
	"strings"

	"github.com/edupredict/risk-monitor/internal/domain/shared"
)

// Tier is a discrete risk category.
type Tier string

const (
	TierLow    Tier = "Low"
	TierMedium Tier = "Medium"
	TierHigh   Tier = "High"
)

// Tiers lists every tier in display order.
var Tiers = []Tier{TierLow, TierMedium, TierHigh}

func (t Tier) IsValid() bool {
	switch t {
	case TierLow, TierMedium, TierHigh:
		return true
	default:
		return false
	}
}

func (t Tier) String() string {
	return string(t)
}

// Label is the decorated name used on dashboard tiles and charts.
func (t Tier) Label() string {
	return string(t) + " Risk"
}

// Color is the chart color for the tier.
func (t Tier) Color() string {
	switch t {
	case TierLow:
		return "#10B981"
	case TierMedium:
		return "#F59E0B"
	case TierHigh:
		return "#EF4444"
	default:
		return "#6B7280"
	}
}

// tierByToken is the complete set of accepted label tokens.
var tierByToken = map[string]Tier{
	"low":    TierLow,
	"medium": TierMedium,
	"high":   TierHigh,
}

// NormalizeTier maps a canonical or decorated label ("High", "high risk",
// "  Medium Risk ") to a Tier. Only the first whitespace-separated token is
// considered. Anything outside the mapping is rejected with ErrInvalidTier.
func NormalizeTier(label string) (Tier, error) {
	fields := strings.Fields(label)
	if len(fields) == 0 {
		return "", shared.ErrInvalidTier.WithMessage("empty risk tier label")
	}

	tier, ok := tierByToken[strings.ToLower(fields[0])]
	if !ok {
		return "", shared.ErrInvalidTier.WithMessage("unrecognized risk tier label: " + label)
	}
	return tier, nil
}
