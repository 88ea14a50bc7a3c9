// Package query contains the read side of the service. Queries never modify
// state; each one works on a single registry snapshot.
package query

import (
	"context"
	"math"

	"github.com/edupredict/risk-monitor/internal/domain/risk"
	"github.com/edupredict/risk-monitor/internal/domain/student"
	"github.com/edupredict/risk-monitor/pkg/logger"
)

// Snapshotter hands out the current registry snapshot.
// *student.Registry satisfies it.
type Snapshotter interface {
	Snapshot() *student.Snapshot
}

// ══════════════════════════════════════════════════════════════════════════════
// DRILL-DOWN
// Resolves a dashboard tile or chart label to the students behind it.
// ══════════════════════════════════════════════════════════════════════════════

// RiskBucket is one slice of the risk distribution.
type RiskBucket struct {
	Label      string    `json:"name"`
	Tier       risk.Tier `json:"tier"`
	Count      int       `json:"value"`
	Percentage float64   `json:"percentage"`
	Color      string    `json:"color"`
}

// DrillDownResult is the answer to a drill-down request.
type DrillDownResult struct {
	Tier     risk.Tier            `json:"tier"`
	Label    string               `json:"label"`
	Version  uint64               `json:"snapshot_version"`
	Students []student.Classified `json:"students"`
}

// DrillDownHandler serves drill-down and distribution reads.
type DrillDownHandler struct {
	registry Snapshotter
	log      *logger.Logger
}

// NewDrillDownHandler creates a DrillDownHandler. log may be nil.
func NewDrillDownHandler(registry Snapshotter, log *logger.Logger) *DrillDownHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &DrillDownHandler{registry: registry, log: log.With(logger.Component("drilldown"))}
}

// NormalizeTier maps a canonical or decorated label to a tier.
func (h *DrillDownHandler) NormalizeTier(label string) (risk.Tier, error) {
	tier, err := risk.NormalizeTier(label)
	if err != nil {
		h.log.Warn("rejected drill-down label", logger.String("label", label), logger.Err(err))
		return "", err
	}
	return tier, nil
}

// Resolve returns the students in the tier named by label. A recognized tier
// with no students yields an empty, non-nil list.
func (h *DrillDownHandler) Resolve(ctx context.Context, label string) (*DrillDownResult, error) {
	tier, err := h.NormalizeTier(label)
	if err != nil {
		return nil, err
	}

	snap := h.registry.Snapshot()
	members, err := snap.ByRiskTier(tier)
	if err != nil {
		return nil, err
	}

	out := make([]student.Classified, 0, len(members))
	for _, st := range members {
		c, err := snap.Classify(st)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}

	return &DrillDownResult{
		Tier:     tier,
		Label:    tier.Label(),
		Version:  snap.Version(),
		Students: out,
	}, nil
}

// Distribution returns one bucket per tier for the current snapshot.
func (h *DrillDownHandler) Distribution(ctx context.Context) ([]RiskBucket, error) {
	return distribution(h.registry.Snapshot())
}

func distribution(snap *student.Snapshot) ([]RiskBucket, error) {
	counts, err := snap.CountByTier()
	if err != nil {
		return nil, err
	}
	return bucketsFromCounts(counts, snap.Len()), nil
}

// bucketsFromCounts rounds percentages to one decimal. The rounding
// remainder goes to the largest bucket so a non-empty distribution sums to 100.
func bucketsFromCounts(counts map[risk.Tier]int, total int) []RiskBucket {
	buckets := make([]RiskBucket, 0, len(risk.Tiers))
	tenths := make([]int, 0, len(risk.Tiers))
	sum, largest := 0, 0
	for _, tier := range risk.Tiers {
		b := RiskBucket{
			Label: tier.Label(),
			Tier:  tier,
			Count: counts[tier],
			Color: tier.Color(),
		}
		var t int
		if total > 0 {
			t = int(math.Round(float64(b.Count) * 1000 / float64(total)))
		}
		if len(buckets) > 0 && b.Count > buckets[largest].Count {
			largest = len(buckets)
		}
		tenths = append(tenths, t)
		sum += t
		buckets = append(buckets, b)
	}
	if total > 0 {
		tenths[largest] += 1000 - sum
	}
	for i := range buckets {
		buckets[i].Percentage = float64(tenths[i]) / 10
	}
	return buckets
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
