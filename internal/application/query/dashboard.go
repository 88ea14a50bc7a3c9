package query

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edupredict/risk-monitor/internal/domain/intervention"
	"github.com/edupredict/risk-monitor/internal/domain/risk"
	"github.com/edupredict/risk-monitor/internal/domain/shared"
	"github.com/edupredict/risk-monitor/internal/domain/student"
	"github.com/edupredict/risk-monitor/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DASHBOARD SUMMARY
// ══════════════════════════════════════════════════════════════════════════════

const (
	noDataInsight         = "No student data available for analysis."
	lowAttendanceInsight  = "Overall class attendance is below %g%%. This is a primary contributor to academic risk."
	highAttendanceInsight = "High attendance rates are positively checking risk levels."
	lowInternalsInsight   = "Internal assessment scores are trending low. Remedial sessions recommended."
	criticalShareInsight  = "Critical Alert: %d%% of students are in the High Risk category."
	manageableRiskInsight = "Risk levels are within manageable limits for the majority of the cohort."
	highAttendanceMark    = 90.0
	lowInternalMarksMark  = 15.0
	criticalHighRiskShare = 0.2
)

// OverdueCounter returns a precomputed overdue-intervention count. ok is false
// when no count has been stored yet or it was invalidated.
type OverdueCounter interface {
	OverdueCount(ctx context.Context) (count int64, ok bool, err error)
	Invalidate(ctx context.Context) error
}

const invalidateTimeout = 2 * time.Second

// DashboardSummary is the landing page payload.
type DashboardSummary struct {
	TotalStudents    int                  `json:"total_students"`
	HighRiskCount    int                  `json:"high_risk_count"`
	AvgRiskScore     float64              `json:"avg_risk_score"`
	Distribution     []RiskBucket         `json:"distribution"`
	Insights         []string             `json:"insights"`
	HighRiskStudents []student.Classified `json:"high_risk_students"`
	Interventions    intervention.Counts  `json:"interventions"`
	OverdueCount     int64                `json:"overdue_interventions"`
	Version          uint64               `json:"snapshot_version"`
	GeneratedAt      time.Time            `json:"generated_at"`
}

// DashboardSummaryHandler builds the dashboard summary.
type DashboardSummaryHandler struct {
	registry Snapshotter
	ledger   InterventionReader
	overdue  OverdueCounter
	insights bool
	log      *logger.Logger
	now      func() time.Time
}

// NewDashboardSummaryHandler creates the handler. overdue and log may be nil.
func NewDashboardSummaryHandler(
	registry Snapshotter,
	ledger InterventionReader,
	overdue OverdueCounter,
	insights bool,
	log *logger.Logger,
) *DashboardSummaryHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &DashboardSummaryHandler{
		registry: registry,
		ledger:   ledger,
		overdue:  overdue,
		insights: insights,
		log:      log.With(logger.Component("dashboard")),
		now:      time.Now,
	}
}

// Handle computes the summary over one snapshot.
func (h *DashboardSummaryHandler) Handle(ctx context.Context) (*DashboardSummary, error) {
	snap := h.registry.Snapshot()
	summary := &DashboardSummary{
		TotalStudents: snap.Len(),
		Version:       snap.Version(),
		GeneratedAt:   h.now().UTC(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return h.fillRisk(snap, summary)
	})

	g.Go(func() error {
		counts, err := h.ledger.Counts(gctx)
		if err != nil {
			return fmt.Errorf("failed to count interventions: %w", err)
		}
		summary.Interventions = counts
		return nil
	})

	g.Go(func() error {
		n, err := h.overdueCount(gctx)
		if err != nil {
			return err
		}
		summary.OverdueCount = n
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summary, nil
}

// fillRisk writes only the risk fields of summary.
func (h *DashboardSummaryHandler) fillRisk(snap *student.Snapshot, summary *DashboardSummary) error {
	classified, err := snap.Classified()
	if err != nil {
		return err
	}

	high := make([]student.Classified, 0)
	var scoreSum, attendanceSum, internalsSum float64
	for _, c := range classified {
		scoreSum += c.RawRiskScore
		attendanceSum += c.AttendancePercentage
		internalsSum += c.InternalMarks
		if c.RiskTier == risk.TierHigh {
			high = append(high, c)
		}
	}

	dist, err := distribution(snap)
	if err != nil {
		return err
	}
	summary.Distribution = dist
	summary.HighRiskStudents = high
	summary.HighRiskCount = len(high)

	total := len(classified)
	if total == 0 {
		summary.Insights = []string{noDataInsight}
		return nil
	}
	summary.AvgRiskScore = round1(scoreSum / float64(total))

	if !h.insights {
		summary.Insights = []string{}
		return nil
	}
	summary.Insights = buildInsights(
		attendanceSum/float64(total),
		internalsSum/float64(total),
		len(high),
		total,
		snap.Classifier().Thresholds().LowAttendance,
	)
	return nil
}

func buildInsights(avgAttendance, avgInternals float64, highCount, total int, lowAttendance float64) []string {
	insights := make([]string, 0, 3)

	switch {
	case avgAttendance < lowAttendance:
		insights = append(insights, fmt.Sprintf(lowAttendanceInsight, lowAttendance))
	case avgAttendance > highAttendanceMark:
		insights = append(insights, highAttendanceInsight)
	}

	if avgInternals < lowInternalMarksMark {
		insights = append(insights, lowInternalsInsight)
	}

	if float64(highCount) > float64(total)*criticalHighRiskShare {
		pct := int(math.RoundToEven(float64(highCount) * 100 / float64(total)))
		insights = append(insights, fmt.Sprintf(criticalShareInsight, pct))
	} else {
		insights = append(insights, manageableRiskInsight)
	}
	return insights
}

// InterventionChanged drops the precomputed overdue count so the next summary
// scans the ledger. Subscribe it to intervention.assigned and
// intervention.completed.
func (h *DashboardSummaryHandler) InterventionChanged(event shared.Event) error {
	if h.overdue == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()
	if err := h.overdue.Invalidate(ctx); err != nil {
		h.log.Warn("failed to invalidate overdue count",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
		return err
	}
	return nil
}

func (h *DashboardSummaryHandler) overdueCount(ctx context.Context) (int64, error) {
	if h.overdue != nil {
		n, ok, err := h.overdue.OverdueCount(ctx)
		if err != nil {
			h.log.Warn("overdue counter unavailable, scanning ledger", logger.Err(err))
		} else if ok {
			return n, nil
		}
	}

	items, err := h.ledger.Overdue(ctx, h.now())
	if err != nil {
		return 0, fmt.Errorf("failed to scan overdue interventions: %w", err)
	}
	return int64(len(items)), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN STATS
// ══════════════════════════════════════════════════════════════════════════════

// AdminStats is the admin overview.
type AdminStats struct {
	TotalStudents          int    `json:"total_students"`
	HighRiskStudents       int    `json:"high_risk_students"`
	PendingInterventions   int    `json:"pending_interventions"`
	CompletedInterventions int    `json:"completed_interventions"`
	SnapshotVersion        uint64 `json:"snapshot_version"`
}

// AdminStatsHandler computes AdminStats.
type AdminStatsHandler struct {
	registry Snapshotter
	ledger   InterventionReader
}

func NewAdminStatsHandler(registry Snapshotter, ledger InterventionReader) *AdminStatsHandler {
	return &AdminStatsHandler{registry: registry, ledger: ledger}
}

func (h *AdminStatsHandler) Handle(ctx context.Context) (*AdminStats, error) {
	snap := h.registry.Snapshot()
	counts, err := snap.CountByTier()
	if err != nil {
		return nil, err
	}
	ivCounts, err := h.ledger.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count interventions: %w", err)
	}
	return &AdminStats{
		TotalStudents:          snap.Len(),
		HighRiskStudents:       counts[risk.TierHigh],
		PendingInterventions:   ivCounts.Pending,
		CompletedInterventions: ivCounts.Completed,
		SnapshotVersion:        snap.Version(),
	}, nil
}
