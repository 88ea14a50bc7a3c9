package query

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupredict/risk-monitor/internal/domain/intervention"
	"github.com/edupredict/risk-monitor/internal/domain/risk"
	"github.com/edupredict/risk-monitor/internal/domain/shared"
	"github.com/edupredict/risk-monitor/internal/domain/student"
	"github.com/edupredict/risk-monitor/internal/infrastructure/persistence/memory"
)

type defaultPolicy struct{}

func (defaultPolicy) Current() *risk.Classifier { return risk.MustClassifier(risk.DefaultThresholds()) }

func loadedRegistry(t *testing.T, rows ...student.Student) *student.Registry {
	t.Helper()
	reg := student.NewRegistry(student.StaticSource(rows), defaultPolicy{})
	_, err := reg.Refresh(context.Background())
	require.NoError(t, err)
	return reg
}

func oneHighTwoLow() []student.Student {
	return []student.Student{
		{ID: "S-001", Name: "Ravi", Department: "CSE", AttendancePercentage: 60, SGPA: 5.5, RawRiskScore: 50, InternalMarks: 10},
		{ID: "S-002", Name: "Asha", Department: "CSE", AttendancePercentage: 95, SGPA: 8.4, RawRiskScore: 10, InternalMarks: 22},
		{ID: "S-003", Name: "Meera", Department: "ECE", AttendancePercentage: 92, SGPA: 7.9, RawRiskScore: 20, InternalMarks: 20},
	}
}

func TestDrillDown_ResolveDecoratedLabel(t *testing.T) {
	h := NewDrillDownHandler(loadedRegistry(t, oneHighTwoLow()...), nil)

	for _, label := range []string{"High Risk", "high", "  HIGH  risk "} {
		res, err := h.Resolve(context.Background(), label)
		require.NoError(t, err, label)
		require.Len(t, res.Students, 1, label)
		assert.Equal(t, "S-001", res.Students[0].ID)
		assert.Equal(t, risk.TierHigh, res.Students[0].RiskTier)
		assert.Equal(t, "High Risk", res.Label)
	}
}

func TestDrillDown_EmptyTierIsEmptyList(t *testing.T) {
	h := NewDrillDownHandler(loadedRegistry(t, oneHighTwoLow()...), nil)

	res, err := h.Resolve(context.Background(), "Medium Risk")
	require.NoError(t, err)
	assert.NotNil(t, res.Students)
	assert.Empty(t, res.Students)
}

func TestDrillDown_InvalidLabel(t *testing.T) {
	h := NewDrillDownHandler(loadedRegistry(t, oneHighTwoLow()...), nil)

	for _, label := range []string{"", "   ", "Critical", "Severe Risk", "Hi"} {
		_, err := h.Resolve(context.Background(), label)
		assert.ErrorIs(t, err, shared.ErrInvalidTier, label)
		assert.ErrorIs(t, err, shared.ErrInvalidInput, label)
	}
}

func TestDrillDown_DistributionSumsToTotal(t *testing.T) {
	rows := append(oneHighTwoLow(),
		student.Student{ID: "S-004", AttendancePercentage: 70, SGPA: 8, RawRiskScore: 30},
		student.Student{ID: "S-005", AttendancePercentage: 80, SGPA: 7, RawRiskScore: 55},
		student.Student{ID: "S-006", AttendancePercentage: 80, SGPA: 7, RawRiskScore: 70},
	)
	h := NewDrillDownHandler(loadedRegistry(t, rows...), nil)

	buckets, err := h.Distribution(context.Background())
	require.NoError(t, err)
	require.Len(t, buckets, 3)

	total := 0
	for _, b := range buckets {
		total += b.Count
	}
	assert.Equal(t, 6, total)

	assert.Equal(t, RiskBucket{Label: "Low Risk", Tier: risk.TierLow, Count: 2, Percentage: 33.4, Color: "#10B981"}, buckets[0])
	assert.Equal(t, RiskBucket{Label: "Medium Risk", Tier: risk.TierMedium, Count: 2, Percentage: 33.3, Color: "#F59E0B"}, buckets[1])
	assert.Equal(t, RiskBucket{Label: "High Risk", Tier: risk.TierHigh, Count: 2, Percentage: 33.3, Color: "#EF4444"}, buckets[2])
}

func TestBucketsFromCounts_PercentagesSumToHundred(t *testing.T) {
	tests := []struct {
		name   string
		counts map[risk.Tier]int
		want   []float64
	}{
		{"even thirds", map[risk.Tier]int{risk.TierLow: 1, risk.TierMedium: 1, risk.TierHigh: 1}, []float64{33.4, 33.3, 33.3}},
		{"largest absorbs remainder", map[risk.Tier]int{risk.TierLow: 1, risk.TierMedium: 1, risk.TierHigh: 4}, []float64{16.7, 16.7, 66.6}},
		{"single tier", map[risk.Tier]int{risk.TierMedium: 7}, []float64{0, 100, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := 0
			for _, n := range tt.counts {
				total += n
			}
			buckets := bucketsFromCounts(tt.counts, total)
			require.Len(t, buckets, len(tt.want))

			sum := 0.0
			for i, b := range buckets {
				assert.Equal(t, tt.want[i], b.Percentage, b.Label)
				sum += b.Percentage
			}
			assert.InDelta(t, 100.0, sum, 1e-9)
		})
	}
}

func TestDrillDown_DistributionOnEmptyRegistry(t *testing.T) {
	h := NewDrillDownHandler(loadedRegistry(t), nil)

	buckets, err := h.Distribution(context.Background())
	require.NoError(t, err)
	for _, b := range buckets {
		assert.Zero(t, b.Count)
		assert.Zero(t, b.Percentage)
	}
}

func TestListStudents(t *testing.T) {
	reg := loadedRegistry(t, oneHighTwoLow()...)
	h := NewListStudentsHandler(reg, NewDrillDownHandler(reg, nil))

	all, err := h.Handle(context.Background(), ListStudentsQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)

	low, err := h.Handle(context.Background(), ListStudentsQuery{Tier: "Low Risk"})
	require.NoError(t, err)
	assert.Equal(t, 2, low.Total)

	_, err = h.Handle(context.Background(), ListStudentsQuery{Tier: "unknown"})
	assert.ErrorIs(t, err, shared.ErrInvalidTier)
}

func TestGetStudent(t *testing.T) {
	h := NewGetStudentHandler(loadedRegistry(t, oneHighTwoLow()...))

	d, err := h.Handle(context.Background(), "S-001")
	require.NoError(t, err)
	assert.Equal(t, risk.TierHigh, d.RiskTier)
	assert.Equal(t, 0.5, d.NormalizedScore)
	assert.True(t, d.Assessment.LowAttendance)
	assert.True(t, d.Assessment.LowSGPA)

	_, err = h.Handle(context.Background(), "S-404")
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
}

func newLedger(reg *student.Registry) *intervention.Ledger {
	return intervention.NewLedger(memory.NewInterventionStore(), reg, nil)
}

func TestListInterventions_JoinsStudent(t *testing.T) {
	reg := loadedRegistry(t, oneHighTwoLow()...)
	ledger := newLedger(reg)
	ctx := context.Background()

	_, err := ledger.Assign(ctx, intervention.AssignInput{StudentID: "S-001", Title: "Mentoring"})
	require.NoError(t, err)
	_, err = ledger.Assign(ctx, intervention.AssignInput{StudentID: "S-002", Title: "Check-in"})
	require.NoError(t, err)

	h := NewListInterventionsHandler(reg, ledger)
	views, err := h.All(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "Asha", views[0].StudentName)
	assert.Equal(t, risk.TierLow, views[0].RiskLevel)
	assert.Equal(t, "Ravi", views[1].StudentName)
	assert.Equal(t, "CSE", views[1].Department)
	assert.Equal(t, risk.TierHigh, views[1].RiskLevel)

	mine, err := h.ForStudent(ctx, "S-001")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Mentoring", mine[0].Title)

	_, err = h.ForStudent(ctx, "S-404")
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
}

type stubCounter struct {
	n   int64
	ok  bool
	err error
}

func (s stubCounter) OverdueCount(context.Context) (int64, bool, error) { return s.n, s.ok, s.err }
func (s stubCounter) Invalidate(context.Context) error                  { return nil }

// storedCounter keeps a count the way the Redis counter does.
type storedCounter struct {
	mu sync.Mutex
	n  int64
	ok bool
}

func (c *storedCounter) OverdueCount(context.Context) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n, c.ok, nil
}

func (c *storedCounter) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n, c.ok = 0, false
	return nil
}

// syncPublisher delivers events to handler on the publishing goroutine.
type syncPublisher struct {
	handler shared.EventHandler
}

func (p *syncPublisher) Publish(e shared.Event) error {
	if p.handler == nil {
		return nil
	}
	return p.handler(e)
}

func TestDashboardSummary(t *testing.T) {
	reg := loadedRegistry(t, oneHighTwoLow()...)
	ledger := newLedger(reg)
	ctx := context.Background()

	iv, err := ledger.Assign(ctx, intervention.AssignInput{StudentID: "S-001", Title: "Mentoring", DueDate: "2020-01-01"})
	require.NoError(t, err)
	_, err = ledger.Assign(ctx, intervention.AssignInput{StudentID: "S-002", Title: "Check-in"})
	require.NoError(t, err)
	_, err = ledger.Complete(ctx, iv.ID)
	require.NoError(t, err)

	h := NewDashboardSummaryHandler(reg, ledger, nil, true, nil)
	sum, err := h.Handle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.TotalStudents)
	assert.Equal(t, 1, sum.HighRiskCount)
	assert.Equal(t, 26.7, sum.AvgRiskScore)
	require.Len(t, sum.HighRiskStudents, 1)
	assert.Equal(t, "S-001", sum.HighRiskStudents[0].ID)
	assert.Equal(t, intervention.Counts{Total: 2, Pending: 1, Completed: 1}, sum.Interventions)
	assert.Equal(t, int64(0), sum.OverdueCount)
	assert.Equal(t, []string{
		"Critical Alert: 33% of students are in the High Risk category.",
	}, sum.Insights)
}

func TestDashboardSummary_EmptyRegistry(t *testing.T) {
	reg := loadedRegistry(t)
	h := NewDashboardSummaryHandler(reg, newLedger(reg), nil, true, nil)

	sum, err := h.Handle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.TotalStudents)
	assert.Zero(t, sum.AvgRiskScore)
	assert.Equal(t, []string{"No student data available for analysis."}, sum.Insights)
	assert.NotNil(t, sum.HighRiskStudents)
}

func TestDashboardSummary_OverdueCounter(t *testing.T) {
	reg := loadedRegistry(t, oneHighTwoLow()...)
	ledger := newLedger(reg)
	ctx := context.Background()
	_, err := ledger.Assign(ctx, intervention.AssignInput{StudentID: "S-001", Title: "late", DueDate: "2020-01-01"})
	require.NoError(t, err)

	cached := NewDashboardSummaryHandler(reg, ledger, stubCounter{n: 7, ok: true}, false, nil)
	sum, err := cached.Handle(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), sum.OverdueCount)
	assert.Empty(t, sum.Insights)

	broken := NewDashboardSummaryHandler(reg, ledger, stubCounter{err: errors.New("redis down")}, false, nil)
	sum, err = broken.Handle(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.OverdueCount)
}

func TestDashboardSummary_CompletingOverdueDropsCount(t *testing.T) {
	reg := loadedRegistry(t, oneHighTwoLow()...)
	pub := &syncPublisher{}
	ledger := intervention.NewLedger(memory.NewInterventionStore(), reg, pub)
	ctx := context.Background()

	late, err := ledger.Assign(ctx, intervention.AssignInput{StudentID: "S-001", Title: "late", DueDate: "2020-01-01"})
	require.NoError(t, err)

	counter := &storedCounter{n: 1, ok: true}
	h := NewDashboardSummaryHandler(reg, ledger, counter, false, nil)
	pub.handler = h.InterventionChanged

	sum, err := h.Handle(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.OverdueCount)

	_, err = ledger.Complete(ctx, late.ID)
	require.NoError(t, err)

	sum, err = h.Handle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Interventions.Pending)
	assert.Equal(t, int64(0), sum.OverdueCount)

	_, ok, _ := counter.OverdueCount(ctx)
	assert.False(t, ok)
}

func TestBuildInsights(t *testing.T) {
	tests := []struct {
		name       string
		attendance float64
		internals  float64
		high       int
		total      int
		want       []string
	}{
		{
			name:       "low attendance and low internals",
			attendance: 70, internals: 12, high: 1, total: 10,
			want: []string{
				"Overall class attendance is below 75%. This is a primary contributor to academic risk.",
				"Internal assessment scores are trending low. Remedial sessions recommended.",
				"Risk levels are within manageable limits for the majority of the cohort.",
			},
		},
		{
			name:       "high attendance",
			attendance: 93, internals: 20, high: 2, total: 10,
			want: []string{
				"High attendance rates are positively checking risk levels.",
				"Risk levels are within manageable limits for the majority of the cohort.",
			},
		},
		{
			name:       "critical share",
			attendance: 80, internals: 18, high: 3, total: 8,
			want: []string{
				"Critical Alert: 38% of students are in the High Risk category.",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildInsights(tt.attendance, tt.internals, tt.high, tt.total, 75))
		})
	}
}

func TestAdminStats(t *testing.T) {
	reg := loadedRegistry(t, oneHighTwoLow()...)
	ledger := newLedger(reg)
	ctx := context.Background()
	_, err := ledger.Assign(ctx, intervention.AssignInput{StudentID: "S-001", Title: "x"})
	require.NoError(t, err)

	stats, err := NewAdminStatsHandler(reg, ledger).Handle(ctx)
	require.NoError(t, err)
	assert.Equal(t, &AdminStats{
		TotalStudents:        3,
		HighRiskStudents:     1,
		PendingInterventions: 1,
		SnapshotVersion:      1,
	}, stats)
}
