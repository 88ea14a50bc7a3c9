package student

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupredict/risk-monitor/internal/domain/risk"
	"github.com/edupredict/risk-monitor/internal/domain/shared"
)

type fixedPolicy struct{ c *risk.Classifier }

func (p fixedPolicy) Current() *risk.Classifier { return p.c }

func defaultPolicy() fixedPolicy {
	return fixedPolicy{c: risk.MustClassifier(risk.DefaultThresholds())}
}

func sampleStudents() []Student {
	return []Student{
		{ID: "S-003", Name: "Ravi", Department: "CSE", AttendancePercentage: 60, SGPA: 5.5, RawRiskScore: 50},
		{ID: "S-001", Name: "Asha", Department: "CSE", AttendancePercentage: 92, SGPA: 8.4, RawRiskScore: 12},
		{ID: "S-002", Name: "Meera", Department: "ECE", AttendancePercentage: 88, SGPA: 7.9, RawRiskScore: 20},
	}
}

func TestRegistry_EmptyBeforeRefresh(t *testing.T) {
	reg := NewRegistry(StaticSource(sampleStudents()), defaultPolicy())

	assert.False(t, reg.Loaded())
	assert.Equal(t, 0, reg.Snapshot().Len())
	_, err := reg.ByID("S-001")
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
}

func TestRegistry_RefreshPublishesSortedSnapshot(t *testing.T) {
	reg := NewRegistry(StaticSource(sampleStudents()), defaultPolicy())

	stats, err := reg.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Version)
	assert.Equal(t, 3, stats.Accepted)
	assert.Empty(t, stats.Rejected)

	all := reg.All()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"S-001", "S-002", "S-003"}, []string{all[0].ID, all[1].ID, all[2].ID})

	s, err := reg.ByID("S-002")
	require.NoError(t, err)
	assert.Equal(t, "Meera", s.Name)
}

func TestRegistry_ByRiskTier(t *testing.T) {
	reg := NewRegistry(StaticSource(sampleStudents()), defaultPolicy())
	_, err := reg.Refresh(context.Background())
	require.NoError(t, err)

	high, err := reg.ByRiskTier(risk.TierHigh)
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, "S-003", high[0].ID)

	medium, err := reg.ByRiskTier(risk.TierMedium)
	require.NoError(t, err)
	assert.NotNil(t, medium)
	assert.Empty(t, medium)

	_, err = reg.ByRiskTier(risk.Tier("Severe"))
	assert.ErrorIs(t, err, shared.ErrInvalidTier)
}

func TestRegistry_RejectsInvalidRows(t *testing.T) {
	rows := append(sampleStudents(),
		Student{ID: "S-009", AttendancePercentage: 140, SGPA: 7, RawRiskScore: 10},
		Student{ID: "", AttendancePercentage: 80, SGPA: 7},
		Student{ID: "S-001", AttendancePercentage: 80, SGPA: 7},
	)
	reg := NewRegistry(StaticSource(rows), defaultPolicy())

	stats, err := reg.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Loaded)
	assert.Equal(t, 3, stats.Accepted)
	require.Len(t, stats.Rejected, 3)
	assert.Equal(t, "S-009", stats.Rejected[0].StudentID)
	assert.Equal(t, "missing student id", stats.Rejected[1].Reason)
	assert.Equal(t, "duplicate student id", stats.Rejected[2].Reason)
}

func TestRegistry_SnapshotIsImmutableAcrossRefresh(t *testing.T) {
	rows := sampleStudents()
	var mu sync.Mutex
	src := SourceFunc(func(ctx context.Context) ([]Student, error) {
		mu.Lock()
		defer mu.Unlock()
		out := make([]Student, len(rows))
		copy(out, rows)
		return out, nil
	})
	reg := NewRegistry(src, defaultPolicy())
	_, err := reg.Refresh(context.Background())
	require.NoError(t, err)

	before := reg.Snapshot()

	mu.Lock()
	rows = append(rows, Student{ID: "S-004", Name: "Kiran", AttendancePercentage: 50, SGPA: 4, RawRiskScore: 90})
	mu.Unlock()
	_, err = reg.Refresh(context.Background())
	require.NoError(t, err)

	after := reg.Snapshot()
	assert.Equal(t, 3, before.Len())
	assert.Equal(t, 4, after.Len())
	assert.Greater(t, after.Version(), before.Version())

	high, err := before.ByRiskTier(risk.TierHigh)
	require.NoError(t, err)
	assert.Len(t, high, 1)

	// Mutating a returned slice does not leak into the snapshot.
	all := after.All()
	all[0].Name = "changed"
	s, _ := after.ByID(all[0].ID)
	assert.NotEqual(t, "changed", s.Name)
}

func TestRegistry_RefreshErrorKeepsPreviousSnapshot(t *testing.T) {
	fail := false
	src := SourceFunc(func(ctx context.Context) ([]Student, error) {
		if fail {
			return nil, errors.New("source unavailable")
		}
		return sampleStudents(), nil
	})
	reg := NewRegistry(src, defaultPolicy())
	_, err := reg.Refresh(context.Background())
	require.NoError(t, err)

	fail = true
	_, err = reg.Refresh(context.Background())
	assert.Error(t, err)
	assert.Equal(t, uint64(1), reg.Snapshot().Version())
	assert.Equal(t, 3, reg.Snapshot().Len())
}

func TestRegistry_OverlappingRefreshesPublishLatestLoad(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	src := SourceFunc(func(ctx context.Context) ([]Student, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(entered)
			<-release
			return []Student{{ID: "OLD", Name: "Old", Department: "CSE", AttendancePercentage: 90, SGPA: 8, RawRiskScore: 10}}, nil
		}
		return []Student{{ID: "NEW", Name: "New", Department: "CSE", AttendancePercentage: 90, SGPA: 8, RawRiskScore: 10}}, nil
	})
	reg := NewRegistry(src, defaultPolicy())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := reg.Refresh(context.Background())
		assert.NoError(t, err)
	}()
	<-entered

	secondDone := make(chan struct{})
	go func() {
		defer wg.Done()
		defer close(secondDone)
		_, err := reg.Refresh(context.Background())
		assert.NoError(t, err)
	}()

	select {
	case <-secondDone:
		t.Fatal("second refresh completed while the first was still loading")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	wg.Wait()

	snap := reg.Snapshot()
	assert.Equal(t, uint64(2), snap.Version())
	assert.True(t, snap.Contains("NEW"))
	assert.False(t, snap.Contains("OLD"))
}

type switchablePolicy struct {
	mu sync.Mutex
	c  *risk.Classifier
}

func (p *switchablePolicy) Current() *risk.Classifier {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.c
}

func TestRegistry_ReclassifyAppliesNewPolicy(t *testing.T) {
	policy := &switchablePolicy{c: risk.MustClassifier(risk.DefaultThresholds())}
	reg := NewRegistry(StaticSource(sampleStudents()), policy)
	_, err := reg.Refresh(context.Background())
	require.NoError(t, err)

	th := risk.DefaultThresholds()
	th.HighRiskScore = 15
	th.MediumBand = 5
	policy.mu.Lock()
	policy.c = risk.MustClassifier(th)
	policy.mu.Unlock()

	old := reg.Snapshot()
	stats := reg.Reclassify()
	assert.Equal(t, uint64(2), stats.Version)

	oldHigh, _ := old.ByRiskTier(risk.TierHigh)
	newHigh, _ := reg.Snapshot().ByRiskTier(risk.TierHigh)
	assert.Len(t, oldHigh, 1)
	assert.Len(t, newHigh, 2)
}

func TestSnapshot_CountByTierSumsToLen(t *testing.T) {
	reg := NewRegistry(StaticSource(sampleStudents()), defaultPolicy())
	_, err := reg.Refresh(context.Background())
	require.NoError(t, err)

	counts, err := reg.Snapshot().CountByTier()
	require.NoError(t, err)

	total := 0
	for _, tier := range risk.Tiers {
		total += counts[tier]
	}
	assert.Equal(t, reg.Snapshot().Len(), total)
	assert.Equal(t, 1, counts[risk.TierHigh])
	assert.Equal(t, 0, counts[risk.TierMedium])
	assert.Equal(t, 2, counts[risk.TierLow])
}

func TestRegistry_ConcurrentReadsDuringRefresh(t *testing.T) {
	reg := NewRegistry(StaticSource(sampleStudents()), defaultPolicy())
	_, err := reg.Refresh(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = reg.Refresh(context.Background())
		}()
		go func() {
			defer wg.Done()
			snap := reg.Snapshot()
			counts, err := snap.CountByTier()
			assert.NoError(t, err)
			assert.Equal(t, snap.Len(), counts[risk.TierLow]+counts[risk.TierMedium]+counts[risk.TierHigh])
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(9), reg.Snapshot().Version())
}
