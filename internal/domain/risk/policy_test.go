package risk

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupredict/risk-monitor/internal/domain/shared"
)

type memPolicyRepo struct {
	mu       sync.Mutex
	policies []Policy
	saveErr  error
}

func (r *memPolicyRepo) Latest(ctx context.Context) (*Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.policies) == 0 {
		return nil, shared.ErrPolicyNotFound
	}
	p := r.policies[len(r.policies)-1]
	return &p, nil
}

func (r *memPolicyRepo) Save(ctx context.Context, p *Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.policies = append(r.policies, *p)
	return nil
}

type recordingPublisher struct {
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.events = append(p.events, e)
	return nil
}

func TestPolicyStore_UpdateSwapsClassifier(t *testing.T) {
	repo := &memPolicyRepo{}
	pub := &recordingPublisher{}
	store, err := NewPolicyStore(DefaultThresholds(), repo, pub)
	require.NoError(t, err)

	before := store.Current()
	m := Metrics{AttendancePercentage: 90, SGPA: 8, RawRiskScore: 65}
	tier, _, _ := before.Classify(m)
	assert.Equal(t, TierMedium, tier)

	th := DefaultThresholds()
	th.HighRiskScore = 60
	p, err := store.Update(context.Background(), th, "admin@example.edu")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Version)

	after := store.Current()
	tier, _, _ = after.Classify(m)
	assert.Equal(t, TierHigh, tier)

	// The previously handed out classifier keeps its policy.
	tier, _, _ = before.Classify(m)
	assert.Equal(t, TierMedium, tier)

	require.Len(t, repo.policies, 1)
	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventRiskPolicyUpdated, pub.events[0].EventType())
}

func TestPolicyStore_UpdateRejectsInvalid(t *testing.T) {
	store, err := NewPolicyStore(DefaultThresholds(), nil, nil)
	require.NoError(t, err)

	bad := DefaultThresholds()
	bad.ScoreScale = 0
	_, err = store.Update(context.Background(), bad, "x")
	assert.ErrorIs(t, err, shared.ErrInvalidThresholds)
	assert.Equal(t, int64(0), store.Policy().Version)
}

func TestPolicyStore_SaveFailureKeepsCurrent(t *testing.T) {
	repo := &memPolicyRepo{saveErr: errors.New("db down")}
	store, err := NewPolicyStore(DefaultThresholds(), repo, nil)
	require.NoError(t, err)

	th := DefaultThresholds()
	th.LowSGPA = 5
	_, err = store.Update(context.Background(), th, "x")
	assert.Error(t, err)
	assert.Equal(t, 6.0, store.Current().Thresholds().LowSGPA)
}

func TestPolicyStore_LoadNewerVersion(t *testing.T) {
	th := DefaultThresholds()
	th.LowAttendance = 80
	repo := &memPolicyRepo{policies: []Policy{{Version: 4, Thresholds: th, UpdatedBy: "ops"}}}

	store, err := NewPolicyStore(DefaultThresholds(), repo, nil)
	require.NoError(t, err)

	changed, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(4), store.Policy().Version)
	assert.Equal(t, 80.0, store.Current().Thresholds().LowAttendance)

	changed, err = store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestPolicyStore_LoadWithoutPersistedPolicy(t *testing.T) {
	store, err := NewPolicyStore(DefaultThresholds(), &memPolicyRepo{}, nil)
	require.NoError(t, err)

	changed, err := store.Load(context.Background())
	assert.NoError(t, err)
	assert.False(t, changed)
}
