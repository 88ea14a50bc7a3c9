package risk

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edupredict/risk-monitor/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// POLICY
// ══════════════════════════════════════════════════════════════════════════════

// Policy is one published version of the thresholds.
type Policy struct {
	Version    int64      `json:"version"`
	Thresholds Thresholds `json:"thresholds"`
	UpdatedAt  time.Time  `json:"updated_at"`
	UpdatedBy  string     `json:"updated_by"`
}

// PolicyRepository persists policy versions. Versions are append-only.
type PolicyRepository interface {
	// Latest returns the newest policy or ErrPolicyNotFound.
	Latest(ctx context.Context) (*Policy, error)
	// Save stores p under p.Version. Saving an existing version fails.
	Save(ctx context.Context, p *Policy) error
}

// ══════════════════════════════════════════════════════════════════════════════
// POLICY STORE
// ══════════════════════════════════════════════════════════════════════════════

type policyState struct {
	policy     Policy
	classifier *Classifier
}

// PolicyStore owns the current classifier. Reads are lock-free; updates are
// serialized and publish a brand new classifier.
type PolicyStore struct {
	current   atomic.Pointer[policyState]
	repo      PolicyRepository
	publisher shared.EventPublisher
	writeMu   sync.Mutex
	now       func() time.Time
}

// NewPolicyStore starts with the bootstrap thresholds as version 0.
// repo and publisher may be nil.
func NewPolicyStore(bootstrap Thresholds, repo PolicyRepository, publisher shared.EventPublisher) (*PolicyStore, error) {
	c, err := NewClassifier(bootstrap)
	if err != nil {
		return nil, err
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}

	s := &PolicyStore{repo: repo, publisher: publisher, now: time.Now}
	s.current.Store(&policyState{
		policy:     Policy{Version: 0, Thresholds: bootstrap, UpdatedAt: time.Now(), UpdatedBy: "bootstrap"},
		classifier: c,
	})
	return s, nil
}

// Current returns the classifier in effect.
func (s *PolicyStore) Current() *Classifier {
	return s.current.Load().classifier
}

// Policy returns the policy in effect.
func (s *PolicyStore) Policy() Policy {
	return s.current.Load().policy
}

// Load replaces the in-memory policy with the latest persisted version, if
// it is newer. It returns true when the classifier changed.
func (s *PolicyStore) Load(ctx context.Context) (bool, error) {
	if s.repo == nil {
		return false, nil
	}

	p, err := s.repo.Latest(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrPolicyNotFound) {
			return false, nil
		}
		return false, err
	}

	c, err := NewClassifier(p.Thresholds)
	if err != nil {
		return false, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if p.Version <= s.current.Load().policy.Version {
		return false, nil
	}
	s.current.Store(&policyState{policy: *p, classifier: c})
	return true, nil
}

// Update validates t, persists it as the next version and swaps it in.
// On any error the current policy is left untouched.
func (s *PolicyStore) Update(ctx context.Context, t Thresholds, updatedBy string) (Policy, error) {
	c, err := NewClassifier(t)
	if err != nil {
		return Policy{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	prev := s.current.Load().policy
	next := Policy{
		Version:    prev.Version + 1,
		Thresholds: t,
		UpdatedAt:  s.now().UTC(),
		UpdatedBy:  updatedBy,
	}

	if s.repo != nil {
		if err := s.repo.Save(ctx, &next); err != nil {
			return Policy{}, err
		}
	}

	s.current.Store(&policyState{policy: next, classifier: c})
	_ = s.publisher.Publish(shared.NewRiskPolicyUpdatedEvent(next.Version, updatedBy))
	return next, nil
}
