// Package memory provides in-process stores used in development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edupredict/risk-monitor/internal/domain/intervention"
	"github.com/edupredict/risk-monitor/internal/domain/shared"
)

// InterventionStore keeps interventions in a copy-on-write slice. Readers load
// the current slice without locking; writers copy it under mu and swap it in.
type InterventionStore struct {
	mu    sync.Mutex
	items atomic.Pointer[[]*intervention.Intervention]
}

// NewInterventionStore creates an empty store.
func NewInterventionStore() *InterventionStore {
	s := &InterventionStore{}
	empty := make([]*intervention.Intervention, 0)
	s.items.Store(&empty)
	return s
}

var _ intervention.Store = (*InterventionStore)(nil)

func (s *InterventionStore) load() []*intervention.Intervention {
	return *s.items.Load()
}

func (s *InterventionStore) Create(ctx context.Context, iv *intervention.Intervention) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.load()
	for _, existing := range cur {
		if existing.ID == iv.ID {
			return shared.NewDomainError("intervention", "Create", shared.ErrAlreadyExists, "intervention already exists: "+iv.ID)
		}
	}

	next := make([]*intervention.Intervention, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, iv.Clone())
	s.items.Store(&next)
	return nil
}

func (s *InterventionStore) Get(ctx context.Context, id string) (*intervention.Intervention, error) {
	for _, iv := range s.load() {
		if iv.ID == id {
			return iv.Clone(), nil
		}
	}
	return nil, shared.ErrInterventionNotFound.WithMessage("intervention not found: " + id)
}

func (s *InterventionStore) List(ctx context.Context, filter intervention.ListFilter) ([]*intervention.Intervention, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]*intervention.Intervention, 0)
	for _, iv := range s.load() {
		if matches(iv, filter) {
			out = append(out, iv.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].AssignedAt.Equal(out[j].AssignedAt) {
			return out[i].AssignedAt.After(out[j].AssignedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func matches(iv *intervention.Intervention, f intervention.ListFilter) bool {
	if f.StudentID != "" && iv.StudentID != f.StudentID {
		return false
	}
	if f.Status != "" && iv.Status != f.Status {
		return false
	}
	if f.DueBefore != "" && (iv.DueDate == "" || iv.DueDate >= f.DueBefore) {
		return false
	}
	return true
}

func (s *InterventionStore) Complete(ctx context.Context, id string, at time.Time) (*intervention.Intervention, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.load()
	for i, iv := range cur {
		if iv.ID != id {
			continue
		}
		if iv.Status == intervention.StatusCompleted {
			return iv.Clone(), false, nil
		}

		updated := iv.Clone()
		updated.Status = intervention.StatusCompleted
		completedAt := at
		updated.CompletedAt = &completedAt

		next := make([]*intervention.Intervention, len(cur))
		copy(next, cur)
		next[i] = updated
		s.items.Store(&next)
		return updated.Clone(), true, nil
	}
	return nil, false, shared.ErrInterventionNotFound.WithMessage("intervention not found: " + id)
}

func (s *InterventionStore) Counts(ctx context.Context) (intervention.Counts, error) {
	var c intervention.Counts
	for _, iv := range s.load() {
		c.Total++
		switch iv.Status {
		case intervention.StatusPending:
			c.Pending++
		case intervention.StatusCompleted:
			c.Completed++
		}
	}
	return c, nil
}
