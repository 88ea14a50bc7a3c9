package student

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edupredict/risk-monitor/internal/domain/risk"
	"github.com/edupredict/risk-monitor/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot is an immutable view of the registry. All methods are safe for
// concurrent use and never observe a later refresh.
type Snapshot struct {
	version    uint64
	loadedAt   time.Time
	students   []Student
	index      map[string]int
	classifier *risk.Classifier
}

func newSnapshot(version uint64, loadedAt time.Time, students []Student, c *risk.Classifier) *Snapshot {
	index := make(map[string]int, len(students))
	for i, s := range students {
		index[s.ID] = i
	}
	return &Snapshot{
		version:    version,
		loadedAt:   loadedAt,
		students:   students,
		index:      index,
		classifier: c,
	}
}

func (s *Snapshot) Version() uint64              { return s.version }
func (s *Snapshot) LoadedAt() time.Time          { return s.loadedAt }
func (s *Snapshot) Len() int                     { return len(s.students) }
func (s *Snapshot) Classifier() *risk.Classifier { return s.classifier }

// All returns a copy of every student, ordered by ID.
func (s *Snapshot) All() []Student {
	out := make([]Student, len(s.students))
	copy(out, s.students)
	return out
}

// ByID returns the student or ErrStudentNotFound.
func (s *Snapshot) ByID(id string) (Student, error) {
	i, ok := s.index[id]
	if !ok {
		return Student{}, shared.ErrStudentNotFound.WithMessage("student not found: " + id)
	}
	return s.students[i], nil
}

// Contains reports whether id is known to this snapshot.
func (s *Snapshot) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Classify computes the tier for st with this snapshot's classifier.
func (s *Snapshot) Classify(st Student) (Classified, error) {
	tier, score, err := s.classifier.Classify(st.Metrics())
	if err != nil {
		return Classified{}, err
	}
	return Classified{Student: st, RiskTier: tier, NormalizedScore: score}, nil
}

// ByRiskTier scans every student and returns those in tier. The result is
// empty, not nil, when no student matches.
func (s *Snapshot) ByRiskTier(tier risk.Tier) ([]Student, error) {
	if !tier.IsValid() {
		return nil, shared.ErrInvalidTier.WithMessage("unrecognized risk tier: " + string(tier))
	}

	out := make([]Student, 0)
	for _, st := range s.students {
		t, _, err := s.classifier.Classify(st.Metrics())
		if err != nil {
			return nil, err
		}
		if t == tier {
			out = append(out, st)
		}
	}
	return out, nil
}

// Classified returns every student with its tier, in one pass.
func (s *Snapshot) Classified() ([]Classified, error) {
	out := make([]Classified, 0, len(s.students))
	for _, st := range s.students {
		c, err := s.Classify(st)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// CountByTier returns the number of students per tier. Every tier is present.
func (s *Snapshot) CountByTier() (map[risk.Tier]int, error) {
	counts := make(map[risk.Tier]int, len(risk.Tiers))
	for _, t := range risk.Tiers {
		counts[t] = 0
	}
	for _, st := range s.students {
		t, _, err := s.classifier.Classify(st.Metrics())
		if err != nil {
			return nil, err
		}
		counts[t]++
	}
	return counts, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// ClassifierProvider hands out the classifier currently in effect.
type ClassifierProvider interface {
	Current() *risk.Classifier
}

// Rejection records a source row that was left out of a snapshot.
type Rejection struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// RefreshStats summarizes one refresh or reclassification.
type RefreshStats struct {
	Version    uint64        `json:"version"`
	Loaded     int           `json:"loaded"`
	Accepted   int           `json:"accepted"`
	Rejected   []Rejection   `json:"rejected,omitempty"`
	Duration   time.Duration `json:"duration"`
	CapturedAt time.Time     `json:"captured_at"`
}

// Registry publishes immutable snapshots of the student source.
type Registry struct {
	source Source
	policy ClassifierProvider

	current atomic.Pointer[Snapshot]

	// loadMu is held across a whole Refresh, load included, so refreshes
	// publish in the order they loaded. refreshMu serializes writers; raw is
	// the last successful load.
	loadMu    sync.Mutex
	refreshMu sync.Mutex
	raw       []Student

	now func() time.Time
}

// NewRegistry creates a registry holding an empty version-0 snapshot.
func NewRegistry(source Source, policy ClassifierProvider) *Registry {
	r := &Registry{source: source, policy: policy, now: time.Now}
	r.current.Store(newSnapshot(0, time.Time{}, nil, policy.Current()))
	return r
}

// Snapshot returns the current snapshot.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Loaded reports whether at least one refresh has completed.
func (r *Registry) Loaded() bool {
	return r.current.Load().version > 0
}

func (r *Registry) All() []Student                  { return r.Snapshot().All() }
func (r *Registry) ByID(id string) (Student, error) { return r.Snapshot().ByID(id) }
func (r *Registry) Contains(id string) bool         { return r.Snapshot().Contains(id) }
func (r *Registry) ByRiskTier(tier risk.Tier) ([]Student, error) {
	return r.Snapshot().ByRiskTier(tier)
}

// Refresh loads the source and publishes a new snapshot. On error the
// previous snapshot stays current.
func (r *Registry) Refresh(ctx context.Context) (RefreshStats, error) {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	start := r.now()

	rows, err := r.source.LoadAll(ctx)
	if err != nil {
		return RefreshStats{}, fmt.Errorf("failed to load students: %w", err)
	}

	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	r.raw = rows
	stats := r.publishLocked(rows)
	stats.Duration = r.now().Sub(start)
	return stats, nil
}

// Reclassify rebuilds the snapshot from the last load using the current
// classifier. Call it after a policy change.
func (r *Registry) Reclassify() RefreshStats {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	if r.current.Load().version == 0 && r.raw == nil {
		return RefreshStats{}
	}
	return r.publishLocked(r.raw)
}

// publishLocked must be called with refreshMu held.
func (r *Registry) publishLocked(rows []Student) RefreshStats {
	c := r.policy.Current()
	stats := RefreshStats{Loaded: len(rows), CapturedAt: r.now()}

	accepted := make([]Student, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, st := range rows {
		switch {
		case !st.HasIdentity():
			stats.Rejected = append(stats.Rejected, Rejection{Reason: "missing student id"})
			continue
		case hasKey(seen, st.ID):
			stats.Rejected = append(stats.Rejected, Rejection{StudentID: st.ID, Reason: "duplicate student id"})
			continue
		}
		if _, _, err := c.Classify(st.Metrics()); err != nil {
			stats.Rejected = append(stats.Rejected, Rejection{StudentID: st.ID, Reason: err.Error()})
			continue
		}
		seen[st.ID] = struct{}{}
		accepted = append(accepted, st)
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].ID < accepted[j].ID })

	version := r.current.Load().version + 1
	r.current.Store(newSnapshot(version, stats.CapturedAt, accepted, c))

	stats.Version = version
	stats.Accepted = len(accepted)
	return stats
}

func hasKey(m map[string]struct{}, k string) bool {
	_, ok := m[k]
	return ok
}
