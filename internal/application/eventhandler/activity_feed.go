// Package eventhandler contains subscribers to domain events.
package eventhandler

import (
	"sync"
	"time"

	"github.com/edupredict/risk-monitor/internal/domain/shared"
	"github.com/edupredict/risk-monitor/pkg/logger"
)

// DefaultFeedCapacity is the number of entries kept when none is configured.
const DefaultFeedCapacity = 200

// ActivityEntry is one recorded domain event.
type ActivityEntry struct {
	Type        shared.EventType       `json:"type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	// Origin is the publishing instance for events received from the bus.
	Origin string `json:"origin,omitempty"`
}

type originated interface {
	Origin() string
}

// ActivityFeed keeps the most recent domain events in a ring buffer and
// writes each one to the audit log. Register Handle with SubscribeAll.
type ActivityFeed struct {
	mu      sync.RWMutex
	entries []ActivityEntry
	next    int
	full    bool
	log     *logger.Logger
}

func NewActivityFeed(capacity int, log *logger.Logger) *ActivityFeed {
	if capacity <= 0 {
		capacity = DefaultFeedCapacity
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ActivityFeed{
		entries: make([]ActivityEntry, capacity),
		log:     log.With(logger.Component("activity_feed")),
	}
}

// Handle records event. It never fails.
func (f *ActivityFeed) Handle(event shared.Event) error {
	entry := ActivityEntry{
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	}
	if o, ok := event.(originated); ok {
		entry.Origin = o.Origin()
	}

	f.mu.Lock()
	f.entries[f.next] = entry
	f.next = (f.next + 1) % len(f.entries)
	if f.next == 0 {
		f.full = true
	}
	f.mu.Unlock()

	f.log.Info("domain event",
		logger.String("event_type", string(entry.Type)),
		logger.String("aggregate_id", entry.AggregateID),
		logger.String("origin", entry.Origin),
	)
	return nil
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (f *ActivityFeed) Recent(limit int) []ActivityEntry {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n := f.next
	if f.full {
		n = len(f.entries)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]ActivityEntry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (f.next - i + len(f.entries)) % len(f.entries)
		out = append(out, f.entries[idx])
	}
	return out
}
