package redis

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type overdueDoc struct {
	Count int64     `json:"count"`
	AsOf  time.Time `json:"as_of"`
}

// OverdueCounter stores the overdue-intervention count computed by the
// worker so API instances can read it without scanning the ledger.
type OverdueCounter struct {
	store Store
	ttl   time.Duration
}

func NewOverdueCounter(store Store) *OverdueCounter {
	return &OverdueCounter{store: store, ttl: TTLOverdueCount}
}

// SetOverdueCount records count as of asOf.
func (c *OverdueCounter) SetOverdueCount(ctx context.Context, count int64, asOf time.Time) error {
	if count < 0 {
		return fmt.Errorf("overdue count must not be negative: %d", count)
	}
	if err := c.store.Set(ctx, KeyOverdueCount, overdueDoc{Count: count, AsOf: asOf.UTC()}, c.ttl); err != nil {
		return fmt.Errorf("failed to store overdue count: %w", err)
	}
	return nil
}

// OverdueCount returns the stored count. ok is false when nothing is stored.
func (c *OverdueCounter) OverdueCount(ctx context.Context) (int64, bool, error) {
	var doc overdueDoc
	if err := c.store.Get(ctx, KeyOverdueCount, &doc); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read overdue count: %w", err)
	}
	return doc.Count, true, nil
}

// Invalidate drops the stored count. Readers fall back to scanning the ledger
// until the next worker run stores a fresh one.
func (c *OverdueCounter) Invalidate(ctx context.Context) error {
	if err := c.store.Delete(ctx, KeyOverdueCount); err != nil {
		return fmt.Errorf("failed to invalidate overdue count: %w", err)
	}
	return nil
}
