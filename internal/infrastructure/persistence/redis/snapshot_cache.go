package redis

import (
	"context"
	"errors"
	"time"

	"github.com/edupredict/risk-monitor/internal/domain/student"
	"github.com/edupredict/risk-monitor/pkg/logger"
)

// cachedSnapshot is the JSON document stored under KeyRegistrySnapshot.
type cachedSnapshot struct {
	Students []student.Student `json:"students"`
	SavedAt  time.Time         `json:"saved_at"`
}

// CachedSource decorates a student.Source. Every successful load is written
// to Redis; when the source fails, the last written rows are served instead.
type CachedSource struct {
	source student.Source
	store  Store
	ttl    time.Duration
	log    *logger.Logger
	now    func() time.Time
}

// NewCachedSource wraps source. log may be nil.
func NewCachedSource(source student.Source, store Store, log *logger.Logger) *CachedSource {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedSource{
		source: source,
		store:  store,
		ttl:    TTLRegistrySnapshot,
		log:    log.With(logger.Component("snapshot_cache")),
		now:    time.Now,
	}
}

// LoadAll implements student.Source.
func (s *CachedSource) LoadAll(ctx context.Context) ([]student.Student, error) {
	rows, err := s.source.LoadAll(ctx)
	if err == nil {
		doc := cachedSnapshot{Students: rows, SavedAt: s.now().UTC()}
		if werr := s.store.Set(ctx, KeyRegistrySnapshot, doc, s.ttl); werr != nil {
			s.log.Warn("failed to cache registry snapshot", logger.Err(werr))
		}
		return rows, nil
	}

	var doc cachedSnapshot
	if cerr := s.store.Get(ctx, KeyRegistrySnapshot, &doc); cerr != nil {
		if !errors.Is(cerr, ErrCacheMiss) {
			s.log.Warn("failed to read cached registry snapshot", logger.Err(cerr))
		}
		return nil, err
	}

	s.log.Warn("student source unavailable, serving cached snapshot",
		logger.Err(err),
		logger.Int("students", len(doc.Students)),
		logger.Time("saved_at", doc.SavedAt),
	)
	return doc.Students, nil
}
