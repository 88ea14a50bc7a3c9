package command

import (
	"context"

	"github.com/edupredict/risk-monitor/internal/domain/shared"
	"github.com/edupredict/risk-monitor/internal/domain/student"
	"github.com/edupredict/risk-monitor/pkg/logger"
)

// RefreshRegistryCommand reloads the student source.
type RefreshRegistryCommand struct {
	// Broadcast announces the new snapshot to other instances.
	Broadcast bool
	Trigger   string
}

// RefreshRegistryHandler handles RefreshRegistryCommand.
type RefreshRegistryHandler struct {
	registry  *student.Registry
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewRefreshRegistryHandler creates the handler. publisher may be nil.
func NewRefreshRegistryHandler(registry *student.Registry, publisher shared.EventPublisher, log *logger.Logger) *RefreshRegistryHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RefreshRegistryHandler{registry: registry, publisher: publisher, log: log.With(logger.Component("refresh_registry"))}
}

func (h *RefreshRegistryHandler) Handle(ctx context.Context, cmd RefreshRegistryCommand) (student.RefreshStats, error) {
	stats, err := h.registry.Refresh(ctx)
	if err != nil {
		h.log.Error("registry refresh failed", logger.String("trigger", cmd.Trigger), logger.Err(err))
		return stats, err
	}

	for _, r := range stats.Rejected {
		h.log.Warn("skipped invalid student record", logger.StudentID(r.StudentID), logger.String("reason", r.Reason))
	}
	h.log.Info("registry refreshed",
		logger.String("trigger", cmd.Trigger),
		logger.SnapshotVersion(stats.Version),
		logger.Int("accepted", stats.Accepted),
		logger.Int("rejected", len(stats.Rejected)),
		logger.Latency(stats.Duration),
	)

	if cmd.Broadcast {
		if err := h.publisher.Publish(shared.NewRegistryRefreshedEvent(stats.Version, stats.Accepted, len(stats.Rejected))); err != nil {
			h.log.Warn("failed to broadcast registry refresh", logger.Err(err))
		}
	}
	return stats, nil
}
