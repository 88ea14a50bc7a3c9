// Package jobs contains the worker's scheduled jobs.
package jobs

import (
	"context"
	"time"

	"github.com/edupredict/risk-monitor/internal/application/command"
	"github.com/edupredict/risk-monitor/internal/domain/student"
	"github.com/edupredict/risk-monitor/pkg/logger"
	"github.com/edupredict/risk-monitor/pkg/retry"
)

// RegistryRefresher is implemented by command.RefreshRegistryHandler.
type RegistryRefresher interface {
	Handle(ctx context.Context, cmd command.RefreshRegistryCommand) (student.RefreshStats, error)
}

// RefreshRegistryJob reloads the student source and broadcasts the new
// snapshot so every API instance refreshes too.
type RefreshRegistryJob struct {
	refresher RegistryRefresher
	retrier   *retry.Retrier
	log       *logger.Logger
}

func NewRefreshRegistryJob(refresher RegistryRefresher, log *logger.Logger) *RefreshRegistryJob {
	if log == nil {
		log = logger.Nop()
	}
	return &RefreshRegistryJob{
		refresher: refresher,
		retrier:   retry.SourceRetrier(),
		log:       log.With(logger.String("job", "refresh_registry")),
	}
}

func (j *RefreshRegistryJob) Name() string { return "refresh_registry" }

func (j *RefreshRegistryJob) Description() string {
	return "Reload student records from the source and reclassify every student"
}

func (j *RefreshRegistryJob) Run(ctx context.Context) error {
	start := time.Now()
	var stats student.RefreshStats
	err := j.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		stats, err = j.refresher.Handle(ctx, command.RefreshRegistryCommand{Broadcast: true, Trigger: "scheduled"})
		return err
	})
	if err != nil {
		return err
	}

	j.log.Debug("scheduled refresh done",
		logger.SnapshotVersion(stats.Version),
		logger.Int("accepted", stats.Accepted),
		logger.Latency(time.Since(start)),
	)
	return nil
}
