package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/edupredict/risk-monitor/internal/domain/intervention"
	"github.com/edupredict/risk-monitor/pkg/logger"
	"github.com/edupredict/risk-monitor/pkg/timeutil"
)

// OverdueLister is implemented by intervention.Ledger.
type OverdueLister interface {
	Overdue(ctx context.Context, asOf time.Time) ([]*intervention.Intervention, error)
}

// OverdueCountWriter stores the latest overdue count for the dashboard.
type OverdueCountWriter interface {
	SetOverdueCount(ctx context.Context, count int64, asOf time.Time) error
}

// OverdueInterventionsJob counts pending interventions whose due date has
// passed and publishes the count for the dashboard.
type OverdueInterventionsJob struct {
	ledger  OverdueLister
	counter OverdueCountWriter
	log     *logger.Logger
	now     func() time.Time
}

func NewOverdueInterventionsJob(ledger OverdueLister, counter OverdueCountWriter, log *logger.Logger) *OverdueInterventionsJob {
	if log == nil {
		log = logger.Nop()
	}
	return &OverdueInterventionsJob{
		ledger:  ledger,
		counter: counter,
		log:     log.With(logger.String("job", "overdue_interventions")),
		now:     timeutil.Now,
	}
}

func (j *OverdueInterventionsJob) Name() string { return "overdue_interventions" }

func (j *OverdueInterventionsJob) Description() string {
	return "Count pending interventions past their due date"
}

func (j *OverdueInterventionsJob) Run(ctx context.Context) error {
	asOf := j.now()
	overdue, err := j.ledger.Overdue(ctx, asOf)
	if err != nil {
		return fmt.Errorf("failed to list overdue interventions: %w", err)
	}

	for _, iv := range overdue {
		j.log.Debug("intervention overdue",
			logger.InterventionID(iv.ID),
			logger.StudentID(iv.StudentID),
			logger.String("due_date", iv.DueDate),
		)
	}

	if j.counter != nil {
		if err := j.counter.SetOverdueCount(ctx, int64(len(overdue)), asOf); err != nil {
			return fmt.Errorf("failed to store overdue count: %w", err)
		}
	}

	if len(overdue) > 0 {
		j.log.Info("overdue interventions found", logger.Int("count", len(overdue)))
	}
	return nil
}
