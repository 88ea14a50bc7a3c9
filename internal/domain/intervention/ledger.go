package intervention

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edupredict/risk-monitor/internal/domain/shared"
)

// StudentLookup answers whether a student exists right now.
// *student.Registry satisfies it.
type StudentLookup interface {
	Contains(id string) bool
}

// Ledger is the only writer of interventions.
type Ledger struct {
	store     Store
	students  StudentLookup
	publisher shared.EventPublisher
	now       func() time.Time
	newID     func() (string, error)
}

// NewLedger creates a ledger. publisher may be nil.
func NewLedger(store Store, students StudentLookup, publisher shared.EventPublisher) *Ledger {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &Ledger{
		store:     store,
		students:  students,
		publisher: publisher,
		now:       time.Now,
		newID:     newInterventionID,
	}
}

func newInterventionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Preflight runs the checks Assign performs before writing, without writing.
func (l *Ledger) Preflight(in AssignInput) (AssignInput, error) {
	in, err := in.normalize()
	if err != nil {
		return in, err
	}
	if !l.students.Contains(in.StudentID) {
		return in, shared.ErrUnknownStudent.WithMessage("unknown student: " + in.StudentID)
	}
	return in, nil
}

// Assign creates a Pending intervention. The title is validated before the
// student is looked up, and the lookup uses the registry as of this call.
func (l *Ledger) Assign(ctx context.Context, in AssignInput) (*Intervention, error) {
	in, err := l.Preflight(in)
	if err != nil {
		return nil, err
	}

	id, err := l.newID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate intervention id: %w", err)
	}

	iv := &Intervention{
		ID:          id,
		StudentID:   in.StudentID,
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Status:      StatusPending,
		Document:    in.Document,
		AssignedAt:  l.now().UTC(),
	}
	if err := l.store.Create(ctx, iv); err != nil {
		return nil, fmt.Errorf("failed to create intervention: %w", err)
	}

	_ = l.publisher.Publish(shared.NewInterventionAssignedEvent(iv.ID, iv.StudentID, iv.Title))
	return iv.Clone(), nil
}

// Get returns one intervention.
func (l *Ledger) Get(ctx context.Context, id string) (*Intervention, error) {
	return l.store.Get(ctx, id)
}

// ListAll returns every intervention, most recent first.
func (l *Ledger) ListAll(ctx context.Context) ([]*Intervention, error) {
	return l.store.List(ctx, ListFilter{})
}

// ListByStudent returns one student's interventions, most recent first.
func (l *Ledger) ListByStudent(ctx context.Context, studentID string) ([]*Intervention, error) {
	return l.store.List(ctx, ListFilter{StudentID: studentID})
}

// Complete marks an intervention Completed. Completing an already completed
// intervention returns it unchanged and publishes nothing.
func (l *Ledger) Complete(ctx context.Context, id string) (*Intervention, error) {
	iv, changed, err := l.store.Complete(ctx, id, l.now().UTC())
	if err != nil {
		return nil, err
	}
	if changed {
		_ = l.publisher.Publish(shared.NewInterventionCompletedEvent(iv.ID, iv.StudentID, *iv.CompletedAt))
	}
	return iv, nil
}

// UpdateStatus applies a requested status. Completed completes, Pending is a
// no-op on a pending record and ErrReopenNotAllowed on a completed one.
func (l *Ledger) UpdateStatus(ctx context.Context, id string, status Status) (*Intervention, error) {
	switch status {
	case StatusCompleted:
		return l.Complete(ctx, id)
	case StatusPending:
		iv, err := l.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !iv.Status.CanTransitionTo(StatusPending) {
			return nil, shared.ErrReopenNotAllowed
		}
		return iv, nil
	default:
		return nil, shared.ErrInvalidStatus.WithMessage("invalid status: " + string(status))
	}
}

// Counts returns totals per status.
func (l *Ledger) Counts(ctx context.Context) (Counts, error) {
	return l.store.Counts(ctx)
}

// Overdue returns pending interventions whose due date is before the
// calendar day of asOf.
func (l *Ledger) Overdue(ctx context.Context, asOf time.Time) ([]*Intervention, error) {
	return l.store.List(ctx, ListFilter{Status: StatusPending, DueBefore: formatDay(asOf)})
}
