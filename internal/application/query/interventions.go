package query

import (
	"context"
	"time"

	"github.com/edupredict/risk-monitor/internal/domain/intervention"
	"github.com/edupredict/risk-monitor/internal/domain/risk"
	"github.com/edupredict/risk-monitor/internal/domain/student"
)

// InterventionReader is the read side of the intervention ledger.
type InterventionReader interface {
	ListAll(ctx context.Context) ([]*intervention.Intervention, error)
	ListByStudent(ctx context.Context, studentID string) ([]*intervention.Intervention, error)
	Counts(ctx context.Context) (intervention.Counts, error)
	Overdue(ctx context.Context, asOf time.Time) ([]*intervention.Intervention, error)
}

// InterventionView is an intervention joined with its student as of the
// snapshot used for the read.
type InterventionView struct {
	*intervention.Intervention
	StudentName string    `json:"student_name"`
	Department  string    `json:"department"`
	RiskLevel   risk.Tier `json:"risk_level,omitempty"`
	Overdue     bool      `json:"overdue"`
}

// ListInterventionsHandler lists interventions with student details.
type ListInterventionsHandler struct {
	registry Snapshotter
	ledger   InterventionReader
	now      func() time.Time
}

func NewListInterventionsHandler(registry Snapshotter, ledger InterventionReader) *ListInterventionsHandler {
	return &ListInterventionsHandler{registry: registry, ledger: ledger, now: time.Now}
}

// All lists every intervention, most recent first.
func (h *ListInterventionsHandler) All(ctx context.Context) ([]InterventionView, error) {
	items, err := h.ledger.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return h.join(h.registry.Snapshot(), items), nil
}

// ForStudent lists one student's interventions. The student must be known to
// the current snapshot.
func (h *ListInterventionsHandler) ForStudent(ctx context.Context, studentID string) ([]InterventionView, error) {
	snap := h.registry.Snapshot()
	if _, err := snap.ByID(studentID); err != nil {
		return nil, err
	}

	items, err := h.ledger.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return h.join(snap, items), nil
}

func (h *ListInterventionsHandler) join(snap *student.Snapshot, items []*intervention.Intervention) []InterventionView {
	now := h.now()
	out := make([]InterventionView, 0, len(items))
	for _, iv := range items {
		v := InterventionView{Intervention: iv, Overdue: iv.IsOverdue(now)}
		if st, err := snap.ByID(iv.StudentID); err == nil {
			v.StudentName = st.Name
			v.Department = st.Department
			if tier, _, err := snap.Classifier().Classify(st.Metrics()); err == nil {
				v.RiskLevel = tier
			}
		}
		out = append(out, v)
	}
	return out
}
