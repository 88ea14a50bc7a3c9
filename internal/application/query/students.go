package query

import (
	"context"
	"strings"

	"github.com/edupredict/risk-monitor/internal/domain/risk"
	"github.com/edupredict/risk-monitor/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

// ListStudentsQuery optionally narrows the list to one tier label.
type ListStudentsQuery struct {
	Tier string
}

// ListStudentsResult is a classified student list.
type ListStudentsResult struct {
	Students []student.Classified `json:"students"`
	Total    int                  `json:"total"`
	Version  uint64               `json:"snapshot_version"`
}

// ListStudentsHandler lists classified students.
type ListStudentsHandler struct {
	registry  Snapshotter
	drilldown *DrillDownHandler
}

func NewListStudentsHandler(registry Snapshotter, drilldown *DrillDownHandler) *ListStudentsHandler {
	return &ListStudentsHandler{registry: registry, drilldown: drilldown}
}

// Handle lists every student, or runs a drill-down when a tier is given.
func (h *ListStudentsHandler) Handle(ctx context.Context, q ListStudentsQuery) (*ListStudentsResult, error) {
	if strings.TrimSpace(q.Tier) != "" {
		res, err := h.drilldown.Resolve(ctx, q.Tier)
		if err != nil {
			return nil, err
		}
		return &ListStudentsResult{Students: res.Students, Total: len(res.Students), Version: res.Version}, nil
	}

	snap := h.registry.Snapshot()
	all, err := snap.Classified()
	if err != nil {
		return nil, err
	}
	return &ListStudentsResult{Students: all, Total: len(all), Version: snap.Version()}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// StudentDetail is one student with the reasons behind its tier.
type StudentDetail struct {
	student.Classified
	Assessment risk.Assessment `json:"assessment"`
}

// GetStudentHandler returns one student.
type GetStudentHandler struct {
	registry Snapshotter
}

func NewGetStudentHandler(registry Snapshotter) *GetStudentHandler {
	return &GetStudentHandler{registry: registry}
}

func (h *GetStudentHandler) Handle(ctx context.Context, id string) (*StudentDetail, error) {
	snap := h.registry.Snapshot()
	st, err := snap.ByID(id)
	if err != nil {
		return nil, err
	}

	a, err := snap.Classifier().Assess(st.Metrics())
	if err != nil {
		return nil, err
	}
	return &StudentDetail{
		Classified: student.Classified{Student: st, RiskTier: a.Tier, NormalizedScore: a.NormalizedScore},
		Assessment: a,
	}, nil
}
