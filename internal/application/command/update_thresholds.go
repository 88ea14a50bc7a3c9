package command

import (
	"context"

	"github.com/edupredict/risk-monitor/internal/domain/risk"
	"github.com/edupredict/risk-monitor/internal/domain/student"
	"github.com/edupredict/risk-monitor/pkg/logger"
)

// UpdateThresholdsCommand replaces the risk policy.
type UpdateThresholdsCommand struct {
	Thresholds risk.Thresholds
	UpdatedBy  string
}

// UpdateThresholdsResult reports the new policy and the rebuilt snapshot.
type UpdateThresholdsResult struct {
	Policy   risk.Policy          `json:"policy"`
	Snapshot student.RefreshStats `json:"snapshot"`
}

// UpdateThresholdsHandler publishes a new policy and reclassifies the registry
// so the next read sees it.
type UpdateThresholdsHandler struct {
	policies *risk.PolicyStore
	registry *student.Registry
	log      *logger.Logger
}

func NewUpdateThresholdsHandler(policies *risk.PolicyStore, registry *student.Registry, log *logger.Logger) *UpdateThresholdsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &UpdateThresholdsHandler{policies: policies, registry: registry, log: log.With(logger.Component("update_thresholds"))}
}

func (h *UpdateThresholdsHandler) Handle(ctx context.Context, cmd UpdateThresholdsCommand) (*UpdateThresholdsResult, error) {
	if cmd.UpdatedBy == "" {
		cmd.UpdatedBy = "staff"
	}

	p, err := h.policies.Update(ctx, cmd.Thresholds, cmd.UpdatedBy)
	if err != nil {
		return nil, err
	}

	stats := h.registry.Reclassify()
	h.log.Info("risk policy updated",
		logger.Int64("policy_version", p.Version),
		logger.String("updated_by", p.UpdatedBy),
		logger.SnapshotVersion(stats.Version),
	)
	return &UpdateThresholdsResult{Policy: p, Snapshot: stats}, nil
}
