package command

import (
	"context"
	"strings"

	"github.com/edupredict/risk-monitor/internal/domain/intervention"
	"github.com/edupredict/risk-monitor/internal/domain/shared"
	"github.com/edupredict/risk-monitor/pkg/logger"
)

// UpdateInterventionStatusCommand requests a status change.
type UpdateInterventionStatusCommand struct {
	InterventionID string
	Status         string
}

func (c UpdateInterventionStatusCommand) Validate() error {
	if strings.TrimSpace(c.InterventionID) == "" {
		return shared.ErrInvalidStatus.WithMessage("intervention id is required")
	}
	if strings.TrimSpace(c.Status) == "" {
		return shared.ErrInvalidStatus.WithMessage("status is required")
	}
	return nil
}

// UpdateInterventionStatusHandler handles UpdateInterventionStatusCommand.
type UpdateInterventionStatusHandler struct {
	ledger *intervention.Ledger
	log    *logger.Logger
}

func NewUpdateInterventionStatusHandler(ledger *intervention.Ledger, log *logger.Logger) *UpdateInterventionStatusHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &UpdateInterventionStatusHandler{ledger: ledger, log: log.With(logger.Component("update_intervention_status"))}
}

func (h *UpdateInterventionStatusHandler) Handle(ctx context.Context, cmd UpdateInterventionStatusCommand) (*intervention.Intervention, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	status, err := intervention.ParseStatus(cmd.Status)
	if err != nil {
		return nil, err
	}

	iv, err := h.ledger.UpdateStatus(ctx, cmd.InterventionID, status)
	if err != nil {
		return nil, err
	}

	h.log.Debug("intervention status applied",
		logger.InterventionID(iv.ID),
		logger.String("status", iv.Status.String()),
	)
	return iv, nil
}
