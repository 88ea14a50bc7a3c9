// Package command contains the write operations of the service.
package command

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/edupredict/risk-monitor/internal/domain/intervention"
	"github.com/edupredict/risk-monitor/internal/domain/shared"
	"github.com/edupredict/risk-monitor/pkg/logger"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGN INTERVENTION COMMAND
// Creates a Pending intervention, optionally with an attached document.
// ══════════════════════════════════════════════════════════════════════════════

// Upload is an attachment received with the command.
type Upload struct {
	Filename string
	Content  io.Reader
}

// AssignInterventionCommand contains the data of a new intervention.
type AssignInterventionCommand struct {
	StudentID   string `validate:"max=64"`
	Title       string `validate:"max=200"`
	Description string `validate:"max=4000"`
	DueDate     string `validate:"omitempty,datetime=2006-01-02"`

	// Document is optional.
	Document *Upload `validate:"-"`

	AssignedBy string
}

// Validate checks field lengths and formats. Required fields are checked by
// the ledger so that the title is always reported before the student.
func (c AssignInterventionCommand) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return shared.ErrInvalidAssignment.Wrap(err)
	}

	fields := make([]shared.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, shared.FieldError{Field: fe.Field(), Message: fe.Tag() + " " + fe.Param()})
	}
	return &shared.ValidationError{
		DomainError: shared.ErrInvalidAssignment.WithMessage("invalid intervention fields"),
		Fields:      fields,
	}
}

// AssignInterventionHandler handles AssignInterventionCommand.
type AssignInterventionHandler struct {
	ledger    *intervention.Ledger
	documents intervention.DocumentStore
	log       *logger.Logger
}

// NewAssignInterventionHandler creates the handler. documents may be nil,
// in which case attachments are rejected.
func NewAssignInterventionHandler(ledger *intervention.Ledger, documents intervention.DocumentStore, log *logger.Logger) *AssignInterventionHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AssignInterventionHandler{
		ledger:    ledger,
		documents: documents,
		log:       log.With(logger.Component("assign_intervention")),
	}
}

// Handle assigns the intervention. A stored document is removed again when
// the assignment fails.
func (h *AssignInterventionHandler) Handle(ctx context.Context, cmd AssignInterventionCommand) (*intervention.Intervention, error) {
	start := time.Now()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var handle string
	if cmd.Document != nil && cmd.Document.Filename != "" {
		if h.documents == nil {
			return nil, shared.ErrInvalidAssignment.WithMessage("document uploads are disabled")
		}
		// Fail fast on the cheap checks before writing the file.
		if _, err := h.ledger.Preflight(intervention.AssignInput{StudentID: cmd.StudentID, Title: cmd.Title, DueDate: cmd.DueDate}); err != nil {
			return nil, err
		}
		var err error
		handle, err = h.documents.Save(ctx, cmd.Document.Filename, cmd.Document.Content)
		if err != nil {
			return nil, err
		}
	}

	iv, err := h.ledger.Assign(ctx, intervention.AssignInput{
		StudentID:   cmd.StudentID,
		Title:       cmd.Title,
		Description: cmd.Description,
		DueDate:     cmd.DueDate,
		Document:    handle,
	})
	if err != nil {
		if handle != "" {
			if derr := h.documents.Delete(ctx, handle); derr != nil {
				h.log.Warn("failed to remove orphaned document", logger.String("handle", handle), logger.Err(derr))
			}
		}
		return nil, err
	}

	h.log.Info("intervention assigned",
		logger.InterventionID(iv.ID),
		logger.StudentID(iv.StudentID),
		logger.String("assigned_by", cmd.AssignedBy),
		logger.Bool("has_document", handle != ""),
		logger.Latency(time.Since(start)),
	)
	return iv, nil
}
