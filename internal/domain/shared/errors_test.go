package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesKindAndIdentity(t *testing.T) {
	err := ErrUnknownStudent.WithMessage("unknown student: S-404")

	assert.ErrorIs(t, err, ErrUnknownStudent)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrStudentNotFound)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "intervention.Assign: unknown student: S-404", err.Error())
}

func TestDomainError_WrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := ErrReportGenerationFailed.Wrap(cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrReportGenerationFailed)
	assert.True(t, IsExternalService(err))

	wrapped := fmt.Errorf("handler: %w", err)
	var de *DomainError
	assert.True(t, errors.As(wrapped, &de))
	assert.Equal(t, "report", de.Domain)
}

func TestValidationError_Unwraps(t *testing.T) {
	err := &ValidationError{
		DomainError: ErrInvalidAssignment.WithMessage("title is required"),
		Fields:      []FieldError{{Field: "title", Message: "is required"}},
	}

	assert.ErrorIs(t, err, ErrInvalidAssignment)
	assert.True(t, IsValidation(err))
}

func TestIsConflict(t *testing.T) {
	assert.True(t, IsConflict(ErrReportInFlight))
	assert.True(t, IsConflict(ErrReopenNotAllowed))
	assert.False(t, IsConflict(ErrInvalidTier))
}
