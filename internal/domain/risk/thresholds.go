package risk

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/edupredict/risk-monitor/internal/domain/shared"
)

// Thresholds is the admin-configurable classification policy.
type Thresholds struct {
	// LowAttendance is the attendance percentage below which attendance counts as a deficit.
	LowAttendance float64 `json:"low_attendance" yaml:"low_attendance" validate:"gte=0,lte=100"`
	// LowSGPA is the SGPA below which grades count as a deficit.
	LowSGPA float64 `json:"low_sgpa" yaml:"low_sgpa" validate:"gte=0,ltefield=SGPAScale"`
	// HighRiskScore is the raw score at or above which a student is High risk.
	HighRiskScore float64 `json:"high_risk_score" yaml:"high_risk_score" validate:"gt=0,ltefield=ScoreScale"`
	// MediumBand is the width of the Medium score band directly below HighRiskScore.
	MediumBand float64 `json:"medium_band" yaml:"medium_band" validate:"gte=0,ltefield=HighRiskScore"`

	SGPAScale  float64 `json:"sgpa_scale" yaml:"sgpa_scale" validate:"gt=0"`
	ScoreScale float64 `json:"score_scale" yaml:"score_scale" validate:"gt=0"`
}

// DefaultThresholds returns the policy used when nothing else is configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowAttendance: 75,
		LowSGPA:       6.0,
		HighRiskScore: 70,
		MediumBand:    20,
		SGPAScale:     10,
		ScoreScale:    100,
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the thresholds for internal consistency.
func (t Thresholds) Validate() error {
	err := structValidator().Struct(t)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return shared.ErrInvalidThresholds.Wrap(err)
	}

	fields := make([]shared.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, shared.FieldError{
			Field:   fe.Field(),
			Message: describeRule(fe),
		})
	}
	return &shared.ValidationError{
		DomainError: shared.ErrInvalidThresholds,
		Fields:      fields,
	}
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "ltefield":
		return "must not exceed " + fe.Param()
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
