package risk

import (
	"fmt"
	"math"

	"github.com/edupredict/risk-monitor/internal/domain/shared"
)

// Metrics are the raw academic signals for one student.
type Metrics struct {
	AttendancePercentage float64
	SGPA                 float64
	BacklogCount         int
	RawRiskScore         float64
}

// Assessment explains a classification.
type Assessment struct {
	Tier            Tier    `json:"tier"`
	NormalizedScore float64 `json:"normalized_score"`
	LowAttendance   bool    `json:"low_attendance"`
	LowSGPA         bool    `json:"low_sgpa"`
	ScoreHigh       bool    `json:"score_high"`
	ScoreInBand     bool    `json:"score_in_band"`
}

// Classifier applies one immutable Thresholds value. Safe for concurrent use.
type Classifier struct {
	t Thresholds
}

// NewClassifier validates t and returns a classifier bound to it.
func NewClassifier(t Thresholds) (*Classifier, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{t: t}, nil
}

// MustClassifier is NewClassifier for package-level defaults and tests.
func MustClassifier(t Thresholds) *Classifier {
	c, err := NewClassifier(t)
	if err != nil {
		panic(err)
	}
	return c
}

// Thresholds returns a copy of the policy in use.
func (c *Classifier) Thresholds() Thresholds {
	return c.t
}

// Classify returns the tier and the raw score normalized to [0,1].
func (c *Classifier) Classify(m Metrics) (Tier, float64, error) {
	a, err := c.Assess(m)
	if err != nil {
		return "", 0, err
	}
	return a.Tier, a.NormalizedScore, nil
}

// Assess classifies m and reports which conditions fired.
func (c *Classifier) Assess(m Metrics) (Assessment, error) {
	if err := c.validate(m); err != nil {
		return Assessment{}, err
	}

	a := Assessment{
		LowAttendance:   m.AttendancePercentage < c.t.LowAttendance,
		LowSGPA:         m.SGPA < c.t.LowSGPA,
		ScoreHigh:       m.RawRiskScore >= c.t.HighRiskScore,
		NormalizedScore: math.Round(m.RawRiskScore/c.t.ScoreScale*10000) / 10000,
	}
	a.ScoreInBand = !a.ScoreHigh && m.RawRiskScore >= c.t.HighRiskScore-c.t.MediumBand && c.t.MediumBand > 0

	switch {
	case a.ScoreHigh, a.LowAttendance && a.LowSGPA:
		a.Tier = TierHigh
	case a.LowAttendance != a.LowSGPA, a.ScoreInBand:
		a.Tier = TierMedium
	default:
		a.Tier = TierLow
	}
	return a, nil
}

func (c *Classifier) validate(m Metrics) error {
	switch {
	case !inRange(m.AttendancePercentage, 0, 100):
		return invalidMetric("attendance_percentage", m.AttendancePercentage, 0, 100)
	case !inRange(m.SGPA, 0, c.t.SGPAScale):
		return invalidMetric("sgpa", m.SGPA, 0, c.t.SGPAScale)
	case m.BacklogCount < 0:
		return shared.ErrInvalidMetric.WithMessage(fmt.Sprintf("backlog_count %d must not be negative", m.BacklogCount))
	case !inRange(m.RawRiskScore, 0, c.t.ScoreScale):
		return invalidMetric("raw_risk_score", m.RawRiskScore, 0, c.t.ScoreScale)
	}
	return nil
}

// inRange rejects NaN and infinities along with out-of-range values.
func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= lo && v <= hi
}

func invalidMetric(field string, v, lo, hi float64) error {
	return shared.ErrInvalidMetric.WithMessage(fmt.Sprintf("%s %g outside [%g, %g]", field, v, lo, hi))
}
