package student

import (
	"strings"
	"time"

	"github.com/edupredict/risk-monitor/internal/domain/risk"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Student is one academic record as delivered by the source.
type Student struct {
	ID         string `json:"student_id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Semester   int    `json:"semester"`

	AttendancePercentage float64 `json:"attendance_percentage"`
	SGPA                 float64 `json:"sgpa"`
	BacklogCount         int     `json:"backlog_count"`
	InternalMarks        float64 `json:"internal_marks"`

	// RawRiskScore is produced upstream by the prediction model.
	RawRiskScore float64 `json:"risk_score"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Metrics returns the classifier inputs for the student.
func (s Student) Metrics() risk.Metrics {
	return risk.Metrics{
		AttendancePercentage: s.AttendancePercentage,
		SGPA:                 s.SGPA,
		BacklogCount:         s.BacklogCount,
		RawRiskScore:         s.RawRiskScore,
	}
}

// HasIdentity reports whether the record carries a usable ID.
func (s Student) HasIdentity() bool {
	return strings.TrimSpace(s.ID) != ""
}

// Classified is a student paired with the tier computed at read time.
type Classified struct {
	Student
	RiskTier        risk.Tier `json:"risk_level"`
	NormalizedScore float64   `json:"normalized_score"`
}
