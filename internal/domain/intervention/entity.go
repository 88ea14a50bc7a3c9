// Package intervention holds the remedial actions staff assign to students.
// An intervention is created Pending and can only move to Completed.
package intervention

import (
	"strings"
	"time"

	"github.com/edupredict/risk-monitor/internal/domain/shared"
	"github.com/edupredict/risk-monitor/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status is the lifecycle state of an intervention.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
)

func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusCompleted
}

func (s Status) String() string {
	return string(s)
}

// CanTransitionTo reports whether s may move to next. Pending to Completed is
// the only edge; staying in place is always allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return s.IsValid()
	}
	return s == StatusPending && next == StatusCompleted
}

// ParseStatus accepts a status name in any letter case.
func ParseStatus(value string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "pending":
		return StatusPending, nil
	case "completed":
		return StatusCompleted, nil
	default:
		return "", shared.ErrInvalidStatus.WithMessage("invalid status: " + value)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Intervention is a remedial action bound to one student.
type Intervention struct {
	ID          string `json:"id"`
	StudentID   string `json:"student_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	// DueDate is a YYYY-MM-DD calendar date or empty.
	DueDate     string     `json:"due_date,omitempty"`
	Status      Status     `json:"status"`
	Document    string     `json:"document,omitempty"`
	AssignedAt  time.Time  `json:"assigned_date"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy.
func (i *Intervention) Clone() *Intervention {
	c := *i
	if i.CompletedAt != nil {
		t := *i.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// IsOverdue reports whether a pending intervention's due date lies before
// the calendar day of now.
func (i *Intervention) IsOverdue(now time.Time) bool {
	if i.Status != StatusPending || i.DueDate == "" {
		return false
	}
	due, err := timeutil.ParseDate(i.DueDate)
	if err != nil {
		return false
	}
	return timeutil.IsPast(due, now)
}

// ══════════════════════════════════════════════════════════════════════════════
// INPUT
// ══════════════════════════════════════════════════════════════════════════════

// AssignInput carries the fields of a new intervention.
type AssignInput struct {
	StudentID   string
	Title       string
	Description string
	DueDate     string
	// Document is a handle returned by a DocumentStore.
	Document string
}

// normalize trims every field and checks the ones that do not need the
// registry. The title is checked first.
func (in AssignInput) normalize() (AssignInput, error) {
	out := AssignInput{
		StudentID:   strings.TrimSpace(in.StudentID),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		DueDate:     strings.TrimSpace(in.DueDate),
		Document:    strings.TrimSpace(in.Document),
	}

	if out.Title == "" {
		return out, shared.ErrInvalidAssignment.WithMessage("title is required")
	}
	if out.StudentID == "" {
		return out, shared.ErrInvalidAssignment.WithMessage("student_id is required")
	}
	if out.DueDate != "" {
		due, err := timeutil.ParseDate(out.DueDate)
		if err != nil {
			return out, shared.ErrInvalidAssignment.WithMessage("due_date must be YYYY-MM-DD")
		}
		out.DueDate = timeutil.FormatDate(due)
	}
	return out, nil
}

// Counts is the number of interventions per status.
type Counts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
}

func formatDay(t time.Time) string {
	return timeutil.FormatDate(timeutil.StartOfDay(t))
}
