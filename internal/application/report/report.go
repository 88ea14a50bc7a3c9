// Package report coordinates on-demand report generation against the
// reporting backend. At most one request per kind is outstanding; a cancelled
// request is superseded and its late answer is discarded.
package report

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/edupredict/risk-monitor/internal/domain/shared"
	"github.com/edupredict/risk-monitor/pkg/timeutil"
)

// Kind names a report the backend can generate.
type Kind string

const (
	KindRisk        Kind = "risk"
	KindPerformance Kind = "performance"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindRisk, KindPerformance}

func (k Kind) IsValid() bool {
	return k == KindRisk || k == KindPerformance
}

func (k Kind) String() string { return string(k) }

// ParseKind accepts a kind name in any letter case.
func ParseKind(value string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(value)))
	if !k.IsValid() {
		return "", shared.ErrInvalidReportKind.WithMessage("unknown report kind: " + value)
	}
	return k, nil
}

// DefaultFilename is used when the backend does not name the file.
func DefaultFilename(k Kind, at time.Time) string {
	title := "Risk"
	if k == KindPerformance {
		title = "Performance"
	}
	return "EduPredict_" + title + "_Report_" + timeutil.FormatDate(at) + ".pdf"
}

// Artifact is a generated report.
type Artifact struct {
	Kind        Kind      `json:"kind"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"-"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Backend generates one report. Implementations must honor ctx.
type Backend interface {
	Generate(ctx context.Context, kind Kind) (*Artifact, error)
}

// GenericFailureMessage is shown when the backend gives no reason.
const GenericFailureMessage = "Failed to generate report"

// Failure is a report generation failure. Error returns exactly the message
// the backend supplied, or GenericFailureMessage.
type Failure struct {
	Kind       Kind
	Message    string
	StatusCode int
	Err        error
}

func (f *Failure) Error() string {
	if f.Message == "" {
		return GenericFailureMessage
	}
	return f.Message
}

func (f *Failure) Unwrap() error { return f.Err }

// Is matches shared.ErrReportGenerationFailed and its kind.
func (f *Failure) Is(target error) bool {
	return errors.Is(shared.ErrReportGenerationFailed, target)
}

// NewFailure builds a Failure, falling back to the generic message when
// message is blank.
func NewFailure(kind Kind, statusCode int, message string, cause error) *Failure {
	if strings.TrimSpace(message) == "" {
		message = GenericFailureMessage
	}
	return &Failure{Kind: kind, Message: message, StatusCode: statusCode, Err: cause}
}
