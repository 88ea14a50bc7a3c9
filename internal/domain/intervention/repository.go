package intervention

import (
	"context"
	"io"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// Implementations live in infrastructure/persistence (postgres, memory).
// ══════════════════════════════════════════════════════════════════════════════

// ListFilter narrows a List call. Zero values match everything.
type ListFilter struct {
	StudentID string
	Status    Status
	// DueBefore keeps interventions whose due date is strictly before this
	// YYYY-MM-DD date. Interventions without a due date never match.
	DueBefore string
}

// Store persists interventions.
type Store interface {
	// Create inserts a new record in one atomic write.
	Create(ctx context.Context, iv *Intervention) error

	// Get returns ErrInterventionNotFound for an unknown ID.
	Get(ctx context.Context, id string) (*Intervention, error)

	// List returns matching records ordered by AssignedAt desc, then ID desc.
	List(ctx context.Context, filter ListFilter) ([]*Intervention, error)

	// Complete atomically moves a Pending record to Completed. It returns the
	// stored record and whether this call performed the transition.
	Complete(ctx context.Context, id string, at time.Time) (*Intervention, bool, error)

	// Counts returns the number of records per status.
	Counts(ctx context.Context) (Counts, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// DOCUMENTS
// ══════════════════════════════════════════════════════════════════════════════

// Document describes a stored attachment.
type Document struct {
	Handle      string
	ContentType string
	Size        int64
}

// DocumentStore keeps intervention attachments behind opaque handles.
type DocumentStore interface {
	// Save stores r under a new handle derived from a random ID and the
	// sanitized extension of originalName.
	Save(ctx context.Context, originalName string, r io.Reader) (string, error)

	// Open returns ErrDocumentNotFound for an unknown or malformed handle.
	Open(ctx context.Context, handle string) (io.ReadCloser, Document, error)

	// Delete removes a stored document. Used to roll back a failed assign.
	Delete(ctx context.Context, handle string) error
}
