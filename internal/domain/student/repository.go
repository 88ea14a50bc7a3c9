package student

import (
	"context"
)

// Source is the read-only feed of student records.
type Source interface {
	// LoadAll returns every known student. Implementations must return a
	// fresh slice the caller may keep.
	LoadAll(ctx context.Context) ([]Student, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Student, error)

func (f SourceFunc) LoadAll(ctx context.Context) ([]Student, error) {
	return f(ctx)
}

// StaticSource serves a fixed list. Used for demos and tests.
type StaticSource []Student

func (s StaticSource) LoadAll(ctx context.Context) ([]Student, error) {
	out := make([]Student, len(s))
	copy(out, s)
	return out, nil
}
