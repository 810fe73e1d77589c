// Package store persists the garden's proven patterns. The SQLite store
// under .garden/ is the durable library; the memory store backs tests and
// ephemeral runs. Both enforce the name-uniqueness invariant at the write
// boundary, so concurrent growth workers can never race two patterns with
// the same name into the library.
package store

import (
	"context"
	"errors"

	"codegarden/internal/pattern"
)

// ErrNotFound is returned (wrapped) by lookups that miss.
var ErrNotFound = errors.New("pattern not found")

// ReasonDuplicateName is the store-level rejection reason. Threshold and
// validation rejections happen upstream, before the store is reached.
const ReasonDuplicateName = "duplicate-name"

// Registration is the store's verdict on one insert attempt. Rejection is
// data, not an error: the error return is reserved for I/O faults.
type Registration struct {
	Registered bool             `json:"registered"`
	Reason     string           `json:"reason,omitempty"`
	Pattern    *pattern.Pattern `json:"pattern,omitempty"`
}

// Store is the pattern-store collaborator the evolution engines mutate the
// garden through. Writes are serialized per store; reads may run
// concurrently with other reads.
type Store interface {
	// Register inserts a proven pattern, rejecting duplicates by name.
	Register(ctx context.Context, p *pattern.Pattern) (Registration, error)

	// Get returns the pattern with the given id, ErrNotFound otherwise.
	Get(ctx context.Context, id string) (*pattern.Pattern, error)

	// GetByName returns the pattern with the given name, ErrNotFound
	// otherwise.
	GetByName(ctx context.Context, name string) (*pattern.Pattern, error)

	// All returns every proven pattern, oldest first.
	All(ctx context.Context) ([]*pattern.Pattern, error)

	// ByLanguage returns the proven patterns for one language tag.
	ByLanguage(ctx context.Context, language string) ([]*pattern.Pattern, error)

	// Coherences returns the composite score of every proven pattern, in
	// no particular order. Feed for the global coherence tracker.
	Coherences(ctx context.Context) ([]float64, error)

	// Count returns the proven-set size.
	Count(ctx context.Context) (int, error)

	// TouchUsage bumps usage tracking for a pattern that served as a
	// scaffold or guidance example.
	TouchUsage(ctx context.Context, id string) error

	Close() error
}
