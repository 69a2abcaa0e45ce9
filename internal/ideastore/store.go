// Package ideastore provides the per-owner idea record store.
//
// The store is the single writer of record state: the orchestrator and the
// HTTP API route every mutation through it and read current state from the
// live [Store.Watch] subscription, never by mutating in-memory snapshots.
//
// Two implementations exist:
//
//   - [Postgres] — pgx-backed, with LISTEN/NOTIFY change notifications and
//     pgvector-based semantic search. The production store.
//   - [MemStore] — in-memory, for tests and local development without a
//     database.
//
// All store operations are safe for concurrent use.
package ideastore

import (
	"context"
	"errors"

	"github.com/ideaspark/ideaspark/internal/idea"
)

// ErrNotFound is returned when the addressed record does not exist.
var ErrNotFound = errors.New("idea not found")

// Patch is a field-level write payload for an existing record, keyed by the
// record's JSON field names. The identifier is never part of a Patch — it
// addresses the record, it is not data. Unknown field names are rejected.
type Patch map[string]any

// patchable lists the field names a Patch may carry.
var patchable = map[string]bool{
	"userId": true, "title": true, "description": true, "status": true,
	"category": true, "importance": true, "targetAudience": true,
	"platform": true, "appUrl": true, "devPrompt": true, "createdAt": true,
	"tags": true, "imageUrl": true,
}

// Validate reports an error if p carries an unknown field or the
// identifier field.
func (p Patch) Validate() error {
	for k := range p {
		if k == "id" {
			return errors.New("patch must not contain the identifier field")
		}
		if !patchable[k] {
			return errors.New("patch contains unknown field " + k)
		}
	}
	return nil
}

// SearchResult pairs a record with its semantic similarity to a query.
type SearchResult struct {
	Idea idea.Idea

	// Score is cosine similarity in [0, 1]; higher is closer.
	Score float64
}

// Store is the abstraction over the idea record collection.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Create persists rec as a new record and returns it with the
	// store-assigned identifier. Any ID on rec is ignored.
	Create(ctx context.Context, rec idea.Idea) (idea.Idea, error)

	// Get returns the record with the given identifier, or [ErrNotFound].
	Get(ctx context.Context, id string) (idea.Idea, error)

	// ListByOwner returns all records owned by ownerID ordered by creation
	// time, newest first. Records lacking a creation timestamp sort last.
	ListByOwner(ctx context.Context, ownerID string) ([]idea.Idea, error)

	// Update applies a field-level patch to the record with the given
	// identifier. Returns [ErrNotFound] if the record does not exist and
	// an error if the patch is invalid.
	Update(ctx context.Context, id string, patch Patch) error

	// Delete removes the record with the given identifier.
	// Deleting a missing record returns [ErrNotFound].
	Delete(ctx context.Context, id string) error

	// Watch returns a channel that emits the owner's full record snapshot
	// (ordered as in ListByOwner) immediately on subscription and again
	// after every change to the owner's collection. The channel is closed
	// when ctx is cancelled. Slow consumers observe the latest snapshot,
	// not every intermediate one.
	Watch(ctx context.Context, ownerID string) (<-chan []idea.Idea, error)

	// SearchSemantic ranks the owner's records by semantic similarity to
	// query, best match first, returning at most limit results. Records
	// without an embedding (e.g., embedded before the feature existed or
	// after an embedding failure) are omitted.
	SearchSemantic(ctx context.Context, ownerID, query string, limit int) ([]SearchResult, error)
}
