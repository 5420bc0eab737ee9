// Package bridge holds the most recent tool-produced result set so the
// human-facing dashboard can poll for what the agent just did.
//
// The bridge is a single mutable slot, not a queue: every write fully
// replaces the previous snapshot, and readers always observe either the
// empty default or a complete snapshot. Tools write it fire-and-forget; the
// dashboard reads it over an unauthenticated route and can clear it when the
// user dismisses the results.
package bridge

import (
	"context"
	"time"

	"github.com/chaerem/glance-mcp-gateway/internal/glance"
)

// Snapshot is the value held by the slot.
type Snapshot struct {
	Query     string           `json:"query"`
	Results   []glance.Artwork `json:"results"`
	Timestamp time.Time        `json:"timestamp,omitzero"`
}

// Empty returns the documented default a reader sees before any write (and
// after a clear).
func Empty() Snapshot {
	return Snapshot{Results: []glance.Artwork{}}
}

// Store abstracts the slot so the in-process implementation can be swapped
// for a shared one (e.g. Redis) without touching tool handlers.
type Store interface {
	// Write replaces the slot. Readers never observe a partial update.
	Write(ctx context.Context, snap Snapshot) error
	// Read returns the current snapshot, or the empty default. It never
	// blocks on writers beyond lock acquisition.
	Read(ctx context.Context) (Snapshot, error)
	// Clear resets the slot to the empty default.
	Clear(ctx context.Context) error
}
