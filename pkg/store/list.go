// Package store holds the replicated, ordered shape sequence of a board.
//
// The sequence is append-only: shapes are never removed or reindexed, so an
// index handed out once stays valid for the life of the session. Deletion
// is a soft tombstone flag on the shape itself. Concurrent patches to the
// same index are applied in arrival order with last-writer-wins per field;
// the store neither detects nor rejects conflicting writes.
package store

import (
	"context"

	"github.com/boardkit/boardkit/pkg/shape"
)

// List is the ordered shape sequence shared by all clients of a room.
//
// Implementations must invoke subscribers after every applied change, local
// or remote, in the order changes are applied. Patch must silently ignore
// indexes that do not exist yet: a stale patch racing a concurrent
// delete/recreate is expected and must not surface as an error.
type List interface {
	// Append inserts the shape at the end and returns its index.
	Append(ctx context.Context, s shape.Shape) (int, error)

	// Get returns the shape at index, or ok=false when the index is not
	// populated.
	Get(index int) (shape.Shape, bool)

	// Len returns the sequence length, tombstones included.
	Len() int

	// Patch merges p into the shape at index. A missing index is a no-op.
	Patch(ctx context.Context, index int, p shape.Patch) error

	// Snapshot returns a copy of the full sequence.
	Snapshot() []shape.Shape

	// Subscribe registers fn to run after every applied change. The
	// returned func cancels the subscription.
	Subscribe(fn func(shapes []shape.Shape)) (cancel func())
}
