// Package mutation provides the named operations that edit the shared
// shape list. Every operation is the single point where the history
// recorder observes that an edit happened, and every operation is safe to
// call with a stale index: a missing target is a silent no-op, never an
// error, because the caller cannot know whether a concurrent delete landed
// first.
package mutation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/boardkit/boardkit/pkg/history"
	"github.com/boardkit/boardkit/pkg/shape"
	"github.com/boardkit/boardkit/pkg/store"
)

type Mutator struct {
	list   store.List
	hist   *history.Recorder
	logger *slog.Logger
}

func NewMutator(list store.List, hist *history.Recorder, logger *slog.Logger) *Mutator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mutator{list: list, hist: hist, logger: logger}
}

// Create appends a new shape and returns its index. Undoing a create
// tombstones the shape rather than removing it, so the index stays stable
// for every client holding it.
func (m *Mutator) Create(ctx context.Context, s shape.Shape) (int, error) {
	index, err := m.list.Append(ctx, s)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", s.Kind(), err)
	}
	m.hist.Record(index,
		shape.Patch{Deleted: shape.Bool(true)},
		shape.Patch{Deleted: shape.Bool(false)},
	)
	return index, nil
}

// Patch merges p into the shape at index. Reapplying the same patch is
// harmless: the second application writes the same field values again.
func (m *Mutator) Patch(ctx context.Context, index int, p shape.Patch) error {
	existing, ok := m.list.Get(index)
	if !ok {
		m.logger.Debug("patch dropped, no shape at index", "index", index)
		return nil
	}
	inverse := p.InverseFor(existing)
	if err := m.list.Patch(ctx, index, p); err != nil {
		return fmt.Errorf("failed to patch shape %d: %w", index, err)
	}
	m.hist.Record(index, inverse, p)
	return nil
}

// ReplacePoints overwrites the whole point array of the path at index.
func (m *Mutator) ReplacePoints(ctx context.Context, index int, points []shape.Point) error {
	if points == nil {
		points = []shape.Point{}
	}
	return m.Patch(ctx, index, shape.Patch{Points: points})
}

// SoftDelete tombstones the shape at index inside its own pause/resume
// bracket, so each deletion is exactly one undo step.
func (m *Mutator) SoftDelete(ctx context.Context, index int) error {
	m.hist.Pause()
	defer m.hist.Resume()
	return m.Patch(ctx, index, shape.Patch{Deleted: shape.Bool(true)})
}
