// Package board is the surface the UI layer talks to: one Board bundles
// the shared shape list, the mutation operations, and the per-client
// undo/redo stack. Interaction handlers call these methods directly; no
// error escapes into them beyond what they explicitly ask for.
package board

import (
	"context"
	"log/slog"
	"time"

	"github.com/boardkit/boardkit/pkg/history"
	"github.com/boardkit/boardkit/pkg/mutation"
	"github.com/boardkit/boardkit/pkg/sched"
	"github.com/boardkit/boardkit/pkg/shape"
	"github.com/boardkit/boardkit/pkg/store"
	"github.com/boardkit/boardkit/pkg/view"
)

type Board struct {
	list   store.List
	hist   *history.Recorder
	mut    *mutation.Mutator
	logger *slog.Logger
}

// New builds a board over any List implementation: a LiveList in a
// replication session, or a MemList for local boards and tests.
func New(list store.List, logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	hist := history.NewRecorder(list, logger)
	return &Board{
		list:   list,
		hist:   hist,
		mut:    mutation.NewMutator(list, hist, logger),
		logger: logger,
	}
}

// Subscribe registers fn for every applied change to the shape sequence.
func (b *Board) Subscribe(fn func(shapes []shape.Shape)) (cancel func()) {
	return b.list.Subscribe(fn)
}

// Shapes returns a copy of the current sequence, tombstones included.
func (b *Board) Shapes() []shape.Shape { return b.list.Snapshot() }

// Shape returns the shape at index if the index is populated.
func (b *Board) Shape(index int) (shape.Shape, bool) { return b.list.Get(index) }

// CreateShape appends a new shape and returns its index.
func (b *Board) CreateShape(ctx context.Context, s shape.Shape) (int, error) {
	return b.mut.Create(ctx, s)
}

// PatchShape merges fields into the shape at index. Failures are logged,
// not raised: the interaction loop must stay responsive.
func (b *Board) PatchShape(ctx context.Context, index int, p shape.Patch) {
	if err := b.mut.Patch(ctx, index, p); err != nil {
		b.logger.Warn("patch failed", "index", index, "err", err)
	}
}

// ReplacePoints swaps the point array of the path at index.
func (b *Board) ReplacePoints(ctx context.Context, index int, points []shape.Point) {
	if err := b.mut.ReplacePoints(ctx, index, points); err != nil {
		b.logger.Warn("replace points failed", "index", index, "err", err)
	}
}

// SoftDeleteShape tombstones the shape at index as one undo step.
func (b *Board) SoftDeleteShape(ctx context.Context, index int) {
	if err := b.mut.SoftDelete(ctx, index); err != nil {
		b.logger.Warn("soft delete failed", "index", index, "err", err)
	}
}

func (b *Board) Undo(ctx context.Context) { b.hist.Undo(ctx) }
func (b *Board) Redo(ctx context.Context) { b.hist.Redo(ctx) }
func (b *Board) Pause()                   { b.hist.Pause() }
func (b *Board) Resume()                  { b.hist.Resume() }

// AttachView builds a ShapeView over index and keeps it reconciled with
// store broadcasts until cancel is called.
func (b *Board) AttachView(index int, onRender func(shape.Shape)) (*view.ShapeView, func()) {
	v := view.NewShapeView(index, onRender)
	if s, ok := b.list.Get(index); ok {
		v.SetLocal(s)
	}
	cancel := b.list.Subscribe(v.Reconcile)
	return v, cancel
}

// PathScheduler builds a throttled push scheduler for the freehand path
// mirrored by v: each push replaces the remote point array with the
// view's points at push time.
func (b *Board) PathScheduler(v *view.ShapeView, window time.Duration) *sched.Scheduler {
	snapshot := func() shape.Patch {
		if s, ok := v.Shape(); ok {
			if p, ok := s.(shape.Path); ok {
				return shape.Patch{Points: append([]shape.Point{}, p.Points...)}
			}
		}
		return shape.Patch{Points: []shape.Point{}}
	}
	push := func(ctx context.Context, p shape.Patch) error {
		return b.mut.Patch(ctx, v.Index(), p)
	}
	return sched.New(window, snapshot, push, b.logger)
}
