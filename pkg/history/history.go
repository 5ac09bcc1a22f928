// Package history implements the per-client undo/redo stack layered above
// the shared shape list.
//
// The stack is purely local bookkeeping: it never coordinates with other
// clients, and undoing here only re-patches the shared list, which other
// clients observe as ordinary writes.
package history

import (
	"context"
	"log/slog"
	"sync"

	"github.com/boardkit/boardkit/pkg/shape"
	"github.com/boardkit/boardkit/pkg/store"
)

// entry is one recorded mutation boundary: the patch that reverts it and
// the patch that re-applies it, both targeting a single index.
type entry struct {
	index int
	undo  shape.Patch
	redo  shape.Patch
}

type batch []entry

// Recorder records mutation boundaries and replays their inverses.
//
// While paused, mutations keep applying to the list but accumulate into a
// single batch that Resume closes as one undo step. Pause is idempotent:
// nested pause calls inside one gesture never split the batch. Undo and
// redo write to the list directly, so they are not themselves recorded.
type Recorder struct {
	mu      sync.Mutex
	list    store.List
	logger  *slog.Logger
	paused  bool
	current batch
	undos   []batch
	redos   []batch
}

func NewRecorder(list store.List, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{list: list, logger: logger}
}

// Pause opens a batch. Calling Pause while already paused keeps the open
// batch: one continuous gesture stays one history entry no matter how many
// times its handlers pause.
func (r *Recorder) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = true
}

// Resume closes the open batch as a single undo step. A resume without
// accumulated mutations leaves the stack untouched.
func (r *Recorder) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.paused {
		return
	}
	r.paused = false
	if len(r.current) == 0 {
		return
	}
	r.undos = append(r.undos, r.current)
	r.current = nil
}

// Record registers one applied mutation with its inverse. While active
// each record is its own undo step; while paused records accumulate.
// Recording always clears the redo stack.
func (r *Recorder) Record(index int, undo, redo shape.Patch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redos = nil
	e := entry{index: index, undo: undo, redo: redo}
	if r.paused {
		r.current = append(r.current, e)
		return
	}
	r.undos = append(r.undos, batch{e})
}

// Undo reverts the most recent closed batch. An empty stack is a no-op.
// The batch is popped before its inverses apply, so a Record landing while
// the patches are in flight (a throttled push firing mid-undo, say) stacks
// above it instead of being popped in its place. On failure the batch goes
// back on the stack and Undo can be retried.
func (r *Recorder) Undo(ctx context.Context) {
	r.mu.Lock()
	if len(r.undos) == 0 {
		r.mu.Unlock()
		r.logger.Debug("nothing to undo")
		return
	}
	b := r.undos[len(r.undos)-1]
	r.undos = r.undos[:len(r.undos)-1]
	r.mu.Unlock()

	// Inverses apply newest-first so earlier entries win on overlap,
	// restoring the exact pre-batch state.
	for i := len(b) - 1; i >= 0; i-- {
		if err := r.list.Patch(ctx, b[i].index, b[i].undo); err != nil {
			r.logger.Warn("undo failed", "index", b[i].index, "err", err)
			r.mu.Lock()
			r.undos = append(r.undos, b)
			r.mu.Unlock()
			return
		}
	}

	r.mu.Lock()
	r.redos = append(r.redos, b)
	r.mu.Unlock()
}

// Redo re-applies the most recently undone batch. An empty stack is a
// no-op. Like Undo, the batch is held out of the stack while its patches
// apply and returns to the redo stack on failure.
func (r *Recorder) Redo(ctx context.Context) {
	r.mu.Lock()
	if len(r.redos) == 0 {
		r.mu.Unlock()
		r.logger.Debug("nothing to redo")
		return
	}
	b := r.redos[len(r.redos)-1]
	r.redos = r.redos[:len(r.redos)-1]
	r.mu.Unlock()

	for i := 0; i < len(b); i++ {
		if err := r.list.Patch(ctx, b[i].index, b[i].redo); err != nil {
			r.logger.Warn("redo failed", "index", b[i].index, "err", err)
			r.mu.Lock()
			r.redos = append(r.redos, b)
			r.mu.Unlock()
			return
		}
	}

	r.mu.Lock()
	r.undos = append(r.undos, b)
	r.mu.Unlock()
}

// Depths reports the sizes of the undo and redo stacks.
func (r *Recorder) Depths() (undo, redo int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.undos), len(r.redos)
}
