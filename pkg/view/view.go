// Package view keeps the per-shape local state that rendering reads: the
// union of the client's own just-issued edits and the last replicated
// state. Local edits land immediately; remote broadcasts are merged
// field-compared so an echo of our own push never triggers a re-render,
// and an in-progress text edit is never clobbered by a remote overwrite.
package view

import (
	"sync"

	"github.com/boardkit/boardkit/pkg/shape"
)

// EditEvent is the explicit message a sidebar or editor sends when a local
// editing interaction starts or ends. While an edit is open, incoming
// remote state for the shape is suppressed; the next broadcast after the
// edit closes wins as usual.
type EditEvent int

const (
	EditBegan EditEvent = iota
	EditEnded
)

// ShapeView mirrors one index of the shared list.
type ShapeView struct {
	mu       sync.Mutex
	index    int
	local    shape.Shape
	hydrated bool
	editing  bool
	onRender func(shape.Shape)
}

// NewShapeView builds a view over index. onRender fires whenever the
// visible state changes; it may be nil.
func NewShapeView(index int, onRender func(shape.Shape)) *ShapeView {
	return &ShapeView{index: index, onRender: onRender}
}

func (v *ShapeView) Index() int { return v.index }

// Shape returns the current local state. ok is false until the shape has
// been seen locally or through a broadcast: before the store hydrates,
// the view renders nothing rather than erroring.
func (v *ShapeView) Shape() (shape.Shape, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.hydrated || v.local == nil {
		return nil, false
	}
	return v.local.Clone(), true
}

// ApplyLocal merges a local patch immediately, ahead of any network
// round-trip, so dragging and drawing stay zero-latency.
func (v *ShapeView) ApplyLocal(p shape.Patch) {
	v.mu.Lock()
	if v.local == nil {
		v.mu.Unlock()
		return
	}
	v.local = p.Apply(v.local)
	next := v.local.Clone()
	render := v.onRender
	v.mu.Unlock()
	if render != nil {
		render(next)
	}
}

// SetLocal seeds the view with a freshly created shape before the first
// broadcast arrives.
func (v *ShapeView) SetLocal(s shape.Shape) {
	v.mu.Lock()
	v.local = s.Clone()
	v.hydrated = true
	next := v.local.Clone()
	render := v.onRender
	v.mu.Unlock()
	if render != nil {
		render(next)
	}
}

// Notify delivers an edit lifecycle event.
func (v *ShapeView) Notify(ev EditEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.editing = ev == EditBegan
}

// Editing reports whether an edit guard is currently open.
func (v *ShapeView) Editing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.editing
}

// Reconcile merges one store broadcast into the view. The remote state is
// ignored while an edit guard is open, and compared before being adopted:
// a broadcast identical to the local state, such as the echo of our own
// last push, changes nothing and triggers no render.
func (v *ShapeView) Reconcile(shapes []shape.Shape) {
	v.mu.Lock()
	if v.index < 0 || v.index >= len(shapes) {
		// Not yet hydrated on this replica.
		v.mu.Unlock()
		return
	}
	remote := shapes[v.index]
	if v.editing {
		v.mu.Unlock()
		return
	}
	if v.hydrated && shape.Equal(remote, v.local) {
		v.mu.Unlock()
		return
	}
	v.local = remote.Clone()
	v.hydrated = true
	next := v.local.Clone()
	render := v.onRender
	v.mu.Unlock()
	if render != nil {
		render(next)
	}
}
