package mutation

import (
	"context"
	"testing"

	"github.com/boardkit/boardkit/pkg/history"
	"github.com/boardkit/boardkit/pkg/shape"
	"github.com/boardkit/boardkit/pkg/store"
)

func newTestMutator() (*Mutator, store.List, *history.Recorder) {
	l := store.NewMemList()
	h := history.NewRecorder(l, nil)
	return NewMutator(l, h, nil), l, h
}

func TestCreateAppendsAndRecords(t *testing.T) {
	m, l, h := newTestMutator()
	ctx := context.Background()

	index, err := m.Create(ctx, shape.Rectangle{X: 5, Width: 10, Height: 10})
	if err != nil {
		t.Fatal(err)
	}
	if index != 0 {
		t.Errorf("index %d, want 0", index)
	}
	if l.Len() != 1 {
		t.Errorf("len %d, want 1", l.Len())
	}

	// Undoing a create tombstones, it never shortens the list.
	h.Undo(ctx)
	if l.Len() != 1 {
		t.Errorf("len %d after undo, want 1", l.Len())
	}
	s, _ := l.Get(0)
	if !s.IsDeleted() {
		t.Error("shape not tombstoned after undoing create")
	}
	h.Redo(ctx)
	s, _ = l.Get(0)
	if s.IsDeleted() {
		t.Error("shape still tombstoned after redoing create")
	}
}

func TestDragSequence(t *testing.T) {
	// A drag is one create followed by a bracketed run of position patches.
	m, l, h := newTestMutator()
	ctx := context.Background()

	index, err := m.Create(ctx, shape.Rectangle{X: 0, Y: 0, Width: 20, Height: 20})
	if err != nil {
		t.Fatal(err)
	}

	h.Pause()
	for i := 1; i <= 5; i++ {
		p := shape.Patch{X: shape.Float(float64(i * 10)), Y: shape.Float(float64(i * 4))}
		if err := m.Patch(ctx, index, p); err != nil {
			t.Fatal(err)
		}
	}
	h.Resume()

	s, _ := l.Get(index)
	r := s.(shape.Rectangle)
	if r.X != 50 || r.Y != 20 {
		t.Errorf("final position (%v,%v), want (50,20)", r.X, r.Y)
	}
	if r.Width != 20 || r.Height != 20 {
		t.Errorf("size changed during drag: %vx%v", r.Width, r.Height)
	}

	h.Undo(ctx)
	s, _ = l.Get(index)
	r = s.(shape.Rectangle)
	if r.X != 0 || r.Y != 0 {
		t.Errorf("position (%v,%v) after undoing drag, want (0,0)", r.X, r.Y)
	}
}

func TestPatchStaleIndexIsNoop(t *testing.T) {
	m, l, h := newTestMutator()
	ctx := context.Background()

	if err := m.Patch(ctx, 3, shape.Patch{X: shape.Float(1)}); err != nil {
		t.Errorf("stale patch returned error: %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("len %d, want 0", l.Len())
	}
	if undo, _ := h.Depths(); undo != 0 {
		t.Errorf("stale patch recorded history, depth %d", undo)
	}
}

func TestSoftDeleteIsOneUndoStep(t *testing.T) {
	m, l, h := newTestMutator()
	ctx := context.Background()

	index, err := m.Create(ctx, shape.Ellipse{CX: 5, CY: 5, RX: 2, RY: 2})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SoftDelete(ctx, index); err != nil {
		t.Fatal(err)
	}

	s, _ := l.Get(index)
	if !s.IsDeleted() {
		t.Fatal("shape not tombstoned")
	}
	if l.Len() != 1 {
		t.Errorf("len %d, tombstone must not remove the element", l.Len())
	}

	h.Undo(ctx)
	s, _ = l.Get(index)
	if s.IsDeleted() {
		t.Error("one undo did not resurrect the shape")
	}
	e := s.(shape.Ellipse)
	if e.CX != 5 || e.RX != 2 {
		t.Errorf("resurrected shape lost fields: %#v", e)
	}
}

func TestSoftDeleteKeepsIndexesStable(t *testing.T) {
	m, l, _ := newTestMutator()
	ctx := context.Background()

	a, _ := m.Create(ctx, shape.Rectangle{X: 1})
	b, _ := m.Create(ctx, shape.Rectangle{X: 2})
	if err := m.SoftDelete(ctx, a); err != nil {
		t.Fatal(err)
	}

	s, ok := l.Get(b)
	if !ok {
		t.Fatalf("shape at index %d gone after delete of %d", b, a)
	}
	if s.(shape.Rectangle).X != 2 {
		t.Errorf("index %d now holds %#v", b, s)
	}
}

func TestReplacePoints(t *testing.T) {
	m, l, h := newTestMutator()
	ctx := context.Background()

	index, err := m.Create(ctx, shape.Path{Points: []shape.Point{{X: 0, Y: 0}}})
	if err != nil {
		t.Fatal(err)
	}

	pts := []shape.Point{{X: 0, Y: 0}, {X: 1, Y: 2}, {X: 3, Y: 4}}
	if err := m.ReplacePoints(ctx, index, pts); err != nil {
		t.Fatal(err)
	}
	s, _ := l.Get(index)
	if !shape.PointsEqual(s.(shape.Path).Points, pts) {
		t.Errorf("points %v, want %v", s.(shape.Path).Points, pts)
	}

	h.Undo(ctx)
	s, _ = l.Get(index)
	if got := s.(shape.Path).Points; !shape.PointsEqual(got, []shape.Point{{X: 0, Y: 0}}) {
		t.Errorf("points %v after undo, want original single point", got)
	}

	// nil clears to an empty array rather than leaving the old stroke.
	if err := m.ReplacePoints(ctx, index, nil); err != nil {
		t.Fatal(err)
	}
	s, _ = l.Get(index)
	if got := s.(shape.Path).Points; len(got) != 0 {
		t.Errorf("points %v after nil replace, want empty", got)
	}
}
