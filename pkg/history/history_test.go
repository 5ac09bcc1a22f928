package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boardkit/boardkit/pkg/shape"
	"github.com/boardkit/boardkit/pkg/store"
)

// record applies p through the list and registers it with the recorder,
// the way the mutation layer does.
func record(t *testing.T, l store.List, r *Recorder, index int, p shape.Patch) {
	t.Helper()
	existing, ok := l.Get(index)
	if !ok {
		t.Fatalf("no shape at index %d", index)
	}
	inverse := p.InverseFor(existing)
	if err := l.Patch(context.Background(), index, p); err != nil {
		t.Fatalf("patch: %v", err)
	}
	r.Record(index, inverse, p)
}

func rectX(t *testing.T, l store.List, index int) float64 {
	t.Helper()
	s, ok := l.Get(index)
	if !ok {
		t.Fatalf("no shape at index %d", index)
	}
	return s.(shape.Rectangle).X
}

func TestUndoSingleMutation(t *testing.T) {
	l := store.NewMemList()
	r := NewRecorder(l, nil)
	ctx := context.Background()

	if _, err := l.Append(ctx, shape.Rectangle{X: 10}); err != nil {
		t.Fatal(err)
	}
	record(t, l, r, 0, shape.Patch{X: shape.Float(20)})

	r.Undo(ctx)
	if got := rectX(t, l, 0); got != 10 {
		t.Errorf("x=%v after undo, want 10", got)
	}
	r.Redo(ctx)
	if got := rectX(t, l, 0); got != 20 {
		t.Errorf("x=%v after redo, want 20", got)
	}
}

func TestPauseResumeBatchesToOneStep(t *testing.T) {
	// Three patches inside one pause/resume bracket must be exactly one
	// undo entry, and one undo restores the pre-pause value.
	l := store.NewMemList()
	r := NewRecorder(l, nil)
	ctx := context.Background()

	if _, err := l.Append(ctx, shape.Rectangle{X: 0}); err != nil {
		t.Fatal(err)
	}

	r.Pause()
	record(t, l, r, 0, shape.Patch{X: shape.Float(1)})
	record(t, l, r, 0, shape.Patch{X: shape.Float(2)})
	record(t, l, r, 0, shape.Patch{X: shape.Float(3)})
	r.Resume()

	if undo, _ := r.Depths(); undo != 1 {
		t.Fatalf("undo depth %d, want 1", undo)
	}
	r.Undo(ctx)
	if got := rectX(t, l, 0); got != 0 {
		t.Errorf("x=%v after undo, want pre-pause 0", got)
	}
	r.Redo(ctx)
	if got := rectX(t, l, 0); got != 3 {
		t.Errorf("x=%v after redo, want 3", got)
	}
}

func TestNestedPauseStaysOneBatch(t *testing.T) {
	l := store.NewMemList()
	r := NewRecorder(l, nil)
	ctx := context.Background()
	if _, err := l.Append(ctx, shape.Rectangle{X: 0}); err != nil {
		t.Fatal(err)
	}

	r.Pause()
	record(t, l, r, 0, shape.Patch{X: shape.Float(1)})
	r.Pause() // resize handler pausing inside an open gesture
	record(t, l, r, 0, shape.Patch{X: shape.Float(2)})
	r.Resume()

	if undo, _ := r.Depths(); undo != 1 {
		t.Errorf("undo depth %d, want 1 for nested pause", undo)
	}
}

func TestUndoRestoresMultipleShapesAndFields(t *testing.T) {
	l := store.NewMemList()
	r := NewRecorder(l, nil)
	ctx := context.Background()

	if _, err := l.Append(ctx, shape.Rectangle{X: 1, StrokeColor: "red"}); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Append(ctx, shape.Line{X2: 5}); err != nil {
		t.Fatal(err)
	}

	r.Pause()
	record(t, l, r, 0, shape.Patch{X: shape.Float(9), StrokeColor: shape.String("blue")})
	record(t, l, r, 1, shape.Patch{X2: shape.Float(50)})
	record(t, l, r, 0, shape.Patch{X: shape.Float(11)})
	r.Resume()

	r.Undo(ctx)
	s0, _ := l.Get(0)
	s1, _ := l.Get(1)
	if !shape.Equal(s0, shape.Rectangle{X: 1, StrokeColor: "red"}) {
		t.Errorf("shape 0 not restored: %#v", s0)
	}
	if !shape.Equal(s1, shape.Line{X2: 5}) {
		t.Errorf("shape 1 not restored: %#v", s1)
	}

	r.Redo(ctx)
	s0, _ = l.Get(0)
	if got := s0.(shape.Rectangle); got.X != 11 || got.StrokeColor != "blue" {
		t.Errorf("shape 0 not re-applied: %#v", got)
	}
}

func TestEmptyStacksAreNoops(t *testing.T) {
	l := store.NewMemList()
	r := NewRecorder(l, nil)
	ctx := context.Background()
	if _, err := l.Append(ctx, shape.Rectangle{X: 1}); err != nil {
		t.Fatal(err)
	}

	r.Undo(ctx)
	r.Redo(ctx)
	if got := rectX(t, l, 0); got != 1 {
		t.Errorf("empty undo/redo changed state: x=%v", got)
	}
}

func TestNewMutationClearsRedo(t *testing.T) {
	l := store.NewMemList()
	r := NewRecorder(l, nil)
	ctx := context.Background()
	if _, err := l.Append(ctx, shape.Rectangle{X: 0}); err != nil {
		t.Fatal(err)
	}

	record(t, l, r, 0, shape.Patch{X: shape.Float(1)})
	r.Undo(ctx)
	if _, redo := r.Depths(); redo != 1 {
		t.Fatalf("redo depth %d, want 1", redo)
	}

	record(t, l, r, 0, shape.Patch{X: shape.Float(7)})
	if _, redo := r.Depths(); redo != 0 {
		t.Errorf("redo depth %d after new mutation, want 0", redo)
	}
	r.Redo(ctx)
	if got := rectX(t, l, 0); got != 7 {
		t.Errorf("stale redo re-applied: x=%v", got)
	}
}

func TestResumeWithoutMutationsAddsNothing(t *testing.T) {
	l := store.NewMemList()
	r := NewRecorder(l, nil)
	r.Pause()
	r.Resume()
	if undo, _ := r.Depths(); undo != 0 {
		t.Errorf("undo depth %d, want 0 for empty bracket", undo)
	}
}

// gateList delegates to an inner list but, when armed, parks the next
// Patch until released, so a test can interleave work with an in-flight
// undo.
type gateList struct {
	store.List

	mu   sync.Mutex
	hold chan struct{}
	held chan struct{}
}

// arm parks the next Patch call. The returned channel closes once the call
// is parked; release lets it proceed.
func (g *gateList) arm() (entered <-chan struct{}, release func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hold = make(chan struct{})
	g.held = make(chan struct{})
	hold, held := g.hold, g.held
	return held, func() { close(hold) }
}

func (g *gateList) Patch(ctx context.Context, index int, p shape.Patch) error {
	g.mu.Lock()
	hold, held := g.hold, g.held
	g.hold, g.held = nil, nil
	g.mu.Unlock()
	if hold != nil {
		close(held)
		<-hold
	}
	return g.List.Patch(ctx, index, p)
}

func TestRecordDuringInFlightUndo(t *testing.T) {
	// A throttled push can record a mutation while an undo is still
	// applying its inverses. The undone batch must not displace it from
	// the stack: the next undo reverts the new mutation, not the batch
	// that was already undone.
	g := &gateList{List: store.NewMemList()}
	r := NewRecorder(g, nil)
	ctx := context.Background()

	if _, err := g.Append(ctx, shape.Rectangle{X: 0}); err != nil {
		t.Fatal(err)
	}
	record(t, g, r, 0, shape.Patch{X: shape.Float(5)})

	entered, release := g.arm()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Undo(ctx)
	}()
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("undo never reached the list")
	}

	// The undo is parked inside list.Patch; a push lands now.
	record(t, g, r, 0, shape.Patch{X: shape.Float(7)})

	release()
	<-done

	r.Undo(ctx)
	if got := rectX(t, g, 0); got != 5 {
		t.Errorf("x=%v after second undo, want 5 from reverting the mid-undo record", got)
	}
	if undo, _ := r.Depths(); undo != 0 {
		t.Errorf("undo depth %d, want 0 after both batches undone", undo)
	}
}

func TestConcurrentUndoDoesNotDoubleApply(t *testing.T) {
	g := &gateList{List: store.NewMemList()}
	r := NewRecorder(g, nil)
	ctx := context.Background()

	if _, err := g.Append(ctx, shape.Rectangle{X: 0}); err != nil {
		t.Fatal(err)
	}
	record(t, g, r, 0, shape.Patch{X: shape.Float(1)})

	entered, release := g.arm()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Undo(ctx)
	}()
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("undo never reached the list")
	}

	// The stack holds only the batch already in flight, so this second
	// undo must be a clean no-op.
	r.Undo(ctx)

	release()
	<-done

	undo, redo := r.Depths()
	if undo != 0 || redo != 1 {
		t.Errorf("depths undo=%d redo=%d, want 0/1", undo, redo)
	}
	if got := rectX(t, g, 0); got != 0 {
		t.Errorf("x=%v, want 0", got)
	}
}

// failList fails every Patch while tripped.
type failList struct {
	store.List
	tripped bool
}

func (f *failList) Patch(ctx context.Context, index int, p shape.Patch) error {
	if f.tripped {
		return errors.New("list unavailable")
	}
	return f.List.Patch(ctx, index, p)
}

func TestFailedUndoKeepsBatchForRetry(t *testing.T) {
	f := &failList{List: store.NewMemList()}
	r := NewRecorder(f, nil)
	ctx := context.Background()

	if _, err := f.Append(ctx, shape.Rectangle{X: 0}); err != nil {
		t.Fatal(err)
	}
	record(t, f, r, 0, shape.Patch{X: shape.Float(3)})

	f.tripped = true
	r.Undo(ctx)
	undo, redo := r.Depths()
	if undo != 1 || redo != 0 {
		t.Fatalf("depths undo=%d redo=%d after failed undo, want 1/0", undo, redo)
	}

	f.tripped = false
	r.Undo(ctx)
	if got := rectX(t, f, 0); got != 0 {
		t.Errorf("x=%v after retried undo, want 0", got)
	}

	f.tripped = true
	r.Redo(ctx)
	if _, redo := r.Depths(); redo != 1 {
		t.Errorf("redo depth %d after failed redo, want 1", redo)
	}
	f.tripped = false
	r.Redo(ctx)
	if got := rectX(t, f, 0); got != 3 {
		t.Errorf("x=%v after retried redo, want 3", got)
	}
}

func TestUndoIsNotSelfRecording(t *testing.T) {
	l := store.NewMemList()
	r := NewRecorder(l, nil)
	ctx := context.Background()
	if _, err := l.Append(ctx, shape.Rectangle{X: 0}); err != nil {
		t.Fatal(err)
	}
	record(t, l, r, 0, shape.Patch{X: shape.Float(1)})

	r.Undo(ctx)
	undo, redo := r.Depths()
	if undo != 0 || redo != 1 {
		t.Errorf("undo created history entries: undo=%d redo=%d", undo, redo)
	}
}
