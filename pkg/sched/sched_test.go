package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/boardkit/boardkit/pkg/shape"
)

// pushRecorder collects every pushed patch and can report how many pushes
// overlapped in time.
type pushRecorder struct {
	mu       sync.Mutex
	patches  []shape.Patch
	inFlight int
	maxSeen  int
	delay    time.Duration
}

func (r *pushRecorder) push(_ context.Context, p shape.Patch) error {
	r.mu.Lock()
	r.inFlight++
	if r.inFlight > r.maxSeen {
		r.maxSeen = r.inFlight
	}
	r.mu.Unlock()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	r.patches = append(r.patches, p)
	r.inFlight--
	r.mu.Unlock()
	return nil
}

func (r *pushRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.patches)
}

func (r *pushRecorder) last() (shape.Patch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.patches) == 0 {
		return shape.Patch{}, false
	}
	return r.patches[len(r.patches)-1], true
}

func TestScheduleCoalescesBurst(t *testing.T) {
	var mu sync.Mutex
	pts := []shape.Point{}
	rec := &pushRecorder{}

	s := New(20*time.Millisecond, func() shape.Patch {
		mu.Lock()
		defer mu.Unlock()
		return shape.Patch{Points: append([]shape.Point(nil), pts...)}
	}, rec.push, nil)
	defer s.Close()

	// A burst of pointer events well inside one window.
	for i := 0; i < 50; i++ {
		mu.Lock()
		pts = append(pts, shape.Point{X: float64(i), Y: float64(i)})
		mu.Unlock()
		s.Schedule()
	}
	time.Sleep(60 * time.Millisecond)

	if got := rec.count(); got != 1 {
		t.Fatalf("%d pushes for one burst, want 1", got)
	}
	p, _ := rec.last()
	if len(p.Points) != 50 {
		t.Errorf("push carried %d points, want the full 50 taken at push time", len(p.Points))
	}
}

func TestFlushDeliversFinalState(t *testing.T) {
	var mu sync.Mutex
	x := 0.0
	rec := &pushRecorder{}

	s := New(time.Hour, func() shape.Patch {
		mu.Lock()
		defer mu.Unlock()
		return shape.Patch{X: shape.Float(x)}
	}, rec.push, nil)
	defer s.Close()

	mu.Lock()
	x = 42
	mu.Unlock()
	s.Schedule()

	// The window is nowhere near expiring; gesture end must still land.
	if err := s.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	p, ok := rec.last()
	if !ok {
		t.Fatal("flush pushed nothing")
	}
	if p.X == nil || *p.X != 42 {
		t.Errorf("flushed %#v, want x=42", p)
	}

	// The cancelled timer must not fire a second push.
	time.Sleep(30 * time.Millisecond)
	if got := rec.count(); got != 1 {
		t.Errorf("%d pushes after flush, want 1", got)
	}
}

func TestAtMostOnePushInFlight(t *testing.T) {
	rec := &pushRecorder{delay: 30 * time.Millisecond}
	s := New(5*time.Millisecond, func() shape.Patch {
		return shape.Patch{X: shape.Float(1)}
	}, rec.push, nil)
	defer s.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			s.Schedule()
			if i%3 == 0 {
				_ = s.Flush(context.Background())
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()
	<-done
	_ = s.Flush(context.Background())

	rec.mu.Lock()
	max := rec.maxSeen
	rec.mu.Unlock()
	if max > 1 {
		t.Errorf("%d pushes overlapped, want at most 1 in flight", max)
	}
}

func TestCloseCancelsPending(t *testing.T) {
	rec := &pushRecorder{}
	s := New(10*time.Millisecond, func() shape.Patch {
		return shape.Patch{}
	}, rec.push, nil)

	s.Schedule()
	s.Close()
	time.Sleep(30 * time.Millisecond)
	if got := rec.count(); got != 0 {
		t.Errorf("%d pushes after close, want 0", got)
	}

	// Scheduling and flushing after close are harmless no-ops.
	s.Schedule()
	if err := s.Flush(context.Background()); err != nil {
		t.Errorf("flush after close: %v", err)
	}
	if got := rec.count(); got != 0 {
		t.Errorf("%d pushes after closed flush, want 0", got)
	}
}
