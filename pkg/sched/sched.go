// Package sched bounds the network write rate of high-frequency gestures.
// Freehand drawing and drag-move emit a state change per pointer event;
// the scheduler coalesces them into one push per window plus a guaranteed
// final push on gesture end. Pushes always carry the snapshot taken at
// push time, so skipped intermediate states are superseded, never lost.
package sched

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/boardkit/boardkit/pkg/shape"
)

// DefaultWindow matches the interaction throttle of the drawing surface.
const DefaultWindow = 100 * time.Millisecond

// Scheduler throttles pushes of one shape's local state.
type Scheduler struct {
	window   time.Duration
	snapshot func() shape.Patch
	push     func(context.Context, shape.Patch) error
	logger   *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pushing bool
	closed  bool

	// pushMu serializes pushes so at most one is in flight and the
	// snapshot is always read at push time.
	pushMu sync.Mutex
}

// New builds a scheduler. snapshot must return the latest local state as a
// patch; push writes it to the shared list. A window of zero or less uses
// DefaultWindow.
func New(window time.Duration, snapshot func() shape.Patch, push func(context.Context, shape.Patch) error, logger *slog.Logger) *Scheduler {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{window: window, snapshot: snapshot, push: push, logger: logger}
}

// Schedule arms a push for the end of the current window. If a push is
// already pending or in flight this does nothing: the eventual push reads
// the latest snapshot anyway.
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.timer != nil || s.pushing {
		return
	}
	s.timer = time.AfterFunc(s.window, s.fire)
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	s.timer = nil
	if s.closed || s.pushing {
		s.mu.Unlock()
		return
	}
	s.pushing = true
	s.mu.Unlock()

	if err := s.doPush(context.Background()); err != nil {
		s.logger.Warn("throttled push failed", "err", err)
	}

	s.mu.Lock()
	s.pushing = false
	s.mu.Unlock()
}

// Flush cancels any pending window and pushes the latest snapshot
// synchronously. Called on gesture end so the final state always lands.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.doPush(ctx)
}

func (s *Scheduler) doPush(ctx context.Context) error {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	return s.push(ctx, s.snapshot())
}

// Close cancels any pending push. Data is never lost to teardown ordering:
// callers flush before closing when the final state matters.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
