package store

import (
	"context"
	"sync"

	"github.com/boardkit/boardkit/pkg/shape"
)

// MemList is an in-process List. It backs tests and any caller that wants
// board semantics without a replication session; patches apply in call
// order, which is exactly the arrival-order contract of the shared store.
type MemList struct {
	mu      sync.Mutex
	shapes  []shape.Shape
	subs    map[int]func([]shape.Shape)
	nextSub int
}

var _ List = (*MemList)(nil)

func NewMemList() *MemList {
	return &MemList{subs: map[int]func([]shape.Shape){}}
}

func (l *MemList) Append(_ context.Context, s shape.Shape) (int, error) {
	l.mu.Lock()
	l.shapes = append(l.shapes, s.Clone())
	index := len(l.shapes) - 1
	l.mu.Unlock()
	l.notify()
	return index, nil
}

func (l *MemList) Get(index int) (shape.Shape, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.shapes) {
		return nil, false
	}
	return l.shapes[index].Clone(), true
}

func (l *MemList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.shapes)
}

func (l *MemList) Patch(_ context.Context, index int, p shape.Patch) error {
	l.mu.Lock()
	if index < 0 || index >= len(l.shapes) {
		l.mu.Unlock()
		return nil
	}
	l.shapes[index] = p.Apply(l.shapes[index])
	l.mu.Unlock()
	l.notify()
	return nil
}

func (l *MemList) Snapshot() []shape.Shape {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]shape.Shape, 0, len(l.shapes))
	for _, s := range l.shapes {
		out = append(out, s.Clone())
	}
	return out
}

func (l *MemList) Subscribe(fn func([]shape.Shape)) func() {
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}

func (l *MemList) notify() {
	snap := l.Snapshot()
	l.mu.Lock()
	fns := make([]func([]shape.Shape), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
