package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/automerge/automerge-go"

	"github.com/boardkit/boardkit/pkg/shape"
)

const shapesKey = "shapes"

// LiveList is the replicated List: an automerge document whose root holds
// an ordered list of shape field maps under "shapes". Patching sets only
// the touched fields on the element map, so concurrent patches from other
// actors merge per-field with last-writer-wins. The wire pump calls
// RemoteApplied after sync messages land so subscribers see remote changes
// through the same broadcast as local ones.
type LiveList struct {
	mu      sync.Mutex
	doc     *automerge.Doc
	logger  *slog.Logger
	subs    map[int]func([]shape.Shape)
	nextSub int
}

var _ List = (*LiveList)(nil)

// NewLiveList wraps doc, creating the root shapes list if the document
// does not carry one yet.
func NewLiveList(doc *automerge.Doc, logger *slog.Logger) (*LiveList, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v, err := doc.Path(shapesKey).Get()
	if err != nil {
		return nil, fmt.Errorf("failed to read shapes list: %w", err)
	}
	if v.Kind() != automerge.KindList {
		if err := doc.Path(shapesKey).Set([]any{}); err != nil {
			return nil, fmt.Errorf("failed to create shapes list: %w", err)
		}
	}
	return &LiveList{
		doc:    doc,
		logger: logger,
		subs:   map[int]func([]shape.Shape){},
	}, nil
}

// Doc exposes the underlying document for sync session establishment.
func (l *LiveList) Doc() *automerge.Doc { return l.doc }

func (l *LiveList) Append(_ context.Context, s shape.Shape) (int, error) {
	l.mu.Lock()
	list := l.doc.Path(shapesKey).List()
	if err := list.Append(s.Fields()); err != nil {
		l.mu.Unlock()
		return 0, fmt.Errorf("failed to append shape: %w", err)
	}
	index := list.Len() - 1
	if _, err := l.doc.Commit("append "+string(s.Kind()), automerge.CommitOptions{AllowEmpty: true}); err != nil {
		l.mu.Unlock()
		return 0, fmt.Errorf("failed to commit append: %w", err)
	}
	l.mu.Unlock()
	l.notify()
	return index, nil
}

func (l *LiveList) Get(index int) (shape.Shape, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getLocked(index)
}

func (l *LiveList) getLocked(index int) (shape.Shape, bool) {
	list := l.doc.Path(shapesKey).List()
	if index < 0 || index >= list.Len() {
		return nil, false
	}
	fields, err := automerge.As[map[string]any](list.Get(index))
	if err != nil {
		l.logger.Warn("failed to read shape", "index", index, "err", err)
		return nil, false
	}
	s, err := shape.FromFields(fields)
	if err != nil {
		l.logger.Warn("failed to decode shape", "index", index, "err", err)
		return nil, false
	}
	return s, true
}

func (l *LiveList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.doc.Path(shapesKey).List().Len()
}

func (l *LiveList) Patch(_ context.Context, index int, p shape.Patch) error {
	l.mu.Lock()
	list := l.doc.Path(shapesKey).List()
	if index < 0 || index >= list.Len() {
		// Stale index racing a concurrent change elsewhere. Expected.
		l.mu.Unlock()
		l.logger.Debug("patch targets missing index", "index", index)
		return nil
	}
	v, err := list.Get(index)
	if err != nil || v.Kind() != automerge.KindMap {
		l.mu.Unlock()
		l.logger.Debug("patch targets non-map element", "index", index, "err", err)
		return nil
	}
	element := v.Map()
	for key, value := range p.Fields() {
		if err := element.Set(key, value); err != nil {
			l.mu.Unlock()
			return fmt.Errorf("failed to set %q on shape %d: %w", key, index, err)
		}
	}
	if _, err := l.doc.Commit(fmt.Sprintf("patch %d", index), automerge.CommitOptions{AllowEmpty: true}); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("failed to commit patch: %w", err)
	}
	l.mu.Unlock()
	l.notify()
	return nil
}

func (l *LiveList) Snapshot() []shape.Shape {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *LiveList) snapshotLocked() []shape.Shape {
	list := l.doc.Path(shapesKey).List()
	out := make([]shape.Shape, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		s, ok := l.getLocked(i)
		if !ok {
			// Keep indexes aligned even when one element is unreadable.
			s = shape.Rectangle{Deleted: true}
		}
		out = append(out, s)
	}
	return out
}

func (l *LiveList) Subscribe(fn func([]shape.Shape)) func() {
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

// RemoteApplied broadcasts the current sequence to subscribers. The sync
// pump calls it after applying received messages to the document.
func (l *LiveList) RemoteApplied() { l.notify() }

func (l *LiveList) notify() {
	l.mu.Lock()
	snap := l.snapshotLocked()
	fns := make([]func([]shape.Shape), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
