package view

import (
	"testing"

	"github.com/boardkit/boardkit/pkg/shape"
)

func TestShapeEmptyUntilHydrated(t *testing.T) {
	v := NewShapeView(0, nil)
	if _, ok := v.Shape(); ok {
		t.Error("unhydrated view reported a shape")
	}
	v.Reconcile([]shape.Shape{shape.Rectangle{X: 3}})
	s, ok := v.Shape()
	if !ok {
		t.Fatal("view still empty after broadcast")
	}
	if s.(shape.Rectangle).X != 3 {
		t.Errorf("adopted %#v", s)
	}
}

func TestReconcileOutOfRangeIndex(t *testing.T) {
	v := NewShapeView(5, nil)
	v.Reconcile([]shape.Shape{shape.Rectangle{}})
	if _, ok := v.Shape(); ok {
		t.Error("view hydrated from a list that does not reach its index")
	}
}

func TestApplyLocalRendersImmediately(t *testing.T) {
	var renders []shape.Shape
	v := NewShapeView(0, func(s shape.Shape) { renders = append(renders, s) })

	v.SetLocal(shape.Rectangle{X: 0})
	v.ApplyLocal(shape.Patch{X: shape.Float(10)})

	if len(renders) != 2 {
		t.Fatalf("%d renders, want 2", len(renders))
	}
	if renders[1].(shape.Rectangle).X != 10 {
		t.Errorf("rendered %#v", renders[1])
	}
	s, _ := v.Shape()
	if s.(shape.Rectangle).X != 10 {
		t.Errorf("local state %#v", s)
	}
}

func TestReconcileEchoSuppressed(t *testing.T) {
	// The broadcast carrying exactly what we already show triggers no
	// render, breaking the local-edit -> broadcast -> re-render loop.
	renders := 0
	v := NewShapeView(0, func(shape.Shape) { renders++ })

	v.SetLocal(shape.Rectangle{X: 10, StrokeColor: "red"})
	before := renders
	v.Reconcile([]shape.Shape{shape.Rectangle{X: 10, StrokeColor: "red"}})
	if renders != before {
		t.Error("identical broadcast triggered a render")
	}

	v.Reconcile([]shape.Shape{shape.Rectangle{X: 99, StrokeColor: "red"}})
	if renders != before+1 {
		t.Error("differing broadcast did not render")
	}
	s, _ := v.Shape()
	if s.(shape.Rectangle).X != 99 {
		t.Errorf("remote state not adopted: %#v", s)
	}
}

func TestEditGuardSuppressesRemote(t *testing.T) {
	v := NewShapeView(0, nil)
	v.SetLocal(shape.Text{Content: "drafting"})

	v.Notify(EditBegan)
	v.Reconcile([]shape.Shape{shape.Text{Content: "remote overwrite"}})
	s, _ := v.Shape()
	if s.(shape.Text).Content != "drafting" {
		t.Errorf("remote clobbered open edit: %#v", s)
	}

	v.Notify(EditEnded)
	v.Reconcile([]shape.Shape{shape.Text{Content: "remote overwrite"}})
	s, _ = v.Shape()
	if s.(shape.Text).Content != "remote overwrite" {
		t.Errorf("broadcast after edit end not adopted: %#v", s)
	}
}

func TestRemoteWinsAfterLocalDivergence(t *testing.T) {
	v := NewShapeView(0, nil)
	v.SetLocal(shape.Rectangle{X: 0})
	v.ApplyLocal(shape.Patch{X: shape.Float(5)})

	// Without an open edit guard, a differing broadcast replaces the
	// optimistic state wholesale.
	v.Reconcile([]shape.Shape{shape.Rectangle{X: 7}})
	s, _ := v.Shape()
	if s.(shape.Rectangle).X != 7 {
		t.Errorf("local optimistic state survived a differing broadcast: %#v", s)
	}
}

func TestReconcileDoesNotShareState(t *testing.T) {
	shapes := []shape.Shape{shape.Path{Points: []shape.Point{{X: 1, Y: 1}}}}
	v := NewShapeView(0, nil)
	v.Reconcile(shapes)

	shapes[0].(shape.Path).Points[0] = shape.Point{X: 99, Y: 99}
	s, _ := v.Shape()
	if got := s.(shape.Path).Points[0]; got != (shape.Point{X: 1, Y: 1}) {
		t.Errorf("view aliased the broadcast slice: %v", got)
	}
}
