// Package shape defines the tagged-variant records stored in a board's
// replicated shape list, and the merge-patch applied to them.
package shape

import (
	"fmt"
)

type Kind string

const (
	KindRectangle Kind = "rectangle"
	KindEllipse   Kind = "ellipse"
	KindLine      Kind = "line"
	KindPath      Kind = "path"
	KindText      Kind = "text"
)

// Point is one [x, y] pair of a freehand path.
type Point struct {
	X float64
	Y float64
}

// Shape is one drawable primitive. The concrete type carries the variant's
// fields; consumers type-switch over the five variants. Fields returns the
// generic field form that round-trips through the replicated list, JSON,
// and back through FromFields.
type Shape interface {
	Kind() Kind
	IsDeleted() bool
	Fields() map[string]any
	Clone() Shape
}

type Rectangle struct {
	X            float64
	Y            float64
	Width        float64
	Height       float64
	StrokeColor  string
	FillColor    string
	StrokeWidth  float64
	CornerRadius float64
	Deleted      bool
}

type Ellipse struct {
	CX          float64
	CY          float64
	RX          float64
	RY          float64
	StrokeColor string
	FillColor   string
	StrokeWidth float64
	Deleted     bool
}

type Line struct {
	X1          float64
	Y1          float64
	X2          float64
	Y2          float64
	StrokeColor string
	FillColor   string
	StrokeWidth float64
	Deleted     bool
}

type Path struct {
	Points      []Point
	StrokeColor string
	FillColor   string
	Deleted     bool
}

type Text struct {
	X             float64
	Y             float64
	Width         float64
	Height        float64
	Content       string
	FontSize      float64
	FontFamily    string
	FontWeight    string
	TextAlign     string
	LineHeight    float64
	LetterSpacing float64
	Padding       float64
	TextColor     string
	BgColor       string
	Deleted       bool
}

func (Rectangle) Kind() Kind { return KindRectangle }
func (Ellipse) Kind() Kind   { return KindEllipse }
func (Line) Kind() Kind      { return KindLine }
func (Path) Kind() Kind      { return KindPath }
func (Text) Kind() Kind      { return KindText }

func (r Rectangle) IsDeleted() bool { return r.Deleted }
func (e Ellipse) IsDeleted() bool   { return e.Deleted }
func (l Line) IsDeleted() bool      { return l.Deleted }
func (p Path) IsDeleted() bool      { return p.Deleted }
func (t Text) IsDeleted() bool      { return t.Deleted }

func (r Rectangle) Clone() Shape { return r }
func (e Ellipse) Clone() Shape   { return e }
func (l Line) Clone() Shape      { return l }
func (t Text) Clone() Shape      { return t }

func (p Path) Clone() Shape {
	out := p
	out.Points = append([]Point(nil), p.Points...)
	return out
}

func (r Rectangle) Fields() map[string]any {
	m := map[string]any{
		"type":   string(KindRectangle),
		"x":      r.X,
		"y":      r.Y,
		"width":  r.Width,
		"height": r.Height,
	}
	putStyle(m, r.StrokeColor, r.FillColor, r.StrokeWidth)
	if r.CornerRadius != 0 {
		m["cornerRadius"] = r.CornerRadius
	}
	putDeleted(m, r.Deleted)
	return m
}

func (e Ellipse) Fields() map[string]any {
	m := map[string]any{
		"type": string(KindEllipse),
		"cx":   e.CX,
		"cy":   e.CY,
		"rx":   e.RX,
		"ry":   e.RY,
	}
	putStyle(m, e.StrokeColor, e.FillColor, e.StrokeWidth)
	putDeleted(m, e.Deleted)
	return m
}

func (l Line) Fields() map[string]any {
	m := map[string]any{
		"type": string(KindLine),
		"x1":   l.X1,
		"y1":   l.Y1,
		"x2":   l.X2,
		"y2":   l.Y2,
	}
	putStyle(m, l.StrokeColor, l.FillColor, l.StrokeWidth)
	putDeleted(m, l.Deleted)
	return m
}

func (p Path) Fields() map[string]any {
	m := map[string]any{
		"type":   string(KindPath),
		"points": encodePoints(p.Points),
	}
	putStyle(m, p.StrokeColor, p.FillColor, 0)
	putDeleted(m, p.Deleted)
	return m
}

func (t Text) Fields() map[string]any {
	m := map[string]any{
		"type":    string(KindText),
		"x":       t.X,
		"y":       t.Y,
		"width":   t.Width,
		"height":  t.Height,
		"content": t.Content,
	}
	if t.FontSize != 0 {
		m["fontSize"] = t.FontSize
	}
	if t.FontFamily != "" {
		m["fontFamily"] = t.FontFamily
	}
	if t.FontWeight != "" {
		m["fontWeight"] = t.FontWeight
	}
	if t.TextAlign != "" {
		m["textAlign"] = t.TextAlign
	}
	if t.LineHeight != 0 {
		m["lineHeight"] = t.LineHeight
	}
	if t.LetterSpacing != 0 {
		m["letterSpacing"] = t.LetterSpacing
	}
	if t.Padding != 0 {
		m["padding"] = t.Padding
	}
	if t.TextColor != "" {
		m["textColor"] = t.TextColor
	}
	if t.BgColor != "" {
		m["bgColor"] = t.BgColor
	}
	putDeleted(m, t.Deleted)
	return m
}

func putStyle(m map[string]any, strokeColor, fillColor string, strokeWidth float64) {
	if strokeColor != "" {
		m["strokeColor"] = strokeColor
	}
	if fillColor != "" {
		m["fillColor"] = fillColor
	}
	if strokeWidth != 0 {
		m["strokeWidth"] = strokeWidth
	}
}

func putDeleted(m map[string]any, deleted bool) {
	if deleted {
		m["deleted"] = true
	}
}

func encodePoints(pts []Point) []any {
	out := make([]any, 0, len(pts))
	for _, p := range pts {
		out = append(out, []any{p.X, p.Y})
	}
	return out
}

// FromFields rebuilds a Shape from its generic field form. Unknown keys are
// ignored so that documents written by newer peers still decode.
func FromFields(m map[string]any) (Shape, error) {
	kind, _ := m["type"].(string)
	switch Kind(kind) {
	case KindRectangle:
		return Rectangle{
			X:            num(m["x"]),
			Y:            num(m["y"]),
			Width:        num(m["width"]),
			Height:       num(m["height"]),
			StrokeColor:  str(m["strokeColor"]),
			FillColor:    str(m["fillColor"]),
			StrokeWidth:  num(m["strokeWidth"]),
			CornerRadius: num(m["cornerRadius"]),
			Deleted:      boolean(m["deleted"]),
		}, nil
	case KindEllipse:
		return Ellipse{
			CX:          num(m["cx"]),
			CY:          num(m["cy"]),
			RX:          num(m["rx"]),
			RY:          num(m["ry"]),
			StrokeColor: str(m["strokeColor"]),
			FillColor:   str(m["fillColor"]),
			StrokeWidth: num(m["strokeWidth"]),
			Deleted:     boolean(m["deleted"]),
		}, nil
	case KindLine:
		return Line{
			X1:          num(m["x1"]),
			Y1:          num(m["y1"]),
			X2:          num(m["x2"]),
			Y2:          num(m["y2"]),
			StrokeColor: str(m["strokeColor"]),
			FillColor:   str(m["fillColor"]),
			StrokeWidth: num(m["strokeWidth"]),
			Deleted:     boolean(m["deleted"]),
		}, nil
	case KindPath:
		pts, err := decodePoints(m["points"])
		if err != nil {
			return nil, err
		}
		return Path{
			Points:      pts,
			StrokeColor: str(m["strokeColor"]),
			FillColor:   str(m["fillColor"]),
			Deleted:     boolean(m["deleted"]),
		}, nil
	case KindText:
		return Text{
			X:             num(m["x"]),
			Y:             num(m["y"]),
			Width:         num(m["width"]),
			Height:        num(m["height"]),
			Content:       str(m["content"]),
			FontSize:      num(m["fontSize"]),
			FontFamily:    str(m["fontFamily"]),
			FontWeight:    str(m["fontWeight"]),
			TextAlign:     str(m["textAlign"]),
			LineHeight:    num(m["lineHeight"]),
			LetterSpacing: num(m["letterSpacing"]),
			Padding:       num(m["padding"]),
			TextColor:     str(m["textColor"]),
			BgColor:       str(m["bgColor"]),
			Deleted:       boolean(m["deleted"]),
		}, nil
	default:
		return nil, fmt.Errorf("unknown shape type %q", kind)
	}
}

func decodePoints(v any) ([]Point, error) {
	if v == nil {
		return nil, nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("points is %T, not a list", v)
	}
	out := make([]Point, 0, len(raw))
	for i, pv := range raw {
		pair, ok := pv.([]any)
		if !ok || len(pair) < 2 {
			return nil, fmt.Errorf("point %d is not an [x, y] pair", i)
		}
		out = append(out, Point{X: num(pair[0]), Y: num(pair[1])})
	}
	return out, nil
}

func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	default:
		return 0
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func boolean(v any) bool {
	b, _ := v.(bool)
	return b
}

// Equal reports whether two shapes carry identical state. Used by the
// reconciliation loop to avoid re-applying a remote update that matches
// what was just pushed locally.
func Equal(a, b Shape) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case Rectangle:
		bv, ok := b.(Rectangle)
		return ok && av == bv
	case Ellipse:
		bv, ok := b.(Ellipse)
		return ok && av == bv
	case Line:
		bv, ok := b.(Line)
		return ok && av == bv
	case Path:
		bv, ok := b.(Path)
		if !ok {
			return false
		}
		if av.StrokeColor != bv.StrokeColor || av.FillColor != bv.FillColor || av.Deleted != bv.Deleted {
			return false
		}
		return PointsEqual(av.Points, bv.Points)
	case Text:
		bv, ok := b.(Text)
		return ok && av == bv
	default:
		return false
	}
}

// PointsEqual compares two point sequences element-wise.
func PointsEqual(a, b []Point) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
