package shape

// Patch is a partial field update with merge semantics: nil pointers leave
// the existing value untouched, non-nil pointers overwrite it. Points is
// the one exception, replacing the whole array when non-nil.
type Patch struct {
	X      *float64
	Y      *float64
	Width  *float64
	Height *float64

	CX *float64
	CY *float64
	RX *float64
	RY *float64

	X1 *float64
	Y1 *float64
	X2 *float64
	Y2 *float64

	Points []Point

	Content *string

	StrokeColor  *string
	FillColor    *string
	StrokeWidth  *float64
	CornerRadius *float64

	FontSize      *float64
	FontFamily    *string
	FontWeight    *string
	TextAlign     *string
	LineHeight    *float64
	LetterSpacing *float64
	Padding       *float64
	TextColor     *string
	BgColor       *string

	Deleted *bool
}

// Float, String and Bool build the pointer fields of a Patch inline.
func Float(v float64) *float64 { return &v }
func String(v string) *string  { return &v }
func Bool(v bool) *bool        { return &v }

// Apply merges the patch into s and returns the merged shape. Fields the
// variant does not carry are ignored. s is never modified in place.
func (p Patch) Apply(s Shape) Shape {
	switch v := s.(type) {
	case Rectangle:
		setF(&v.X, p.X)
		setF(&v.Y, p.Y)
		setF(&v.Width, p.Width)
		setF(&v.Height, p.Height)
		setS(&v.StrokeColor, p.StrokeColor)
		setS(&v.FillColor, p.FillColor)
		setF(&v.StrokeWidth, p.StrokeWidth)
		setF(&v.CornerRadius, p.CornerRadius)
		setB(&v.Deleted, p.Deleted)
		return v
	case Ellipse:
		setF(&v.CX, p.CX)
		setF(&v.CY, p.CY)
		setF(&v.RX, p.RX)
		setF(&v.RY, p.RY)
		setS(&v.StrokeColor, p.StrokeColor)
		setS(&v.FillColor, p.FillColor)
		setF(&v.StrokeWidth, p.StrokeWidth)
		setB(&v.Deleted, p.Deleted)
		return v
	case Line:
		setF(&v.X1, p.X1)
		setF(&v.Y1, p.Y1)
		setF(&v.X2, p.X2)
		setF(&v.Y2, p.Y2)
		setS(&v.StrokeColor, p.StrokeColor)
		setS(&v.FillColor, p.FillColor)
		setF(&v.StrokeWidth, p.StrokeWidth)
		setB(&v.Deleted, p.Deleted)
		return v
	case Path:
		out := v.Clone().(Path)
		if p.Points != nil {
			out.Points = append([]Point(nil), p.Points...)
		}
		setS(&out.StrokeColor, p.StrokeColor)
		setS(&out.FillColor, p.FillColor)
		setB(&out.Deleted, p.Deleted)
		return out
	case Text:
		setF(&v.X, p.X)
		setF(&v.Y, p.Y)
		setF(&v.Width, p.Width)
		setF(&v.Height, p.Height)
		setS(&v.Content, p.Content)
		setF(&v.FontSize, p.FontSize)
		setS(&v.FontFamily, p.FontFamily)
		setS(&v.FontWeight, p.FontWeight)
		setS(&v.TextAlign, p.TextAlign)
		setF(&v.LineHeight, p.LineHeight)
		setF(&v.LetterSpacing, p.LetterSpacing)
		setF(&v.Padding, p.Padding)
		setS(&v.TextColor, p.TextColor)
		setS(&v.BgColor, p.BgColor)
		setB(&v.Deleted, p.Deleted)
		return v
	default:
		return s
	}
}

// InverseFor returns the patch that restores s to its current state after
// p has been applied: for every field p touches, the inverse carries the
// value s holds now. Fields the variant does not carry are dropped.
func (p Patch) InverseFor(s Shape) Patch {
	var inv Patch
	switch v := s.(type) {
	case Rectangle:
		invF(&inv.X, p.X, v.X)
		invF(&inv.Y, p.Y, v.Y)
		invF(&inv.Width, p.Width, v.Width)
		invF(&inv.Height, p.Height, v.Height)
		invS(&inv.StrokeColor, p.StrokeColor, v.StrokeColor)
		invS(&inv.FillColor, p.FillColor, v.FillColor)
		invF(&inv.StrokeWidth, p.StrokeWidth, v.StrokeWidth)
		invF(&inv.CornerRadius, p.CornerRadius, v.CornerRadius)
		invB(&inv.Deleted, p.Deleted, v.Deleted)
	case Ellipse:
		invF(&inv.CX, p.CX, v.CX)
		invF(&inv.CY, p.CY, v.CY)
		invF(&inv.RX, p.RX, v.RX)
		invF(&inv.RY, p.RY, v.RY)
		invS(&inv.StrokeColor, p.StrokeColor, v.StrokeColor)
		invS(&inv.FillColor, p.FillColor, v.FillColor)
		invF(&inv.StrokeWidth, p.StrokeWidth, v.StrokeWidth)
		invB(&inv.Deleted, p.Deleted, v.Deleted)
	case Line:
		invF(&inv.X1, p.X1, v.X1)
		invF(&inv.Y1, p.Y1, v.Y1)
		invF(&inv.X2, p.X2, v.X2)
		invF(&inv.Y2, p.Y2, v.Y2)
		invS(&inv.StrokeColor, p.StrokeColor, v.StrokeColor)
		invS(&inv.FillColor, p.FillColor, v.FillColor)
		invF(&inv.StrokeWidth, p.StrokeWidth, v.StrokeWidth)
		invB(&inv.Deleted, p.Deleted, v.Deleted)
	case Path:
		if p.Points != nil {
			inv.Points = append([]Point{}, v.Points...)
		}
		invS(&inv.StrokeColor, p.StrokeColor, v.StrokeColor)
		invS(&inv.FillColor, p.FillColor, v.FillColor)
		invB(&inv.Deleted, p.Deleted, v.Deleted)
	case Text:
		invF(&inv.X, p.X, v.X)
		invF(&inv.Y, p.Y, v.Y)
		invF(&inv.Width, p.Width, v.Width)
		invF(&inv.Height, p.Height, v.Height)
		invS(&inv.Content, p.Content, v.Content)
		invF(&inv.FontSize, p.FontSize, v.FontSize)
		invS(&inv.FontFamily, p.FontFamily, v.FontFamily)
		invS(&inv.FontWeight, p.FontWeight, v.FontWeight)
		invS(&inv.TextAlign, p.TextAlign, v.TextAlign)
		invF(&inv.LineHeight, p.LineHeight, v.LineHeight)
		invF(&inv.LetterSpacing, p.LetterSpacing, v.LetterSpacing)
		invF(&inv.Padding, p.Padding, v.Padding)
		invS(&inv.TextColor, p.TextColor, v.TextColor)
		invS(&inv.BgColor, p.BgColor, v.BgColor)
		invB(&inv.Deleted, p.Deleted, v.Deleted)
	}
	return inv
}

// Fields returns the generic field form of the patch: one entry per field
// the patch touches, keyed by the wire schema.
func (p Patch) Fields() map[string]any {
	m := map[string]any{}
	fieldF(m, "x", p.X)
	fieldF(m, "y", p.Y)
	fieldF(m, "width", p.Width)
	fieldF(m, "height", p.Height)
	fieldF(m, "cx", p.CX)
	fieldF(m, "cy", p.CY)
	fieldF(m, "rx", p.RX)
	fieldF(m, "ry", p.RY)
	fieldF(m, "x1", p.X1)
	fieldF(m, "y1", p.Y1)
	fieldF(m, "x2", p.X2)
	fieldF(m, "y2", p.Y2)
	if p.Points != nil {
		m["points"] = encodePoints(p.Points)
	}
	fieldS(m, "content", p.Content)
	fieldS(m, "strokeColor", p.StrokeColor)
	fieldS(m, "fillColor", p.FillColor)
	fieldF(m, "strokeWidth", p.StrokeWidth)
	fieldF(m, "cornerRadius", p.CornerRadius)
	fieldF(m, "fontSize", p.FontSize)
	fieldS(m, "fontFamily", p.FontFamily)
	fieldS(m, "fontWeight", p.FontWeight)
	fieldS(m, "textAlign", p.TextAlign)
	fieldF(m, "lineHeight", p.LineHeight)
	fieldF(m, "letterSpacing", p.LetterSpacing)
	fieldF(m, "padding", p.Padding)
	fieldS(m, "textColor", p.TextColor)
	fieldS(m, "bgColor", p.BgColor)
	if p.Deleted != nil {
		m["deleted"] = *p.Deleted
	}
	return m
}

func setF(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setS(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setB(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func invF(dst **float64, touched *float64, current float64) {
	if touched != nil {
		*dst = Float(current)
	}
}

func invS(dst **string, touched *string, current string) {
	if touched != nil {
		*dst = String(current)
	}
}

func invB(dst **bool, touched *bool, current bool) {
	if touched != nil {
		*dst = Bool(current)
	}
}

func fieldF(m map[string]any, key string, v *float64) {
	if v != nil {
		m[key] = *v
	}
}

func fieldS(m map[string]any, key string, v *string) {
	if v != nil {
		m[key] = *v
	}
}
