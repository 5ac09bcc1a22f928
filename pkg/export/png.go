// Package export renders a board snapshot server-side, for download links
// and shutdown dumps. Tombstoned shapes are filtered out, exactly as the
// canvas filters them.
package export

import (
	"fmt"
	"io"

	"github.com/fogleman/gg"

	"github.com/boardkit/boardkit/pkg/shape"
)

// PNGOptions sizes the rendered image.
type PNGOptions struct {
	Width      int
	Height     int
	Background string
}

func (o *PNGOptions) defaults() {
	if o.Width <= 0 {
		o.Width = 2000
	}
	if o.Height <= 0 {
		o.Height = 2000
	}
	if o.Background == "" {
		o.Background = defaultBackground
	}
}

// PNG draws the live shapes of a snapshot into w.
func PNG(w io.Writer, shapes []shape.Shape, opts PNGOptions) error {
	opts.defaults()
	dc := gg.NewContext(opts.Width, opts.Height)
	if bg, ok := parseColor(opts.Background, defaultBackground); ok {
		dc.SetColor(bg)
		dc.Clear()
	}

	for _, s := range shapes {
		if s == nil || s.IsDeleted() {
			continue
		}
		switch v := s.(type) {
		case shape.Rectangle:
			radius := v.CornerRadius
			if radius > 0 {
				dc.DrawRoundedRectangle(v.X, v.Y, v.Width, v.Height, radius)
			} else {
				dc.DrawRectangle(v.X, v.Y, v.Width, v.Height)
			}
			fillAndStroke(dc, v.FillColor, v.StrokeColor, v.StrokeWidth)
		case shape.Ellipse:
			dc.DrawEllipse(v.CX, v.CY, v.RX, v.RY)
			fillAndStroke(dc, v.FillColor, v.StrokeColor, v.StrokeWidth)
		case shape.Line:
			dc.DrawLine(v.X1, v.Y1, v.X2, v.Y2)
			strokeOnly(dc, v.StrokeColor, v.StrokeWidth)
		case shape.Path:
			if len(v.Points) < 2 {
				continue
			}
			dc.MoveTo(v.Points[0].X, v.Points[0].Y)
			for _, p := range v.Points[1:] {
				dc.LineTo(p.X, p.Y)
			}
			strokeOnly(dc, v.StrokeColor, 0)
		case shape.Text:
			if bg, ok := parseColor(v.BgColor, "transparent"); ok {
				dc.SetColor(bg)
				dc.DrawRectangle(v.X, v.Y, v.Width, v.Height)
				dc.Fill()
			}
			tc, _ := parseColor(v.TextColor, defaultTextColor)
			dc.SetColor(tc)
			dc.DrawString(v.Content, v.X+v.Padding, v.Y+v.Padding+12)
		}
	}

	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}

func fillAndStroke(dc *gg.Context, fill, stroke string, width float64) {
	if c, ok := parseColor(fill, defaultFill); ok {
		dc.SetColor(c)
		dc.FillPreserve()
	}
	strokeOnly(dc, stroke, width)
}

func strokeOnly(dc *gg.Context, stroke string, width float64) {
	c, _ := parseColor(stroke, defaultStroke)
	dc.SetColor(c)
	if width <= 0 {
		width = defaultStrokeWidth
	}
	dc.SetLineWidth(width)
	dc.Stroke()
}
