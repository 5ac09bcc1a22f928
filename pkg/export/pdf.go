package export

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"github.com/boardkit/boardkit/pkg/shape"
)

// pdfScale maps board coordinates onto the page.
const pdfScale = 3

// PDF writes the live shapes of a snapshot as a single-page PDF.
func PDF(w io.Writer, shapes []shape.Shape) error {
	p := gofpdf.New("L", "mm", "A4", "")
	p.AddPage()
	p.SetFont("Helvetica", "", 10)

	for _, s := range shapes {
		if s == nil || s.IsDeleted() {
			continue
		}
		switch v := s.(type) {
		case shape.Rectangle:
			setPDFStyle(p, v.StrokeColor, v.FillColor, v.StrokeWidth)
			p.Rect(v.X/pdfScale, v.Y/pdfScale, v.Width/pdfScale, v.Height/pdfScale, "FD")
		case shape.Ellipse:
			setPDFStyle(p, v.StrokeColor, v.FillColor, v.StrokeWidth)
			p.Ellipse(v.CX/pdfScale, v.CY/pdfScale, v.RX/pdfScale, v.RY/pdfScale, 0, "FD")
		case shape.Line:
			setPDFStyle(p, v.StrokeColor, "", v.StrokeWidth)
			p.Line(v.X1/pdfScale, v.Y1/pdfScale, v.X2/pdfScale, v.Y2/pdfScale)
		case shape.Path:
			setPDFStyle(p, v.StrokeColor, "", 0)
			for i := 1; i < len(v.Points); i++ {
				p.Line(
					v.Points[i-1].X/pdfScale, v.Points[i-1].Y/pdfScale,
					v.Points[i].X/pdfScale, v.Points[i].Y/pdfScale,
				)
			}
		case shape.Text:
			tc, _ := parseColor(v.TextColor, "black")
			p.SetTextColor(int(tc.R), int(tc.G), int(tc.B))
			p.Text(v.X/pdfScale, v.Y/pdfScale+4, v.Content)
		}
	}

	if err := p.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}

func setPDFStyle(p *gofpdf.Fpdf, stroke, fill string, width float64) {
	sc, _ := parseColor(stroke, defaultStroke)
	p.SetDrawColor(int(sc.R), int(sc.G), int(sc.B))
	if fill != "" {
		if fc, ok := parseColor(fill, defaultFill); ok {
			p.SetFillColor(int(fc.R), int(fc.G), int(fc.B))
		}
	}
	if width <= 0 {
		width = defaultStrokeWidth
	}
	p.SetLineWidth(width / pdfScale)
}
