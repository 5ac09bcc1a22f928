package export

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/boardkit/boardkit/pkg/shape"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in       string
		fallback string
		want     color.RGBA
		ok       bool
	}{
		{"red", "black", color.RGBA{0xff, 0, 0, 0xff}, true},
		{"RED", "black", color.RGBA{0xff, 0, 0, 0xff}, true},
		{"#ff0000", "black", color.RGBA{0xff, 0, 0, 0xff}, true},
		{"#F00", "black", color.RGBA{0xff, 0, 0, 0xff}, true},
		{"#11223344", "black", color.RGBA{0x11, 0x22, 0x33, 0x44}, true},
		{"#131313", "black", color.RGBA{0x13, 0x13, 0x13, 0xff}, true},
		{"transparent", "red", color.RGBA{}, false},
		{"none", "red", color.RGBA{}, false},
		{"", "yellow", color.RGBA{0xff, 0xff, 0, 0xff}, true},
		{"nonsense", "blue", color.RGBA{0, 0, 0xff, 0xff}, true},
		{"#zz0000", "green", color.RGBA{0, 0x80, 0, 0xff}, true},
	}
	for _, tt := range tests {
		got, ok := parseColor(tt.in, tt.fallback)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseColor(%q, %q) = %v, %v; want %v, %v", tt.in, tt.fallback, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPNGRendersDecodableImage(t *testing.T) {
	shapes := []shape.Shape{
		shape.Rectangle{X: 10, Y: 10, Width: 100, Height: 50, FillColor: "yellow"},
		shape.Ellipse{CX: 200, CY: 200, RX: 40, RY: 20, StrokeColor: "#0f0"},
		shape.Line{X1: 0, Y1: 0, X2: 300, Y2: 300, StrokeWidth: 5},
		shape.Path{Points: []shape.Point{{X: 1, Y: 1}, {X: 50, Y: 80}, {X: 90, Y: 20}}},
		shape.Text{X: 20, Y: 250, Width: 120, Height: 30, Content: "hello", BgColor: "#333"},
		shape.Rectangle{X: 0, Y: 0, Width: 9999, Height: 9999, FillColor: "white", Deleted: true},
	}

	var buf bytes.Buffer
	if err := PNG(&buf, shapes, PNGOptions{Width: 320, Height: 320}); err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not a png: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 320 || bounds.Dy() != 320 {
		t.Errorf("image %dx%d, want 320x320", bounds.Dx(), bounds.Dy())
	}

	// The tombstoned full-canvas white rectangle must not have been drawn:
	// a corner pixel stays at the dark background.
	r, g, b, _ := img.At(319, 319).RGBA()
	if r>>8 > 0x40 && g>>8 > 0x40 && b>>8 > 0x40 {
		t.Errorf("corner pixel (%d,%d,%d) looks painted over the background", r>>8, g>>8, b>>8)
	}
}

func TestPNGEmptySnapshot(t *testing.T) {
	var buf bytes.Buffer
	if err := PNG(&buf, nil, PNGOptions{Width: 16, Height: 16}); err != nil {
		t.Fatal(err)
	}
	if _, err := png.Decode(&buf); err != nil {
		t.Errorf("empty board render not decodable: %v", err)
	}
}

func TestPDFHasHeader(t *testing.T) {
	var buf bytes.Buffer
	shapes := []shape.Shape{
		shape.Rectangle{X: 10, Y: 10, Width: 100, Height: 50},
		shape.Text{X: 20, Y: 80, Content: "note"},
	}
	if err := PDF(&buf, shapes); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Errorf("output does not start with %%PDF: %q", buf.Bytes()[:8])
	}
}
