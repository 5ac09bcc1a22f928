package export

import (
	"image/color"
	"strconv"
	"strings"
)

// Default style values applied when a shape carries no explicit style,
// matching what the canvas renders for unstyled shapes.
const (
	defaultStroke      = "red"
	defaultFill        = "yellow"
	defaultStrokeWidth = 3
	defaultTextColor   = "#ffffff"
	defaultBackground  = "#131313"
)

var namedColors = map[string]color.RGBA{
	"black":  {0x00, 0x00, 0x00, 0xff},
	"white":  {0xff, 0xff, 0xff, 0xff},
	"red":    {0xff, 0x00, 0x00, 0xff},
	"green":  {0x00, 0x80, 0x00, 0xff},
	"blue":   {0x00, 0x00, 0xff, 0xff},
	"yellow": {0xff, 0xff, 0x00, 0xff},
	"orange": {0xff, 0xa5, 0x00, 0xff},
	"purple": {0x80, 0x00, 0x80, 0xff},
	"gray":   {0x80, 0x80, 0x80, 0xff},
}

// parseColor understands #rgb, #rrggbb, #rrggbbaa and a handful of CSS
// color names. Unknown values fall back to fallback; "transparent" and
// "none" report ok=false so fills can be skipped.
func parseColor(s, fallback string) (color.RGBA, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		s = strings.ToLower(fallback)
	}
	if s == "transparent" || s == "none" {
		return color.RGBA{}, false
	}
	if c, ok := namedColors[s]; ok {
		return c, true
	}
	if strings.HasPrefix(s, "#") {
		if c, ok := parseHex(s[1:]); ok {
			return c, true
		}
	}
	if c, ok := namedColors[strings.ToLower(fallback)]; ok {
		return c, true
	}
	return color.RGBA{A: 0xff}, true
}

func parseHex(h string) (color.RGBA, bool) {
	switch len(h) {
	case 3:
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	case 6:
	case 8:
	default:
		return color.RGBA{}, false
	}
	v, err := strconv.ParseUint(h, 16, 64)
	if err != nil {
		return color.RGBA{}, false
	}
	if len(h) == 8 {
		return color.RGBA{
			R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v),
		}, true
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, true
}
