package terminal

import (
	"image/color"

	headlessterm "github.com/danielgatis/go-headless-term"
	"github.com/lucasb-eyer/go-colorful"
)

// ansiPalette is the default 256-color table. Entries 0-15 are the standard
// terminal colors (dark + bright variants), 16-231 the 6x6x6 cube and
// 232-255 the grayscale ramp. Values are normalized to [0,1] once at init so
// extraction never touches integer color math.
var ansiPalette = buildPalette()

func buildPalette() [256]colorful.Color {
	var p [256]colorful.Color

	named := [16][3]uint8{
		{0, 0, 0},       // black
		{205, 0, 0},     // red
		{0, 205, 0},     // green
		{205, 205, 0},   // yellow
		{0, 0, 238},     // blue
		{205, 0, 205},   // magenta
		{0, 205, 205},   // cyan
		{229, 229, 229}, // white
		{127, 127, 127}, // bright black
		{255, 0, 0},     // bright red
		{0, 255, 0},     // bright green
		{255, 255, 0},   // bright yellow
		{92, 92, 255},   // bright blue
		{255, 0, 255},   // bright magenta
		{0, 255, 255},   // bright cyan
		{255, 255, 255}, // bright white
	}
	for i, rgb := range named {
		p[i] = rgb255(rgb[0], rgb[1], rgb[2])
	}

	for i := 0; i < 216; i++ {
		p[16+i] = colorful.Color{
			R: cubeChannel((i / 36) % 6),
			G: cubeChannel((i / 6) % 6),
			B: cubeChannel(i % 6),
		}
	}

	for i := 0; i < 24; i++ {
		v := float64(8+10*i) / 255.0
		p[232+i] = colorful.Color{R: v, G: v, B: v}
	}

	return p
}

// cubeChannel maps a 0-5 cube coordinate to its channel value: 0 for the
// first step, (55+40*c)/255 otherwise.
func cubeChannel(c int) float64 {
	if c == 0 {
		return 0
	}
	return float64(55+40*c) / 255.0
}

func rgb255(r, g, b uint8) colorful.Color {
	return colorful.Color{
		R: float64(r) / 255.0,
		G: float64(g) / 255.0,
		B: float64(b) / 255.0,
	}
}

// resolveCellColor maps an engine cell color to a concrete RGB value.
// Named foreground/background/cursor colors resolve to the caller-supplied
// defaults rather than fixed RGB; nil (unset) resolves to fallback.
func resolveCellColor(c color.Color, fallback, defaultFG, defaultBG colorful.Color) colorful.Color {
	switch v := c.(type) {
	case nil:
		return fallback
	case *headlessterm.NamedColor:
		return resolveNamed(v.Name, defaultFG, defaultBG)
	case *headlessterm.IndexedColor:
		if v.Index < 0 || v.Index > 255 {
			return fallback
		}
		return ansiPalette[v.Index]
	case color.RGBA:
		return rgb255(v.R, v.G, v.B)
	default:
		r, g, b, _ := c.RGBA()
		return colorful.Color{
			R: float64(r) / 65535.0,
			G: float64(g) / 65535.0,
			B: float64(b) / 65535.0,
		}
	}
}

func resolveNamed(name int, defaultFG, defaultBG colorful.Color) colorful.Color {
	switch name {
	case int(headlessterm.NamedColorForeground):
		return defaultFG
	case int(headlessterm.NamedColorBackground):
		return defaultBG
	}
	if name >= 0 && name < 16 {
		return ansiPalette[name]
	}
	// Cursor, dim/bright semantic variants and anything unrecognized resolve
	// to the default foreground, matching the renderer's expectation that
	// every cell has a concrete color.
	return defaultFG
}
