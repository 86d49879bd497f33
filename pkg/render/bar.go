package render

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
)

const (
	fillGlyph  = '▬'
	emptyGlyph = '─'
)

// barColor maps a fill ratio in [0,1] to the gauge fill color (spec §4.G
// "Fill colour is a function of ratio").
func barColor(ratio float64) tcell.Color {
	switch {
	case ratio >= 0.80:
		return tcell.ColorRed
	case ratio >= 0.70:
		return tcell.ColorYellow
	case ratio >= 0.25:
		return tcell.ColorGreen
	case ratio >= 0.05:
		return tcell.ColorDarkGreen
	default:
		return tcell.ColorDarkSlateGray
	}
}

// Bar renders one gauge as "LABEL: [ filled---empty ]" with the value text
// right-aligned and drawn in white regardless of the underlying fill.
type Bar struct {
	Label string
	Ratio float64 // 0..1
	Value string  // e.g. "73.2%"
	Width int
}

// Cells renders the bar as a sequence of (rune, style) cells.
func (b Bar) Cells() []Cell {
	width := b.Width
	if width <= 0 {
		width = barWidth
	}

	ratio := b.Ratio
	if ratio < 0 {
		ratio = 0
	}

	if ratio > 1 {
		ratio = 1
	}

	filled := int(float64(width) * ratio)

	bar := make([]rune, width)
	for i := range bar {
		if i < filled {
			bar[i] = fillGlyph
		} else {
			bar[i] = emptyGlyph
		}
	}

	fillStyle := tcell.StyleDefault.Foreground(barColor(ratio))

	cells := make([]Cell, 0, width+len(b.Label)+4)

	prefix := fmt.Sprintf("%s: [", b.Label)
	for _, r := range prefix {
		cells = append(cells, Cell{Rune: r, Style: tcell.StyleDefault})
	}

	for i, r := range bar {
		style := fillStyle
		if i >= filled {
			style = tcell.StyleDefault
		}

		cells = append(cells, Cell{Rune: r, Style: style})
	}

	cells = append(cells, Cell{Rune: ']', Style: tcell.StyleDefault})

	// Overlay the value text right-aligned inside the bar region, always
	// white so it stays legible over either fill color.
	valueStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite)
	start := len(prefix) + width - len(b.Value)

	if start >= len(prefix) && start+len(b.Value) <= len(prefix)+width {
		for i, r := range b.Value {
			cells[start+i] = Cell{Rune: r, Style: valueStyle}
		}
	}

	return cells
}

// marqueeWindow returns the visible window into text+"   "+text starting at
// offset, for display inside a column of the given width (spec §4.G
// "marquee animation").
func marqueeWindow(text string, width, offset int) string {
	if len([]rune(text)) <= width {
		return text
	}

	doubled := []rune(text + "   " + text)
	period := len([]rune(text)) + 3
	start := offset % period

	if start+width > len(doubled) {
		doubled = append(doubled, []rune(text+"   "+text)...)
	}

	return string(doubled[start : start+width])
}

// sparkline renders points (already normalized to [0,1]) as a fixed-width
// strip of braille dot glyphs, monotonic in value.
var sparkGlyphs = []rune(" ⣀⣄⣤⣦⣶⣷⣿")

func sparkline(values []float64, width int) string {
	var b strings.Builder

	n := len(values)
	if n == 0 {
		return strings.Repeat(" ", width)
	}

	start := 0
	if n > width {
		start = n - width
	}

	written := 0

	for _, v := range values[start:] {
		if v < 0 {
			v = 0
		}

		if v > 1 {
			v = 1
		}

		idx := int(v * float64(len(sparkGlyphs)-1))
		b.WriteRune(sparkGlyphs[idx])
		written++
	}

	for ; written < width; written++ {
		b.WriteRune(' ')
	}

	return b.String()
}
