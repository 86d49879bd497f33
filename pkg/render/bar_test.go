package render

import (
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
)

func TestBarColorThresholds(t *testing.T) {
	cases := []struct {
		ratio float64
		want  tcell.Color
	}{
		{0.0, tcell.ColorDarkSlateGray},
		{0.04, tcell.ColorDarkSlateGray},
		{0.05, tcell.ColorDarkGreen},
		{0.24, tcell.ColorDarkGreen},
		{0.25, tcell.ColorGreen},
		{0.69, tcell.ColorGreen},
		{0.70, tcell.ColorYellow},
		{0.79, tcell.ColorYellow},
		{0.80, tcell.ColorRed},
		{1.0, tcell.ColorRed},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, barColor(c.ratio))
	}
}

func TestBarCellsClampsRatio(t *testing.T) {
	b := Bar{Label: "GPU", Ratio: 1.5, Value: "150%", Width: 10}
	cells := b.Cells()
	assert.NotEmpty(t, cells)

	// The first fill cell should use the fully-loaded color once ratio is
	// clamped to 1.
	filledStyle := tcell.StyleDefault.Foreground(barColor(1))
	fg, _, _ := filledStyle.Decompose()
	firstFg, _, _ := cells[len("GPU: [")].Style.Decompose()
	assert.Equal(t, fg, firstFg)
}

func TestMarqueeWindowShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "abc", marqueeWindow("abc", 10, 0))
}

func TestMarqueeWindowScrolls(t *testing.T) {
	text := "abcdefgh"
	width := 4

	w0 := marqueeWindow(text, width, 0)
	w1 := marqueeWindow(text, width, 1)

	assert.Equal(t, "abcd", w0)
	assert.NotEqual(t, w0, w1)
	assert.Len(t, w1, width)
}

func TestSparklineEmpty(t *testing.T) {
	assert.Equal(t, "    ", sparkline(nil, 4))
}

func TestSparklineClampsAndTruncates(t *testing.T) {
	values := []float64{-1, 0, 0.5, 1, 2}
	out := []rune(sparkline(values, 3))
	assert.Len(t, out, 3)
	// Only the last 3 (width) values are shown: 0.5, 1, 2 (clamped to 1).
	assert.Equal(t, sparkGlyphs[len(sparkGlyphs)-1], out[len(out)-1])
}
