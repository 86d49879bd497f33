// Package render implements the differential renderer (spec §4.G): a full
// virtual frame is composed into an in-memory cell buffer each cycle and
// diffed line-by-line against the previously shown buffer; only the cells
// of changed lines are handed to tcell.Screen.SetContent, and one
// Screen.Show() call per frame then flushes them through tcell's own diff.
package render

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/all-smi/all-smi/pkg/types"
)

const minBufferCapacity = 1 << 20 // 1 MiB

// Cell is one terminal cell: a rune plus the style to draw it with.
type Cell struct {
	Rune  rune
	Style tcell.Style
}

// Frame is one composed virtual screen: Width*Height cells, row-major.
type Frame struct {
	Width, Height int
	cells         []Cell
}

// NewFrame allocates a new Frame sized to width*height, with capacity for at
// least minBufferCapacity/4 cells, which is more than 1 MiB of Cell storage
// (spec §4.G "pre-allocated >= 1 MiB"). Every call allocates a fresh buffer.
func NewFrame(width, height int) *Frame {
	n := width * height

	cap := n
	if cap < minBufferCapacity/4 { // a Cell is larger than 4 bytes, so this exceeds 1 MiB
		cap = minBufferCapacity / 4
	}

	return &Frame{Width: width, Height: height, cells: make([]Cell, n, cap)}
}

func (f *Frame) at(x, y int) int { return y*f.Width + x }

// Set writes one cell, no-op if out of bounds.
func (f *Frame) Set(x, y int, r rune, style tcell.Style) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}

	f.cells[f.at(x, y)] = Cell{Rune: r, Style: style}
}

// WriteString draws s starting at (x,y), truncated to the frame width.
func (f *Frame) WriteString(x, y int, s string, style tcell.Style) {
	for i, r := range s {
		if x+i >= f.Width {
			return
		}

		f.Set(x+i, y, r, style)
	}
}

// WriteCells draws a pre-rendered cell sequence (e.g. from Bar.Cells)
// starting at (x,y).
func (f *Frame) WriteCells(x, y int, cells []Cell) {
	for i, c := range cells {
		f.Set(x+i, y, c.Rune, c.Style)
	}
}

func (f *Frame) row(y int) []Cell {
	if y < 0 || y >= f.Height {
		return nil
	}

	return f.cells[f.at(0, y):f.at(0, y)+f.Width]
}

func rowEqual(a, b []Cell) bool {
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

// Renderer owns the tcell screen and the previous-frame buffer used for
// line diffing.
type Renderer struct {
	screen tcell.Screen
	prev   *Frame
}

// NewRenderer wraps screen for differential frame output.
func NewRenderer(screen tcell.Screen) *Renderer {
	return &Renderer{screen: screen}
}

// Show diffs frame against the last emitted one and writes only changed
// lines. A forced repaint discards the previous buffer so every line is
// rewritten in full, matching a fresh frame after resize or a view
// transition (spec §4.G).
func (r *Renderer) Show(frame *Frame, forced bool) {
	if forced || r.prev == nil || r.prev.Width != frame.Width || r.prev.Height != frame.Height {
		r.prev = nil
	}

	for y := 0; y < frame.Height; y++ {
		row := frame.row(y)

		if r.prev != nil && rowEqual(r.prev.row(y), row) {
			continue
		}

		for x, c := range row {
			if c.Rune == 0 {
				c.Rune = ' '
			}

			r.screen.SetContent(x, y, c.Rune, nil, c.Style)
		}
	}

	r.screen.Show()
	r.prev = frame
}

// RenderNotification formats a single-line notification entry for the
// footer, e.g. "[nvml_query_failed] NVML initialization failed".
func RenderNotification(reason, message string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", reason, message)

	return b.String()
}

// DisconnectionBox returns the centered lines for the "CONNECTION LOST" box
// shown over a remote host's content area when its ConnectionStatus is
// disconnected (spec §4.G "Disconnection box").
func DisconnectionBox(host string, status types.ConnectionStatus, width, height int) []string {
	lines := []string{
		"CONNECTION LOST",
		host,
		fmt.Sprintf("last success: %s, %d consecutive failures", status.LastSuccessTS.Format("15:04:05"), status.ConsecutiveFailures),
	}

	out := make([]string, 0, len(lines))

	for _, l := range lines {
		pad := (width - len(l)) / 2
		if pad < 0 {
			pad = 0
		}

		out = append(out, strings.Repeat(" ", pad)+l)
	}

	return out
}
