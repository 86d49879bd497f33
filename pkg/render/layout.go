package render

import "github.com/all-smi/all-smi/pkg/types"

const (
	headerLines      = 3
	footerLines      = 1
	deviceBaseHeight = 2 // identity line + gauge row
	coresPerLine     = 8
	barWidth         = 28
)

// Layout is the deterministic, terminal-size-and-view-state-derived geometry
// the renderer composes a frame against (spec §4.G).
type Layout struct {
	Width, Height int

	ContentStartRow int
	ContentRows     int

	MaxGPUItems    int
	DeviceHeight   int

	StorageStartRow int
	StorageRows     int

	ProcessStartRow int
	ProcessRows     int
}

// ComputeLayout derives a Layout from terminal dimensions and view state.
func ComputeLayout(width, height int, view types.ViewState, cpuCoreCount int) Layout {
	l := Layout{Width: width, Height: height}

	l.ContentStartRow = headerLines
	l.ContentRows = height - headerLines - footerLines
	if l.ContentRows < 0 {
		l.ContentRows = 0
	}

	l.DeviceHeight = deviceBaseHeight
	if view.ShowPerCoreCPU && cpuCoreCount > 0 {
		l.DeviceHeight += ceilDiv(cpuCoreCount, coresPerLine)
	}

	if l.DeviceHeight > 0 {
		l.MaxGPUItems = l.ContentRows / l.DeviceHeight
	}

	// Storage gets a third of all content rows and processes get the rest;
	// neither count subtracts the rows GPU devices use. Exact proportions
	// are a display choice, not a measurement.
	remaining := l.ContentRows
	l.StorageStartRow = l.ContentStartRow
	l.StorageRows = remaining / 3
	l.ProcessStartRow = l.StorageStartRow + l.StorageRows
	l.ProcessRows = remaining - l.StorageRows

	return l
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}

	return (a + b - 1) / b
}
