package render

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/all-smi/all-smi/pkg/snapshot"
	"github.com/all-smi/all-smi/pkg/types"
)

var (
	tabActiveStyle   = tcell.StyleDefault.Bold(true).Underline(true)
	tabInactiveStyle = tcell.StyleDefault
	headerStyle      = tcell.StyleDefault.Bold(true)
)

// Compose builds one virtual Frame from the current snapshot, terminal size
// and CPU core count (for per-core layout).
func Compose(snap snapshot.Snapshot, notifications []types.Notification, width, height, cpuCoreCount int, clusterHistory []types.HistoryPoint) *Frame {
	layout := ComputeLayout(width, height, snap.View, cpuCoreCount)
	frame := NewFrame(width, height)

	drawTabs(frame, snap.View, width)
	drawSparklines(frame, clusterHistory, width)

	currentHost := ""
	if snap.View.CurrentTab > 0 && snap.View.CurrentTab < len(snap.View.Tabs) {
		currentHost = snap.View.Tabs[snap.View.CurrentTab]
	}

	if currentHost != "" {
		if cs, ok := snap.ConnStatus[currentHost]; ok && !cs.IsConnected {
			drawDisconnectionBox(frame, currentHost, cs, layout)

			drawFooter(frame, notifications, width, height)

			return frame
		}
	}

	row := layout.ContentStartRow
	row = drawGPUs(frame, filterByHost(snap.GPUs, currentHost), layout, row)
	row = drawStorage(frame, filterStorageByHost(snap.Storage, currentHost), layout, row)
	drawProcesses(frame, snap.Processes, snap.View, layout, row)

	drawFooter(frame, notifications, width, height)

	return frame
}

func filterByHost(gpus []types.DeviceSample, host string) []types.DeviceSample {
	if host == "" {
		return gpus
	}

	out := gpus[:0:0]

	for _, g := range gpus {
		if g.HostID == host {
			out = append(out, g)
		}
	}

	return out
}

func filterStorageByHost(storage []types.StorageSample, host string) []types.StorageSample {
	if host == "" {
		return storage
	}

	out := storage[:0:0]

	for _, s := range storage {
		if s.HostID == host {
			out = append(out, s)
		}
	}

	return out
}

func drawTabs(frame *Frame, view types.ViewState, width int) {
	x := 0

	for i, tab := range view.Tabs {
		style := tabInactiveStyle
		if i == view.CurrentTab {
			style = tabActiveStyle
		}

		label := " " + tab + " "
		frame.WriteString(x, 0, label, style)
		x += len(label)

		if x >= width {
			break
		}
	}
}

func drawSparklines(frame *Frame, points []types.HistoryPoint, width int) {
	util := make([]float64, len(points))
	mem := make([]float64, len(points))
	temp := make([]float64, len(points))

	for i, p := range points {
		util[i] = p.UtilPct / 100.0
		mem[i] = p.MemPct / 100.0
		temp[i] = p.TempC / 100.0
	}

	sparkWidth := width - 10
	if sparkWidth < 1 {
		sparkWidth = 1
	}

	frame.WriteString(0, 1, "util "+sparkline(util, sparkWidth), tcell.StyleDefault)
	frame.WriteString(0, 2, "mem  "+sparkline(mem, sparkWidth), tcell.StyleDefault)
}

func drawGPUs(frame *Frame, gpus []types.DeviceSample, layout Layout, startRow int) int {
	row := startRow

	max := len(gpus)
	if layout.MaxGPUItems > 0 && max > layout.MaxGPUItems {
		max = layout.MaxGPUItems
	}

	for i := 0; i < max; i++ {
		g := gpus[i]

		identity := fmt.Sprintf("[%d] %s (%s)", g.Index, g.Name, g.UUID)
		frame.WriteString(0, row, identity, headerStyle)

		bar := Bar{Label: "util", Ratio: g.UtilizationPct / 100.0, Value: fmt.Sprintf("%.1f%%", g.UtilizationPct), Width: barWidth}
		frame.WriteCells(0, row+1, bar.Cells())

		row += layout.DeviceHeight
	}

	return row
}

func drawStorage(frame *Frame, storage []types.StorageSample, layout Layout, startRow int) int {
	row := startRow
	if row < layout.StorageStartRow {
		row = layout.StorageStartRow
	}

	end := row + layout.StorageRows

	for _, s := range storage {
		if row >= end {
			break
		}

		usedPct := 0.0
		if s.TotalBytes > 0 {
			usedPct = 100.0 * float64(s.TotalBytes-s.AvailableBytes) / float64(s.TotalBytes)
		}

		bar := Bar{Label: s.MountPoint, Ratio: usedPct / 100.0, Value: fmt.Sprintf("%.1f%%", usedPct), Width: barWidth}
		frame.WriteCells(0, row, bar.Cells())
		row++
	}

	return row
}

func drawProcesses(frame *Frame, procs []types.ProcessSample, view types.ViewState, layout Layout, startRow int) {
	row := startRow
	if row < layout.ProcessStartRow {
		row = layout.ProcessStartRow
	}

	end := row + layout.ProcessRows
	if end > frame.Height {
		end = frame.Height
	}

	header := fmt.Sprintf("%-8s %-20s %-10s %6s %6s", "PID", "COMMAND", "USER", "CPU%", "MEM%")
	if row < end {
		frame.WriteString(0, row, header, headerStyle)
		row++
	}

	start := view.ProcessStartIndex
	if start < 0 || start > len(procs) {
		start = 0
	}

	for i := start; i < len(procs) && row < end; i++ {
		p := procs[i]
		line := fmt.Sprintf("%-8d %-20s %-10s %6.1f %6.1f", p.PID, truncate(p.Command, 20), truncate(p.User, 10), p.CPUPct, p.MemPct)

		style := tcell.StyleDefault
		if i == view.SelectedProcessIndex {
			style = style.Reverse(true)
		}

		frame.WriteString(0, row, line, style)
		row++
	}
}

// truncate trims s to at most n terminal columns, counting wide (e.g. CJK)
// runes as two columns so process/user names with mixed-width characters
// don't overrun their field.
func truncate(s string, n int) string {
	if runewidth.StringWidth(s) <= n {
		return s
	}

	var b strings.Builder

	width := 0

	for _, r := range s {
		w := runewidth.RuneWidth(r)
		if width+w > n {
			break
		}

		b.WriteRune(r)

		width += w
	}

	return b.String()
}

func drawDisconnectionBox(frame *Frame, host string, status types.ConnectionStatus, layout Layout) {
	lines := DisconnectionBox(host, status, layout.Width, layout.ContentRows)
	row := layout.ContentStartRow + (layout.ContentRows-len(lines))/2

	for _, l := range lines {
		frame.WriteString(0, row, l, tcell.StyleDefault.Bold(true).Foreground(tcell.ColorRed))
		row++
	}
}

func drawFooter(frame *Frame, notifications []types.Notification, width, height int) {
	if len(notifications) == 0 {
		return
	}

	latest := notifications[len(notifications)-1]
	frame.WriteString(0, height-1, truncate(RenderNotification(latest.Reason, latest.Message), width), tcell.StyleDefault.Foreground(tcell.ColorYellow))
}
