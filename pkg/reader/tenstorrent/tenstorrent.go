// Package tenstorrent implements the Tenstorrent NPU device reader via
// `tt-smi -s --snapshot_no_tty`'s JSON snapshot mode (spec §4.A.5).
// Tenstorrent hardware reports no direct utilization metric, so this
// reader estimates it from current power draw against a board-specific TDP
// lookup table, the same proxy the original implementation uses.
package tenstorrent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/all-smi/all-smi/internal/osexec"
	"github.com/all-smi/all-smi/pkg/reader"
	"github.com/all-smi/all-smi/pkg/types"
)

const notificationReason = "tt_smi_query_failed"

func init() {
	reader.RegisterProbe(func(logger *slog.Logger, n reader.Notifier) (reader.DeviceReader, bool) {
		r := New(logger, n)
		if _, err := r.query(); err != nil {
			return nil, false
		}

		return r, true
	})
}

type ttSmiOutput struct {
	DeviceInfo []ttDeviceInfo `json:"device_info"`
}

type ttDeviceInfo struct {
	BoardInfo ttBoardInfo `json:"board_info"`
	Telemetry ttTelemetry `json:"telemetry"`
	Limits    *ttLimits   `json:"limits"`
}

type ttBoardInfo struct {
	BusID       string `json:"bus_id"`
	BoardType   string `json:"board_type"`
	BoardID     string `json:"board_id"`
	Coords      string `json:"coords"`
	DRAMStatus  string `json:"dram_status"`
	DRAMSpeed   string `json:"dram_speed"`
	PCIeSpeed   string `json:"pcie_speed"`
	PCIeWidth   string `json:"pcie_width"`
}

type ttTelemetry struct {
	Voltage         string `json:"voltage"`
	Current         string `json:"current"`
	AICLK           string `json:"aiclk"`
	Power           string `json:"power"`
	ASICTemperature string `json:"asic_temperature"`
	Heartbeat       string `json:"heartbeat"`
}

type ttLimits struct {
	TDPLimit string `json:"tdp_limit"`
}

// boardTDP is the per-board-type thermal design power lookup used when
// tt-smi does not report a tdp_limit.
var boardTDP = map[string]float64{
	"e75": 75, "e150": 75, "e300": 100,
	"n150": 150, "n300 L": 160, "n300 R": 160, "nb_cb": 150, "wh_4u": 200,
	"p100a": 300, "p150a": 350, "p150b": 350,
}

var boardMemoryBytes = map[string]uint64{
	"e75": 16 << 30, "e150": 32 << 30, "e300": 48 << 30,
	"n150": 32 << 30, "n300 L": 64 << 30, "n300 R": 64 << 30, "nb_cb": 32 << 30, "wh_4u": 96 << 30,
	"p100a": 96 << 30, "p150a": 144 << 30, "p150b": 144 << 30,
}

var boardDisplayName = map[string]string{
	"e150": "Tenstorrent Grayskull e150", "e300": "Tenstorrent Grayskull e300", "e75": "Tenstorrent Grayskull e75",
	"n300 L": "Tenstorrent Wormhole n300", "n300 R": "Tenstorrent Wormhole n300", "n150": "Tenstorrent Wormhole n150",
	"nb_cb": "Tenstorrent Wormhole NB CB", "wh_4u": "Tenstorrent Wormhole 4U",
	"p100a": "Tenstorrent Blackhole p100a", "p150a": "Tenstorrent Blackhole p150a", "p150b": "Tenstorrent Blackhole p150b",
}

const defaultTDP = 150.0

// Reader implements reader.DeviceReader for Tenstorrent NPUs via tt-smi.
type Reader struct {
	logger *slog.Logger
	notify reader.Notifier

	mu sync.Mutex
}

// New returns a Tenstorrent reader.
func New(logger *slog.Logger, n reader.Notifier) *Reader {
	return &Reader{logger: logger, notify: n}
}

// Name implements reader.DeviceReader.
func (r *Reader) Name() string { return "tenstorrent" }

// Close implements reader.DeviceReader.
func (r *Reader) Close() error { return nil }

func (r *Reader) query() (*ttSmiOutput, error) {
	out, err := osexec.ExecuteWithTimeout("tt-smi", []string{"-s", "--snapshot_no_tty"}, 5, nil)
	if err != nil {
		return nil, fmt.Errorf("tt-smi query failed: %w", err)
	}

	var parsed ttSmiOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse tt-smi json output: %w", err)
	}

	return &parsed, nil
}

func boardTDPWatts(boardType string) float64 {
	if v, ok := boardTDP[boardType]; ok {
		return v
	}

	return defaultTDP
}

// GetDeviceInfo implements reader.DeviceReader.
func (r *Reader) GetDeviceInfo() ([]types.DeviceSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out, err := r.query()
	if err != nil {
		r.notify.Warning(notificationReason, err.Error())

		return nil, fmt.Errorf("%w: %w", reader.ErrNoData, err)
	}

	samples := make([]types.DeviceSample, 0, len(out.DeviceInfo))

	for idx, d := range out.DeviceInfo {
		temp, _ := strconv.ParseFloat(d.Telemetry.ASICTemperature, 64)
		power, _ := strconv.ParseFloat(d.Telemetry.Power, 64)
		freq, _ := strconv.ParseFloat(d.Telemetry.AICLK, 64)

		tdp := boardTDPWatts(d.BoardInfo.BoardType)
		if d.Limits != nil && d.Limits.TDPLimit != "" {
			if v, err := strconv.ParseFloat(d.Limits.TDPLimit, 64); err == nil && v > 0 {
				tdp = v
			}
		}

		util := 0.0
		if tdp > 0 {
			util = min(100.0, (power/tdp)*100.0)
		}

		total := boardMemoryBytes[d.BoardInfo.BoardType]

		var used uint64

		if strings.EqualFold(d.BoardInfo.DRAMStatus, "Y") && total > 0 {
			factor := 0.1

			switch {
			case power > 50:
				factor = 0.7
			case power > 20:
				factor = 0.4
			case power > 5:
				factor = 0.2
			}

			used = uint64(float64(total) * factor)
		}

		name, ok := boardDisplayName[d.BoardInfo.BoardType]
		if !ok {
			name = "Tenstorrent Unknown"
		}

		samples = append(samples, types.DeviceSample{
			UUID:           d.BoardInfo.BoardID,
			DeviceClass:    types.DeviceNPU,
			Name:           name,
			Index:          idx,
			UtilizationPct: util,
			TemperatureC:   temp,
			UsedMemBytes:   used,
			TotalMemBytes:  total,
			FrequencyMHz:   freq,
			PowerW:         power,
			Detail: map[string]string{
				"board_type":  d.BoardInfo.BoardType,
				"bus_id":      d.BoardInfo.BusID,
				"coords":      d.BoardInfo.Coords,
				"dram_status": d.BoardInfo.DRAMStatus,
				"dram_speed":  d.BoardInfo.DRAMSpeed,
				"pcie_speed":  "Gen" + d.BoardInfo.PCIeSpeed,
				"pcie_width":  "x" + d.BoardInfo.PCIeWidth,
				"voltage":     d.Telemetry.Voltage,
				"current":     d.Telemetry.Current,
				"heartbeat":   d.Telemetry.Heartbeat,
			},
		})
	}

	return samples, nil
}

// GetProcessInfo implements reader.DeviceReader. tt-smi exposes no
// per-process residency in snapshot mode.
func (r *Reader) GetProcessInfo() ([]types.ProcessSample, error) {
	return nil, nil
}
