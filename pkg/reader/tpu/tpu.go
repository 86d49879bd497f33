// Package tpu implements the Google TPU device reader (spec §4.A.4):
// devices are discovered once via sysfs/vfio/environment, then sampled each
// tick through the `tpu-info` CLI's JSON metrics output.
package tpu

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/all-smi/all-smi/internal/osexec"
	"github.com/all-smi/all-smi/pkg/reader"
	"github.com/all-smi/all-smi/pkg/types"
)

const notificationReason = "tpu_info_query_failed"

func init() {
	reader.RegisterProbe(func(logger *slog.Logger, n reader.Notifier) (reader.DeviceReader, bool) {
		devs := discover()
		if len(devs) == 0 {
			return nil, false
		}

		return New(devs, logger, n), true
	})
}

// cliMetric is one row of `tpu-info --metrics-format json` output.
type cliMetric struct {
	DeviceIndex           uint32  `json:"device_index"`
	DutyCyclePct          float64 `json:"duty_cycle_percent"`
	TensorcoreUtilization float64 `json:"tensorcore_utilization"`
	HBMUsageBytes         uint64  `json:"hbm_usage"`
	MemoryTotalBytes      uint64  `json:"memory_total"`
	PowerUsageW           float64 `json:"power_usage"`
}

// Reader implements reader.DeviceReader for Google TPUs via the tpu-info
// CLI, with device metadata discovered once and cached.
type Reader struct {
	devices []deviceMeta
	logger  *slog.Logger
	notify  reader.Notifier

	mu sync.Mutex
}

// New returns a TPU reader over the given, already-discovered devices.
func New(devices []deviceMeta, logger *slog.Logger, n reader.Notifier) *Reader {
	return &Reader{devices: devices, logger: logger, notify: n}
}

// Name implements reader.DeviceReader.
func (r *Reader) Name() string { return "tpu" }

// Close implements reader.DeviceReader.
func (r *Reader) Close() error { return nil }

func (r *Reader) queryMetrics() (map[uint32]cliMetric, error) {
	out, err := osexec.ExecuteWithTimeout("tpu-info", []string{"--metrics-format", "json"}, 5, nil)
	if err != nil {
		return nil, fmt.Errorf("tpu-info metrics query failed: %w", err)
	}

	var rows []cliMetric
	if err := json.Unmarshal(out, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse tpu-info json output: %w", err)
	}

	byIdx := make(map[uint32]cliMetric, len(rows))
	for _, row := range rows {
		byIdx[row.DeviceIndex] = row
	}

	return byIdx, nil
}

// GetDeviceInfo implements reader.DeviceReader.
func (r *Reader) GetDeviceInfo() ([]types.DeviceSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics, err := r.queryMetrics()
	if err != nil {
		// Metrics are best-effort: devices were already discovered via
		// sysfs/vfio/env, so report them with zeroed dynamic fields rather
		// than dropping them entirely.
		r.notify.Warning(notificationReason, err.Error())
		metrics = map[uint32]cliMetric{}
	}

	samples := make([]types.DeviceSample, 0, len(r.devices))

	for _, d := range r.devices {
		gen := GenerationFromChipVersion(d.chipVersion)
		m := metrics[d.index]

		total := d.memoryTotal
		if m.MemoryTotalBytes > 0 {
			total = m.MemoryTotalBytes
		}

		util := m.DutyCyclePct
		if util == 0 && m.TensorcoreUtilization > 0 {
			util = m.TensorcoreUtilization
		}

		var tensorcorePct *float64
		if m.TensorcoreUtilization > 0 {
			v := m.TensorcoreUtilization
			tensorcorePct = &v
		}

		samples = append(samples, types.DeviceSample{
			UUID:           d.uuid,
			DeviceClass:    types.DeviceTPU,
			Name:           gen.DisplayName(),
			Index:          int(d.index),
			UtilizationPct: util,
			UsedMemBytes:   m.HBMUsageBytes,
			TotalMemBytes:  total,
			PowerW:         m.PowerUsageW,
			TensorCorePct:  tensorcorePct,
			Detail: map[string]string{
				"chip_version":     d.chipVersion,
				"accelerator_type": d.acceleratorType,
				"core_count":       strconv.Itoa(int(d.coreCount)),
				"tensorcore_count": strconv.Itoa(gen.TensorCores()),
				"memory_type":      gen.MemoryType(),
				"discovery_source": d.source,
				"lib_name":         "libtpu",
			},
		})
	}

	return samples, nil
}

// GetProcessInfo implements reader.DeviceReader. Per-process TPU residency
// requires integration with cloud-tpu-diagnostics not available via the
// CLI, so no process samples are contributed.
func (r *Reader) GetProcessInfo() ([]types.ProcessSample, error) {
	return nil, nil
}
