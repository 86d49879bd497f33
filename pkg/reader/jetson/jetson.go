// Package jetson implements the NVIDIA Jetson device reader. Jetson parts
// are detected via the device-tree compatible string (spec §4.A "device-tree
// compatible string contains tegra") and sampled with a single-shot
// `tegrastats` invocation rather than NVML, since Jetson's integrated GPU is
// not NVML-addressable.
package jetson

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/all-smi/all-smi/internal/osexec"
	"github.com/all-smi/all-smi/pkg/reader"
	"github.com/all-smi/all-smi/pkg/types"
)

// deviceNamespace scopes the synthetic UUIDs this package generates for
// integrated GPUs that have no vendor-assigned UUID of their own.
var deviceNamespace = uuid.MustParse("c9c918d0-6e6a-4f0b-8f7b-8f6a2a2f8e5e")

const (
	compatiblePath     = "/proc/device-tree/compatible"
	notificationReason = "jetson_tegrastats_failed"
	defaultTegrastats  = "/usr/bin/tegrastats"
)

func init() {
	reader.RegisterProbe(func(logger *slog.Logger, n reader.Notifier) (reader.DeviceReader, bool) {
		if !isTegra() {
			return nil, false
		}

		return New(defaultTegrastats, chipModel(), logger, n), true
	})
}

func isTegra() bool {
	data, err := os.ReadFile(compatiblePath)
	if err != nil {
		return false
	}

	return strings.Contains(strings.ToLower(string(data)), "tegra")
}

func chipModel() string {
	data, err := os.ReadFile("/proc/device-tree/model")
	if err != nil {
		return "NVIDIA Jetson"
	}

	return strings.Trim(strings.TrimRight(string(data), "\x00"), " \n")
}

// Reader implements reader.DeviceReader for a Jetson SoC's integrated GPU.
type Reader struct {
	tegrastatsPath string
	model          string
	logger         *slog.Logger
	notify         reader.Notifier

	mu   sync.Mutex
	uuid string // synthesized once; Jetson has exactly one integrated GPU
}

// New returns a Jetson reader invoking tegrastatsPath.
func New(tegrastatsPath, model string, logger *slog.Logger, n reader.Notifier) *Reader {
	hostname, _ := os.Hostname()
	synthUUID := uuid.NewSHA1(deviceNamespace, []byte(hostname+"/"+model)).String()

	return &Reader{tegrastatsPath: tegrastatsPath, model: model, logger: logger, notify: n, uuid: synthUUID}
}

// Name implements reader.DeviceReader.
func (r *Reader) Name() string { return "jetson" }

// Close implements reader.DeviceReader.
func (r *Reader) Close() error { return nil }

var (
	ramRegex  = regexp.MustCompile(`RAM (\d+)/(\d+)MB`)
	gr3dRegex = regexp.MustCompile(`GR3D_FREQ (\d+)%(?:@(\d+))?`)
	gpuTRegex = regexp.MustCompile(`GPU@(-?[\d.]+)C`)
	vddRegex  = regexp.MustCompile(`VDD_(?:GPU_SOC|CPU_GPU_CV) (\d+)mW`)
)

// GetDeviceInfo implements reader.DeviceReader by parsing one line of
// `tegrastats --interval 500 --count 1` output.
func (r *Reader) GetDeviceInfo() ([]types.DeviceSample, error) {
	out, err := osexec.ExecuteWithTimeout(r.tegrastatsPath, []string{"--interval", "500", "--count", "1"}, 5, nil)
	if err != nil {
		r.notify.Warning(notificationReason, fmt.Sprintf("tegrastats failed: %v", err))

		return nil, fmt.Errorf("%w: tegrastats failed: %w", reader.ErrNoData, err)
	}

	line := strings.TrimSpace(string(out))

	sample := types.DeviceSample{
		UUID:        r.uuid,
		DeviceClass: types.DeviceGPU,
		Name:        r.model,
		Index:       0,
		Detail:      map[string]string{"integrated": "true"},
	}

	if m := ramRegex.FindStringSubmatch(line); m != nil {
		used, _ := strconv.ParseFloat(m[1], 64)
		total, _ := strconv.ParseFloat(m[2], 64)
		sample.UsedMemBytes = uint64(used * 1024 * 1024)
		sample.TotalMemBytes = uint64(total * 1024 * 1024)
	}

	if m := gr3dRegex.FindStringSubmatch(line); m != nil {
		util, _ := strconv.ParseFloat(m[1], 64)
		sample.UtilizationPct = util

		if m[2] != "" {
			freq, _ := strconv.ParseFloat(m[2], 64)
			sample.FrequencyMHz = freq
		}
	}

	if m := gpuTRegex.FindStringSubmatch(line); m != nil {
		temp, _ := strconv.ParseFloat(m[1], 64)
		sample.TemperatureC = temp
	}

	if m := vddRegex.FindStringSubmatch(line); m != nil {
		mw, _ := strconv.ParseFloat(m[1], 64)
		sample.PowerW = mw / 1000.0
	}

	return []types.DeviceSample{sample}, nil
}

// GetProcessInfo implements reader.DeviceReader. tegrastats exposes no
// per-process GPU residency, so Jetson contributes none.
func (r *Reader) GetProcessInfo() ([]types.ProcessSample, error) {
	return nil, nil
}
