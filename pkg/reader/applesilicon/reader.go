//go:build darwin

package applesilicon

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/all-smi/all-smi/internal/osexec"
	"github.com/all-smi/all-smi/pkg/reader"
	"github.com/all-smi/all-smi/pkg/types"
)

const notificationReason = "applesilicon_sampler_init_failed"

// deviceNamespace scopes the synthetic UUID assigned to the one integrated
// GPU Apple silicon exposes; there is no vendor UUID to read.
var deviceNamespace = uuid.MustParse("c9c918d0-6e6a-4f0b-8f7b-8f6a2a2f8e5e")

func init() {
	reader.RegisterProbe(func(logger *slog.Logger, n reader.Notifier) (reader.DeviceReader, bool) {
		if runtime.GOOS != "darwin" || runtime.GOARCH != "arm64" {
			return nil, false
		}

		mgr, err := NewSamplerManager(logger.With("component", "powermetrics_manager"))
		if err != nil {
			n.Warning(notificationReason, fmt.Sprintf("failed to start powermetrics sampler: %v", err))

			return nil, false
		}

		chip, err := queryChipInfo()
		if err != nil {
			logger.Warn("failed to query static chip info, continuing with defaults", "err", err)
		}

		hostname, _ := os.Hostname()
		gpuUUID := uuid.NewSHA1(deviceNamespace, []byte(hostname+"/"+chip.name)).String()

		return &Reader{manager: mgr, chip: chip, logger: logger, uuid: gpuUUID}, true
	})
}

// chipInfo is the static platform-info block, fetched once and cached for
// the process lifetime (spec §4.A.2).
type chipInfo struct {
	name       string
	pCores     int
	eCores     int
	gpuCores   int
}

// queryChipInfo fetches the combined platform-info via `sysctl`, a single
// call cached for the process lifetime per spec.
func queryChipInfo() (chipInfo, error) {
	out, err := osexec.Execute("sysctl", []string{
		"-n", "machdep.cpu.brand_string",
		"hw.perflevel0.physicalcpu", "hw.perflevel1.physicalcpu",
	}, nil)
	if err != nil {
		return chipInfo{}, err
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")

	ci := chipInfo{name: "Apple Silicon"}
	if len(lines) > 0 {
		ci.name = strings.TrimSpace(lines[0])
	}

	if len(lines) > 1 {
		ci.pCores, _ = strconv.Atoi(strings.TrimSpace(lines[1]))
	}

	if len(lines) > 2 {
		ci.eCores, _ = strconv.Atoi(strings.TrimSpace(lines[2]))
	}

	return ci, nil
}

// Reader implements reader.DeviceReader for the Apple-silicon integrated
// GPU/ANE, sourced from the shared SamplerManager.
type Reader struct {
	manager *SamplerManager
	chip    chipInfo
	logger  *slog.Logger

	mu   sync.Mutex
	uuid string
}

// Name implements reader.DeviceReader.
func (r *Reader) Name() string { return "applesilicon" }

// Close implements reader.DeviceReader; stops the owned sampler manager.
func (r *Reader) Close() error {
	return r.manager.Stop()
}

// GetDeviceInfo implements reader.DeviceReader.
func (r *Reader) GetDeviceInfo() ([]types.DeviceSample, error) {
	section, err := r.manager.LatestSection()
	if err != nil {
		// Sampler gap (e.g. restarting): report no data this tick rather
		// than a stale or zeroed sample, per spec scenario 4.
		return nil, fmt.Errorf("%w: %w", reader.ErrNoData, err)
	}

	s := parseSection(section)

	ane := s.anePowerMW / 1000.0

	sample := types.DeviceSample{
		UUID:           r.uuid,
		DeviceClass:    types.DeviceGPU,
		Name:           r.chip.name,
		Index:          0,
		UtilizationPct: s.gpuActive,
		PowerW:         s.gpuPowerMW / 1000.0,
		ANEWatts:       &ane,
		Detail: map[string]string{
			"p_cores": strconv.Itoa(r.chip.pCores),
			"e_cores": strconv.Itoa(r.chip.eCores),
		},
	}

	return []types.DeviceSample{sample}, nil
}

// GetProcessInfo implements reader.DeviceReader.
func (r *Reader) GetProcessInfo() ([]types.ProcessSample, error) {
	section, err := r.manager.LatestSection()
	if err != nil {
		return nil, nil
	}

	entries := parseProcessGPU(section)
	procs := make([]types.ProcessSample, 0, len(entries))

	for _, e := range entries {
		procs = append(procs, types.ProcessSample{
			PID:               e.PID,
			UsesGPU:           true,
			DeviceUUID:        r.uuid,
			GPUUtilizationPct: e.GPUMs,
		})
	}

	return procs, nil
}

// CPUGauges returns the cluster-level dynamic gauges for the host CPU
// reader to merge into CpuSample.AppleSilicon (spec §3 "optional Apple
// silicon block").
func (r *Reader) CPUGauges() (pClusterMHz, eClusterMHz, pActive, eActive float64, ok bool) {
	section, err := r.manager.LatestSection()
	if err != nil {
		return 0, 0, 0, 0, false
	}

	s := parseSection(section)

	return s.pClusterMHz, s.eClusterMHz, s.pClusterActive, s.eClusterActive, true
}
