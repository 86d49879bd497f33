// Package hostcpu implements the host CPU reader (spec §4.A.7): per-tick
// utilization is derived from the delta between successive /proc/stat
// samples via prometheus/procfs, the same source and jump-back handling
// the teacher's CPU collector uses (pkg/collector/cpu.go), adapted from a
// cumulative-seconds Prometheus counter to a direct percentage gauge.
package hostcpu

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/prometheus/procfs"

	"github.com/all-smi/all-smi/pkg/types"
)

// Reader samples host-wide and per-core CPU utilization from procfs.
type Reader struct {
	fs procfs.FS

	mu       sync.Mutex
	prevCPU  procfs.CPUStat
	prevCore []procfs.CPUStat
	hasPrev  bool

	model   string
	sockets int
	cores   uint
	threads uint

	// appleGauges optionally supplies P/E-cluster dynamic gauges from the
	// Apple-silicon sampler (set by the collector on darwin/arm64 hosts).
	appleGauges func() (pMHz, eMHz, pActive, eActive float64, ok bool)
	pCores      int
	eCores      int
	gpuCores    int

	baseMHz float64
}

// New opens procfs at mountPoint and caches static CPU info.
func New(mountPoint, sysPath string) (*Reader, error) {
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs: %w", err)
	}

	r := &Reader{fs: fs, baseMHz: baseFrequencyMHz(sysPath)}

	info, err := fs.CPUInfo()
	if err == nil && len(info) > 0 {
		r.model = strings.TrimSpace(info[0].ModelName)

		sockets := make(map[string]struct{})
		for _, c := range info {
			sockets[c.PhysicalID] = struct{}{}
			r.threads++
		}

		r.sockets = len(sockets)
		if r.sockets == 0 {
			r.sockets = 1
		}

		r.cores = r.threads / uint(max(r.sockets, 1))
		if r.cores == 0 {
			r.cores = r.threads
		}
	}

	return r, nil
}

// SetAppleGauges wires in the Apple-silicon sampler's dynamic P/E-cluster
// gauges, merged into Sample's AppleSilicon block.
func (r *Reader) SetAppleGauges(pCores, eCores, gpuCores int, fn func() (pMHz, eMHz, pActive, eActive float64, ok bool)) {
	r.pCores, r.eCores, r.gpuCores = pCores, eCores, gpuCores
	r.appleGauges = fn
}

// Sample returns one CpuSample, with UtilizationPct computed from the
// delta against the previous call (zero on the first call).
func (r *Reader) Sample(hostID, hostname, instance string) (types.CpuSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stat, err := r.fs.Stat()
	if err != nil {
		return types.CpuSample{}, fmt.Errorf("failed to read /proc/stat: %w", err)
	}

	sample := types.CpuSample{
		HostID:        hostID,
		Hostname:      hostname,
		Instance:      instance,
		Model:         r.model,
		Architecture:  runtime.GOARCH,
		SocketCount:   r.sockets,
		TotalCores:    int(r.cores),
		TotalThreads:  int(r.threads),
		BaseMHz:       r.baseMHz,
	}

	if r.hasPrev {
		sample.UtilizationPct = utilPct(r.prevCPU, stat.CPUTotal)
		sample.PerCore = perCoreGauges(r.prevCore, stat.CPU)
	}

	r.prevCPU = stat.CPUTotal
	r.prevCore = stat.CPU
	r.hasPrev = true

	if r.appleGauges != nil {
		if pMHz, eMHz, pAct, eAct, ok := r.appleGauges(); ok {
			sample.AppleSilicon = &types.AppleSiliconCPU{
				PCoreCount: r.pCores,
				ECoreCount: r.eCores,
				GPUCores:   r.gpuCores,
				PUtilPct:   pAct,
				EUtilPct:   eAct,
			}
			p, e := pMHz, eMHz
			sample.AppleSilicon.PClusterMHz = &p
			sample.AppleSilicon.EClusterMHz = &e
		}
	}

	return sample, nil
}

func busy(s procfs.CPUStat) float64 {
	return s.User + s.Nice + s.System + s.IRQ + s.SoftIRQ + s.Steal
}

func total(s procfs.CPUStat) float64 {
	return busy(s) + s.Idle + s.Iowait
}

func utilPct(prev, cur procfs.CPUStat) float64 {
	dBusy := busy(cur) - busy(prev)
	dTotal := total(cur) - total(prev)

	if dTotal <= 0 || dBusy < 0 {
		return 0
	}

	return min(100.0, (dBusy/dTotal)*100.0)
}

func perCoreGauges(prev, cur []procfs.CPUStat) []types.CoreGauge {
	gauges := make([]types.CoreGauge, 0, len(cur))

	for i, c := range cur {
		var p procfs.CPUStat
		if i < len(prev) {
			p = prev[i]
		}

		gauges = append(gauges, types.CoreGauge{CoreID: i, UtilizationPct: utilPct(p, c)})
	}

	return gauges
}

// baseFrequencyMHz reads /sys/devices/system/cpu/cpu0/cpufreq/base_frequency
// when present, falling back to 0 ("unknown") otherwise.
func baseFrequencyMHz(sysPath string) float64 {
	data, err := os.ReadFile(sysPath + "/devices/system/cpu/cpu0/cpufreq/base_frequency")
	if err != nil {
		return 0
	}

	var khz float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(data)), "%f", &khz); err != nil {
		return 0
	}

	return khz / 1000.0
}
