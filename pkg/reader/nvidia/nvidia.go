// Package nvidia implements the NVIDIA device reader via `nvidia-smi -q
// -x` (spec §4.A.1). It deliberately shells out rather than linking NVML so
// the binary has no CUDA runtime dependency, matching the teacher's "avoid
// having build issues if we use nvml go bindings" rationale
// (pkg/collector/nvidia_gpus.go) extended from job-mapping to full telemetry.
package nvidia

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/all-smi/all-smi/internal/osexec"
	"github.com/all-smi/all-smi/pkg/reader"
	"github.com/all-smi/all-smi/pkg/types"
)

const notificationReason = "nvidia_smi_init_failed"

func init() {
	reader.RegisterProbe(func(logger *slog.Logger, n reader.Notifier) (reader.DeviceReader, bool) {
		path := defaultSMIPath
		if _, err := os.Stat(path); err != nil {
			return nil, false
		}

		r := New(path, logger, n)
		if _, err := r.query(); err != nil {
			n.Warning(notificationReason, fmt.Sprintf("nvidia-smi present but query failed: %v", err))

			return nil, false
		}

		return r, true
	})
}

var defaultSMIPath = "/usr/bin/nvidia-smi"

// staticInfo is memoised per device UUID on first successful query, per
// spec §4.A.1 ("static per-device details ... fetched exactly once").
type staticInfo struct {
	arch       string
	pciGen     string
	pciWidth   string
	driverVer  string
	cudaVer    string
	vbios      string
	eccState   string
	migState   string
	powerLimit string
}

// Reader implements reader.DeviceReader for NVIDIA GPUs via nvidia-smi.
type Reader struct {
	smiPath string
	logger  *slog.Logger
	notify  reader.Notifier

	mu     sync.Mutex
	static map[string]*staticInfo // keyed by UUID
}

// New returns an NVIDIA reader that shells out to smiPath.
func New(smiPath string, logger *slog.Logger, n reader.Notifier) *Reader {
	return &Reader{
		smiPath: smiPath,
		logger:  logger,
		notify:  n,
		static:  make(map[string]*staticInfo),
	}
}

// Name implements reader.DeviceReader.
func (r *Reader) Name() string { return "nvidia" }

// Close implements reader.DeviceReader. nvidia-smi is invoked per call, so
// there is no handle to release.
func (r *Reader) Close() error { return nil }

// nvidiaSMILog mirrors the subset of `nvidia-smi -q -x` this reader
// consumes.
type nvidiaSMILog struct {
	XMLName     xml.Name `xml:"nvidia_smi_log"`
	DriverVer   string   `xml:"driver_version"`
	CUDAVer     string   `xml:"cuda_version"`
	GPUs        []smiGPU `xml:"gpu"`
}

type smiGPU struct {
	ID            string      `xml:"id,attr"`
	ProductName   string      `xml:"product_name"`
	ProductArch   string      `xml:"product_architecture"`
	UUID          string      `xml:"uuid"`
	VBIOSVersion  string      `xml:"vbios_version"`
	PCI           smiPCI      `xml:"pci"`
	FanSpeed      string      `xml:"fan_speed"`
	Temperature   smiTemp     `xml:"temperature"`
	Utilization   smiUtil     `xml:"utilization"`
	FBMemory      smiMemory   `xml:"fb_memory_usage"`
	PowerReadings smiPower    `xml:"gpu_power_readings"`
	Clocks        smiClocks   `xml:"clocks"`
	MaxClocks     smiClocks   `xml:"max_clocks"`
	EccErrors     smiECC      `xml:"ecc_mode"`
	MIGMode       smiMIGMode  `xml:"mig_mode"`
	Processes     smiProcs    `xml:"processes"`
}

type smiPCI struct {
	PCIGPULinkInfo smiPCILinkInfo `xml:"pci_gpu_link_info"`
}

type smiPCILinkInfo struct {
	PCIeGen   smiPCIeGen   `xml:"pcie_gen"`
	LinkWidth smiLinkWidth `xml:"link_widths"`
}

type smiPCIeGen struct {
	CurrentGen string `xml:"current_link_gen"`
}

type smiLinkWidth struct {
	CurrentWidth string `xml:"current_link_width"`
}

type smiTemp struct {
	GPUTemp string `xml:"gpu_temp"`
}

type smiUtil struct {
	GPUUtil string `xml:"gpu_util"`
}

type smiMemory struct {
	Total string `xml:"total"`
	Used  string `xml:"used"`
}

type smiPower struct {
	PowerDraw string `xml:"power_draw"`
}

type smiClocks struct {
	GraphicsClock string `xml:"graphics_clock"`
}

type smiECC struct {
	CurrentECC string `xml:"current_ecc"`
}

type smiMIGMode struct {
	CurrentMIG string `xml:"current_mig"`
}

type smiProcs struct {
	ProcessInfo []smiProcessInfo `xml:"process_info"`
}

type smiProcessInfo struct {
	PID       string `xml:"pid"`
	UsedMem   string `xml:"used_memory"`
}

func (r *Reader) query() (*nvidiaSMILog, error) {
	out, err := osexec.Execute(r.smiPath, []string{"-q", "-x"}, nil)
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi query failed: %w", err)
	}

	var log nvidiaSMILog
	if err := xml.Unmarshal(out, &log); err != nil {
		return nil, fmt.Errorf("failed to parse nvidia-smi xml output: %w", err)
	}

	return &log, nil
}

// GetDeviceInfo implements reader.DeviceReader.
func (r *Reader) GetDeviceInfo() ([]types.DeviceSample, error) {
	log, err := r.query()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	samples := make([]types.DeviceSample, 0, len(log.GPUs))

	for idx, g := range log.GPUs {
		static, ok := r.static[g.UUID]
		if !ok {
			static = &staticInfo{
				arch:      g.ProductArch,
				pciGen:    g.PCI.PCIGPULinkInfo.PCIeGen.CurrentGen,
				pciWidth:  g.PCI.PCIGPULinkInfo.LinkWidth.CurrentWidth,
				driverVer: log.DriverVer,
				cudaVer:   log.CUDAVer,
				vbios:     g.VBIOSVersion,
				eccState:  g.EccErrors.CurrentECC,
				migState:  g.MIGMode.CurrentMIG,
			}
			r.static[g.UUID] = static
		}

		sample := types.DeviceSample{
			UUID:           g.UUID,
			DeviceClass:    types.DeviceGPU,
			Name:           g.ProductName,
			Index:          idx,
			UtilizationPct: parsePct(g.Utilization.GPUUtil),
			TemperatureC:   parseFloatSuffix(g.Temperature.GPUTemp, "C"),
			UsedMemBytes:   parseMiBToBytes(g.FBMemory.Used),
			TotalMemBytes:  parseMiBToBytes(g.FBMemory.Total),
			FrequencyMHz:   parseFloatSuffix(g.Clocks.GraphicsClock, "MHz"),
			PowerW:         parseFloatSuffix(g.PowerReadings.PowerDraw, "W"),
			Detail: map[string]string{
				"architecture": static.arch,
				"pcie_gen":     static.pciGen,
				"pcie_width":   static.pciWidth,
				"driver":       static.driverVer,
				"cuda":         static.cudaVer,
				"vbios":        static.vbios,
				"ecc_state":    static.eccState,
				"mig_state":    static.migState,
			},
		}

		samples = append(samples, sample)
	}

	return samples, nil
}

// GetProcessInfo implements reader.DeviceReader.
func (r *Reader) GetProcessInfo() ([]types.ProcessSample, error) {
	log, err := r.query()
	if err != nil {
		return nil, err
	}

	var procs []types.ProcessSample

	for idx, g := range log.GPUs {
		for _, p := range g.Processes.ProcessInfo {
			pid, _ := strconv.Atoi(strings.TrimSpace(p.PID))

			procs = append(procs, types.ProcessSample{
				PID:            pid,
				UsesGPU:        true,
				DeviceUUID:     g.UUID,
				DeviceID:       strconv.Itoa(idx),
				GPUMemoryBytes: parseMiBToBytes(p.UsedMem),
			})
		}
	}

	return procs, nil
}

func parsePct(s string) float64 {
	return parseFloatSuffix(s, "%")
}

func parseFloatSuffix(s, suffix string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, suffix)
	s = strings.TrimSpace(s)

	if s == "" || s == "N/A" {
		return 0
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}

	return v
}

func parseMiBToBytes(s string) uint64 {
	v := parseFloatSuffix(s, "MiB")
	if v == 0 {
		return 0
	}

	return uint64(v * 1024 * 1024)
}
