// Package exposition implements the HTTP metrics server (spec §4.E): it
// serves the metric names the scrape parser accepts (except the milliwatt
// ANE name, which it never emits), plus the process metrics when
// --processes is set, which the parser does not accept; one HELP/TYPE
// pair and one sample per device/host/mount, omitting metrics that are not
// applicable on the current platform rather than zero-filling them.
//
// Metrics are modelled as a prometheus.Collector (spec's ambient-stack
// choice, grounded on the teacher's redfish/nvidia collectors using
// prometheus.MustNewConstMetric), but the HTTP handler is hand-written
// rather than promhttp.Handler so the response carries the exact headers
// the wire contract requires.
package exposition

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/all-smi/all-smi/pkg/scrape"
	"github.com/all-smi/all-smi/pkg/snapshot"
)

var (
	gpuUtilDesc     = prometheus.NewDesc(scrape.MetricGPUUtilization, "Accelerator utilization percentage.", []string{"gpu", "instance", "uuid", "index"}, nil)
	gpuTempDesc     = prometheus.NewDesc(scrape.MetricGPUTemperature, "Accelerator temperature in degrees Celsius.", []string{"gpu", "instance", "uuid", "index"}, nil)
	gpuMemUsedDesc  = prometheus.NewDesc(scrape.MetricGPUMemoryUsed, "Accelerator memory used in bytes.", []string{"gpu", "instance", "uuid", "index"}, nil)
	gpuMemTotalDesc = prometheus.NewDesc(scrape.MetricGPUMemoryTotal, "Accelerator memory total in bytes.", []string{"gpu", "instance", "uuid", "index"}, nil)
	gpuFreqDesc     = prometheus.NewDesc(scrape.MetricGPUFrequency, "Accelerator core frequency in MHz.", []string{"gpu", "instance", "uuid", "index"}, nil)
	gpuPowerDesc    = prometheus.NewDesc(scrape.MetricGPUPowerWatts, "Accelerator power draw in watts.", []string{"gpu", "instance", "uuid", "index"}, nil)
	gpuANEDesc      = prometheus.NewDesc(scrape.MetricGPUANEWatts, "Apple Neural Engine power draw in watts.", []string{"gpu", "instance", "uuid", "index"}, nil)
	gpuDLADesc      = prometheus.NewDesc(scrape.MetricGPUDLAUtilization, "Deep Learning Accelerator utilization percentage.", []string{"gpu", "instance", "uuid", "index"}, nil)
	gpuTCDesc       = prometheus.NewDesc(scrape.MetricGPUTensorCoreUtil, "Tensor core utilization percentage.", []string{"gpu", "instance", "uuid", "index"}, nil)

	cpuUtilDesc   = prometheus.NewDesc(scrape.MetricCPUUtilization, "Host CPU utilization percentage.", []string{"instance"}, nil)
	cpuTempDesc   = prometheus.NewDesc(scrape.MetricCPUTemperature, "Host CPU temperature in degrees Celsius.", []string{"instance"}, nil)
	cpuPowerDesc  = prometheus.NewDesc(scrape.MetricCPUPowerWatts, "Host CPU package power in watts.", []string{"instance"}, nil)
	cpuSockDesc   = prometheus.NewDesc(scrape.MetricCPUSocketUtil, "Per-socket CPU utilization percentage.", []string{"instance", "socket"}, nil)
	cpuCoreDesc   = prometheus.NewDesc(scrape.MetricCPUCoreUtil, "Per-core CPU utilization percentage.", []string{"instance", "core_id", "core_type"}, nil)

	memTotalDesc = prometheus.NewDesc(scrape.MetricMemoryTotal, "Host memory total in bytes.", []string{"instance"}, nil)
	memUsedDesc  = prometheus.NewDesc(scrape.MetricMemoryUsed, "Host memory used in bytes.", []string{"instance"}, nil)
	memAvailDesc = prometheus.NewDesc(scrape.MetricMemoryAvailable, "Host memory available in bytes.", []string{"instance"}, nil)
	memFreeDesc  = prometheus.NewDesc(scrape.MetricMemoryFree, "Host memory free in bytes.", []string{"instance"}, nil)
	memBufDesc   = prometheus.NewDesc(scrape.MetricMemoryBuffers, "Host memory buffers in bytes.", []string{"instance"}, nil)
	memCacheDesc = prometheus.NewDesc(scrape.MetricMemoryCached, "Host memory cached in bytes.", []string{"instance"}, nil)
	swapTotDesc  = prometheus.NewDesc(scrape.MetricMemorySwapTotal, "Host swap total in bytes.", []string{"instance"}, nil)
	swapUsedDesc = prometheus.NewDesc(scrape.MetricMemorySwapUsed, "Host swap used in bytes.", []string{"instance"}, nil)
	swapFreeDesc = prometheus.NewDesc(scrape.MetricMemorySwapFree, "Host swap free in bytes.", []string{"instance"}, nil)
	memUtilDesc  = prometheus.NewDesc(scrape.MetricMemoryUtilization, "Host memory utilization percentage.", []string{"instance"}, nil)

	storageTotalDesc = prometheus.NewDesc(scrape.MetricStorageTotal, "Mounted filesystem total bytes.", []string{"instance", "mount_point", "index"}, nil)
	storageAvailDesc = prometheus.NewDesc(scrape.MetricStorageAvailable, "Mounted filesystem available bytes.", []string{"instance", "mount_point", "index"}, nil)

	procCPUDesc = prometheus.NewDesc(scrape.MetricProcessCPU, "Process CPU utilization percentage.", []string{"pid", "command", "user"}, nil)
	procMemDesc = prometheus.NewDesc(scrape.MetricProcessMemory, "Process resident memory in bytes.", []string{"pid", "command", "user"}, nil)
	procGPUDesc = prometheus.NewDesc(scrape.MetricProcessGPUMemory, "Process GPU memory residency in bytes.", []string{"pid", "command", "user", "device_uuid"}, nil)
)

// collector adapts a snapshot.Store into a prometheus.Collector. Process
// metrics are local-only (spec §4.D "process information is not collected
// remotely") and are gated behind includeProcesses so `api --processes`
// is the only mode that pays their cardinality cost.
type collector struct {
	store            *snapshot.Store
	includeProcesses bool
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	// Intentionally left undeclared (spec: platform-inapplicable metrics are
	// omitted), matching an unchecked collector in the teacher's style.
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.store.Snapshot()

	for _, d := range snap.GPUs {
		idx := strconv.Itoa(d.Index)
		labels := []string{d.Name, d.Instance, d.UUID, idx}

		ch <- prometheus.MustNewConstMetric(gpuUtilDesc, prometheus.GaugeValue, d.UtilizationPct, labels...)
		ch <- prometheus.MustNewConstMetric(gpuTempDesc, prometheus.GaugeValue, d.TemperatureC, labels...)
		ch <- prometheus.MustNewConstMetric(gpuMemUsedDesc, prometheus.GaugeValue, float64(d.UsedMemBytes), labels...)
		ch <- prometheus.MustNewConstMetric(gpuMemTotalDesc, prometheus.GaugeValue, float64(d.TotalMemBytes), labels...)
		ch <- prometheus.MustNewConstMetric(gpuFreqDesc, prometheus.GaugeValue, d.FrequencyMHz, labels...)
		ch <- prometheus.MustNewConstMetric(gpuPowerDesc, prometheus.GaugeValue, d.PowerW, labels...)

		if d.ANEWatts != nil {
			ch <- prometheus.MustNewConstMetric(gpuANEDesc, prometheus.GaugeValue, *d.ANEWatts, labels...)
		}

		if d.DLAPct != nil {
			ch <- prometheus.MustNewConstMetric(gpuDLADesc, prometheus.GaugeValue, *d.DLAPct, labels...)
		}

		if d.TensorCorePct != nil {
			ch <- prometheus.MustNewConstMetric(gpuTCDesc, prometheus.GaugeValue, *d.TensorCorePct, labels...)
		}
	}

	for _, cpu := range snap.CPUs {
		ch <- prometheus.MustNewConstMetric(cpuUtilDesc, prometheus.GaugeValue, cpu.UtilizationPct, cpu.Instance)

		if cpu.TemperatureC != nil {
			ch <- prometheus.MustNewConstMetric(cpuTempDesc, prometheus.GaugeValue, *cpu.TemperatureC, cpu.Instance)
		}

		if cpu.PowerW != nil {
			ch <- prometheus.MustNewConstMetric(cpuPowerDesc, prometheus.GaugeValue, *cpu.PowerW, cpu.Instance)
		}

		for _, s := range cpu.PerSocket {
			ch <- prometheus.MustNewConstMetric(cpuSockDesc, prometheus.GaugeValue, s.UtilizationPct, cpu.Instance, strconv.Itoa(s.SocketID))
		}

		for _, core := range cpu.PerCore {
			ch <- prometheus.MustNewConstMetric(cpuCoreDesc, prometheus.GaugeValue, core.UtilizationPct, cpu.Instance, strconv.Itoa(core.CoreID), string(core.CoreType))
		}
	}

	for _, m := range snap.Memory {
		ch <- prometheus.MustNewConstMetric(memTotalDesc, prometheus.GaugeValue, float64(m.Total), m.Instance)
		ch <- prometheus.MustNewConstMetric(memUsedDesc, prometheus.GaugeValue, float64(m.Used), m.Instance)
		ch <- prometheus.MustNewConstMetric(memAvailDesc, prometheus.GaugeValue, float64(m.Available), m.Instance)
		ch <- prometheus.MustNewConstMetric(memFreeDesc, prometheus.GaugeValue, float64(m.Free), m.Instance)
		ch <- prometheus.MustNewConstMetric(memBufDesc, prometheus.GaugeValue, float64(m.Buffers), m.Instance)
		ch <- prometheus.MustNewConstMetric(memCacheDesc, prometheus.GaugeValue, float64(m.Cached), m.Instance)
		ch <- prometheus.MustNewConstMetric(swapTotDesc, prometheus.GaugeValue, float64(m.SwapTotal), m.Instance)
		ch <- prometheus.MustNewConstMetric(swapUsedDesc, prometheus.GaugeValue, float64(m.SwapUsed), m.Instance)
		ch <- prometheus.MustNewConstMetric(swapFreeDesc, prometheus.GaugeValue, float64(m.SwapFree), m.Instance)
		ch <- prometheus.MustNewConstMetric(memUtilDesc, prometheus.GaugeValue, m.UtilizationPct, m.Instance)
	}

	for _, s := range snap.Storage {
		idx := strconv.Itoa(s.Index)
		ch <- prometheus.MustNewConstMetric(storageTotalDesc, prometheus.GaugeValue, float64(s.TotalBytes), s.Instance, s.MountPoint, idx)
		ch <- prometheus.MustNewConstMetric(storageAvailDesc, prometheus.GaugeValue, float64(s.AvailableBytes), s.Instance, s.MountPoint, idx)
	}

	if !c.includeProcesses {
		return
	}

	for _, p := range snap.Processes {
		pid := strconv.Itoa(p.PID)

		ch <- prometheus.MustNewConstMetric(procCPUDesc, prometheus.GaugeValue, p.CPUPct, pid, p.Command, p.User)
		ch <- prometheus.MustNewConstMetric(procMemDesc, prometheus.GaugeValue, float64(p.RSSBytes), pid, p.Command, p.User)

		if p.UsesGPU {
			ch <- prometheus.MustNewConstMetric(procGPUDesc, prometheus.GaugeValue, float64(p.GPUMemoryBytes), pid, p.Command, p.User, p.DeviceUUID)
		}
	}
}

// Server serves /metrics for the local snapshot store.
type Server struct {
	logger   *slog.Logger
	registry *prometheus.Registry
}

// New returns an exposition Server backed by store. includeProcesses gates
// whether per-process metrics are emitted (api mode's --processes flag).
func New(store *snapshot.Store, logger *slog.Logger, includeProcesses bool) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(&collector{store: store, includeProcesses: includeProcesses})

	return &Server{logger: logger, registry: reg}
}

// ServeHTTP renders the current snapshot as a Prometheus text exposition
// body with the headers spec §4.E requires: explicit Content-Length and a
// 2-second Cache-Control window (ticks run every 2-6s, so a scraper within
// the window gets a response with no extra collector work).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	families, err := s.registry.Gather()
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to gather metrics: %v", err), http.StatusInternalServerError)

		return
	}

	var buf bytes.Buffer

	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))

	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			http.Error(w, fmt.Sprintf("failed to encode metrics: %v", err), http.StatusInternalServerError)

			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "max-age=2, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// Handler returns an http.Handler mux exposing path for the metrics body.
func (s *Server) Handler(path string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, s)

	return mux
}
