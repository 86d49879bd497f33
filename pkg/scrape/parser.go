package scrape

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/all-smi/all-smi/pkg/types"
)

// ParsedHost is one remote agent's samples for one scrape, grouped per spec
// §4.D's grouping rules.
type ParsedHost struct {
	GPUs    []types.DeviceSample
	CPUs    []types.CpuSample
	Memory  []types.MemorySample
	Storage []types.StorageSample
}

// Parser decodes Prometheus text exposition bodies into typed samples and
// tracks each remote host's canonical instance name (spec §4.D "on the
// first scrape... learn the canonical host name").
type Parser struct {
	mu          sync.Mutex
	canonical   map[string]string // url-derived key -> canonical instance
}

// NewParser returns a ready Parser.
func NewParser() *Parser {
	return &Parser{canonical: make(map[string]string)}
}

// Parse decodes one scrape body from the given url-derived key, returning
// the grouped samples. It learns and applies the canonical instance name
// per host so UI tabs stay stable across addresses.
func (p *Parser) Parse(urlKey string, body []byte) (ParsedHost, error) {
	var tp expfmt.TextParser

	families, err := tp.TextToMetricFamilies(strings.NewReader(string(body)))
	if err != nil {
		return ParsedHost{}, fmt.Errorf("failed to parse prometheus exposition body: %w", err)
	}

	instance := p.learnInstance(urlKey, families)

	out := ParsedHost{}

	gpuByUUID := make(map[string]*types.DeviceSample)
	cpuByHost := make(map[string]*types.CpuSample)
	memByHost := make(map[string]*types.MemorySample)
	storageByKey := make(map[string]*types.StorageSample)

	for name, mf := range families {
		if !acceptedMetrics[name] {
			continue
		}

		for _, m := range mf.GetMetric() {
			labels := labelMap(m)
			value := metricValue(m)

			switch {
			case strings.HasPrefix(name, "all_smi_gpu_"):
				applyGPU(gpuByUUID, instance, labels, name, value)
			case strings.HasPrefix(name, "all_smi_cpu_"):
				applyCPU(cpuByHost, instance, labels, name, value)
			case strings.HasPrefix(name, "all_smi_memory_"):
				applyMemory(memByHost, instance, labels, name, value)
			case strings.HasPrefix(name, "all_smi_storage_"):
				applyStorage(storageByKey, instance, labels, name, value)
			}
		}
	}

	for _, d := range gpuByUUID {
		out.GPUs = append(out.GPUs, *d)
	}

	for _, c := range cpuByHost {
		out.CPUs = append(out.CPUs, *c)
	}

	for _, m := range memByHost {
		out.Memory = append(out.Memory, *m)
	}

	for _, s := range storageByKey {
		out.Storage = append(out.Storage, *s)
	}

	return out, nil
}

// CanonicalHost returns the cached canonical instance name for urlKey, or
// urlKey itself if no scrape has ever succeeded for it. Used to key
// ConnectionStatus consistently with the instance names stamped onto
// samples, including for hosts that are currently failing.
func (p *Parser) CanonicalHost(urlKey string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if name, ok := p.canonical[urlKey]; ok {
		return name
	}

	return urlKey
}

// learnInstance extracts instance= from any line on the first successful
// scrape of urlKey and caches it; subsequent scrapes reuse the cached name
// even if the remote briefly omits the label.
func (p *Parser) learnInstance(urlKey string, families map[string]*dto.MetricFamily) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if name, ok := p.canonical[urlKey]; ok {
		return name
	}

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "instance" && lp.GetValue() != "" {
					p.canonical[urlKey] = lp.GetValue()

					return lp.GetValue()
				}
			}
		}
	}

	return urlKey
}

func labelMap(m *dto.Metric) map[string]string {
	out := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}

	return out
}

func metricValue(m *dto.Metric) float64 {
	if g := m.GetGauge(); g != nil {
		return g.GetValue()
	}

	if c := m.GetCounter(); c != nil {
		return c.GetValue()
	}

	if u := m.GetUntyped(); u != nil {
		return u.GetValue()
	}

	return 0
}

func atoiOr(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}

	return v
}

func applyGPU(byUUID map[string]*types.DeviceSample, instance string, labels map[string]string, metric string, value float64) {
	uuid := labels["uuid"]
	if uuid == "" {
		return
	}

	d, ok := byUUID[uuid]
	if !ok {
		d = &types.DeviceSample{
			UUID: uuid, Instance: instance, Hostname: instance, HostID: instance,
			Name: labels["gpu"], Index: atoiOr(labels["index"], 0),
			DeviceClass: types.DeviceGPU,
		}
		byUUID[uuid] = d
	}

	switch metric {
	case MetricGPUUtilization:
		d.UtilizationPct = value
	case MetricGPUTemperature:
		d.TemperatureC = value
	case MetricGPUMemoryUsed:
		d.UsedMemBytes = uint64(value)
	case MetricGPUMemoryTotal:
		d.TotalMemBytes = uint64(value)
	case MetricGPUFrequency:
		d.FrequencyMHz = value
	case MetricGPUPowerWatts:
		d.PowerW = value
	case MetricGPUANEWatts:
		v := value
		d.ANEWatts = &v
	case MetricGPUANEMilliwatts:
		v := value / 1000.0
		d.ANEWatts = &v
	case MetricGPUDLAUtilization:
		v := value
		d.DLAPct = &v
	case MetricGPUTensorCoreUtil:
		v := value
		d.TensorCorePct = &v
	}
}

func applyCPU(byHost map[string]*types.CpuSample, instance string, labels map[string]string, metric string, value float64) {
	host := instance

	c, ok := byHost[host]
	if !ok {
		c = &types.CpuSample{HostID: host, Hostname: host, Instance: instance}
		byHost[host] = c
	}

	switch metric {
	case MetricCPUUtilization:
		c.UtilizationPct = value
	case MetricCPUTemperature:
		v := value
		c.TemperatureC = &v
	case MetricCPUPowerWatts:
		v := value
		c.PowerW = &v
	case MetricCPUSocketUtil:
		c.PerSocket = append(c.PerSocket, types.SocketGauge{
			SocketID: atoiOr(labels["socket"], 0), UtilizationPct: value,
		})
	case MetricCPUCoreUtil:
		c.PerCore = append(c.PerCore, types.CoreGauge{
			CoreID: atoiOr(labels["core_id"], 0), CoreType: types.CoreType(labels["core_type"]), UtilizationPct: value,
		})
	}
}

func applyMemory(byHost map[string]*types.MemorySample, instance string, labels map[string]string, metric string, value float64) {
	host := instance

	m, ok := byHost[host]
	if !ok {
		m = &types.MemorySample{HostID: host, Hostname: host, Instance: instance}
		byHost[host] = m
	}

	switch metric {
	case MetricMemoryTotal:
		m.Total = uint64(value)
	case MetricMemoryUsed:
		m.Used = uint64(value)
	case MetricMemoryAvailable:
		m.Available = uint64(value)
	case MetricMemoryFree:
		m.Free = uint64(value)
	case MetricMemoryBuffers:
		m.Buffers = uint64(value)
	case MetricMemoryCached:
		m.Cached = uint64(value)
	case MetricMemorySwapTotal:
		m.SwapTotal = uint64(value)
	case MetricMemorySwapUsed:
		m.SwapUsed = uint64(value)
	case MetricMemorySwapFree:
		m.SwapFree = uint64(value)
	case MetricMemoryUtilization:
		m.UtilizationPct = value
	}
}

func applyStorage(byKey map[string]*types.StorageSample, instance string, labels map[string]string, metric string, value float64) {
	mount := labels["mount_point"]
	key := instance + "\x00" + mount

	s, ok := byKey[key]
	if !ok {
		s = &types.StorageSample{
			HostID: instance, Hostname: instance, Instance: instance,
			MountPoint: mount, Index: atoiOr(labels["index"], 0),
		}
		byKey[key] = s
	}

	switch metric {
	case MetricStorageTotal:
		s.TotalBytes = uint64(value)
	case MetricStorageAvailable:
		s.AvailableBytes = uint64(value)
	}
}
