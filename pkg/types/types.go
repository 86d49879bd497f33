// Package types defines the unified in-memory data model shared by every
// device reader, the snapshot store, the remote scrape fabric, the
// exposition server and the renderer.
package types

import "time"

// DeviceClass identifies the accelerator family a DeviceSample belongs to.
type DeviceClass string

// Supported device classes.
const (
	DeviceGPU DeviceClass = "GPU"
	DeviceNPU DeviceClass = "NPU"
	DeviceTPU DeviceClass = "TPU"
)

// DeviceSample is one measurement record for one accelerator at one tick.
type DeviceSample struct {
	UUID        string
	HostID      string
	Hostname    string
	Instance    string
	DeviceClass DeviceClass
	Name        string
	Index       int
	Timestamp   time.Time

	UtilizationPct float64
	TemperatureC   float64
	UsedMemBytes   uint64
	TotalMemBytes  uint64
	FrequencyMHz   float64
	PowerW         float64

	// Optional gauges. A nil pointer means "not reported", not zero.
	ANEWatts       *float64
	DLAPct         *float64
	TensorCorePct  *float64

	// Detail carries vendor-specific free-form metadata: firmware, PCIe
	// generation, ECC state, architecture, compute capability, per-core
	// residency, etc.
	Detail map[string]string
}

// CoreType classifies one entry of CpuSample.PerCore.
type CoreType string

// Supported core types.
const (
	CoreStandard CoreType = "Standard"
	CoreP        CoreType = "P"
	CoreE        CoreType = "E"
)

// SocketGauge is the per-socket slice of CpuSample.
type SocketGauge struct {
	SocketID       int
	UtilizationPct float64
	FrequencyMHz   float64
}

// CoreGauge is one entry of CpuSample.PerCore.
type CoreGauge struct {
	CoreID         int
	CoreType       CoreType
	UtilizationPct float64
}

// AppleSiliconCPU holds the optional Apple-silicon specific CPU block.
type AppleSiliconCPU struct {
	PCoreCount int
	ECoreCount int
	GPUCores   int
	PUtilPct   float64
	EUtilPct   float64

	PClusterMHz *float64
	EClusterMHz *float64
	PL2MB       *float64
	EL2MB       *float64
}

// CpuSample is one measurement record for the host CPU(s) at one tick.
type CpuSample struct {
	HostID       string
	Hostname     string
	Instance     string
	Model        string
	Architecture string

	SocketCount   int
	TotalCores    int
	TotalThreads  int
	BaseMHz       float64
	MaxMHz        float64
	CacheMB       float64

	UtilizationPct float64
	TemperatureC   *float64
	PowerW         *float64

	PerSocket []SocketGauge
	PerCore   []CoreGauge

	AppleSilicon *AppleSiliconCPU
}

// MemorySample is one measurement record for host memory at one tick.
//
// Invariant: Used+Available <= Total+tolerance. Used+Free+Buffers+Cached need
// not equal Total (Linux accounting quirks).
type MemorySample struct {
	HostID   string
	Hostname string
	Instance string

	Total          uint64
	Used           uint64
	Available      uint64
	Free           uint64
	Buffers        uint64
	Cached         uint64
	SwapTotal      uint64
	SwapUsed       uint64
	SwapFree       uint64
	UtilizationPct float64
}

// StorageSample is one measurement record for one mounted filesystem.
type StorageSample struct {
	HostID         string
	Hostname       string
	Instance       string
	MountPoint     string
	TotalBytes     uint64
	AvailableBytes uint64
	Index          int
}

// ProcessSample is one OS process, optionally enriched with GPU residency.
type ProcessSample struct {
	PID       int
	PPID      int
	User      string
	Command   string
	State     string
	Threads   int
	StartTime time.Time
	CPUTimeS  float64

	CPUPct    float64
	MemPct    float64
	RSSBytes  uint64
	VMSBytes  uint64

	UsesGPU           bool
	DeviceUUID        string
	DeviceID          string
	GPUMemoryBytes    uint64
	GPUUtilizationPct float64

	Nice     int
	Priority int
}

// ChassisSample is an optional bag of BMC/IPMI-style attributes.
type ChassisSample struct {
	HostID   string
	Hostname string
	Attrs    map[string]string
}

// ConnectionStatus tracks the health of a remote agent scrape target.
type ConnectionStatus struct {
	HostID              string
	IsConnected         bool
	LastSuccessTS       time.Time
	LastErrorTS         time.Time
	LastErrorMsg        string
	ConsecutiveFailures int
}

// HistoryPoint is one entry of a HistoryRing.
type HistoryPoint struct {
	Timestamp time.Time
	UtilPct   float64
	MemPct    float64
	TempC     float64
}

// HistoryRing is a fixed-capacity ring buffer of HistoryPoint, oldest entries
// pushed out once capacity is reached. Not safe for concurrent use; callers
// hold the snapshot lock.
type HistoryRing struct {
	capacity int
	points   []HistoryPoint
}

// NewHistoryRing returns a ring with the given capacity.
func NewHistoryRing(capacity int) *HistoryRing {
	if capacity <= 0 {
		capacity = 1
	}

	return &HistoryRing{capacity: capacity, points: make([]HistoryPoint, 0, capacity)}
}

// Push appends a point, evicting the oldest entry if the ring is full.
func (r *HistoryRing) Push(p HistoryPoint) {
	if len(r.points) >= r.capacity {
		r.points = r.points[1:]
	}

	r.points = append(r.points, p)
}

// Points returns the ring's contents, oldest first. The returned slice must
// not be mutated by the caller.
func (r *HistoryRing) Points() []HistoryPoint {
	return r.points
}

// Len reports the number of points currently stored.
func (r *HistoryRing) Len() int {
	return len(r.points)
}
