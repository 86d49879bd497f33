package scrape

// Metric names are the wire contract shared by the scrape parser and the
// exposition server: exposition emits these names except
// MetricGPUANEMilliwatts (spec §4.E), and the parser accepts all of them
// except the process names, ignoring anything else for forward
// compatibility (spec §4.D).
const (
	MetricGPUUtilization      = "all_smi_gpu_utilization"
	MetricGPUTemperature      = "all_smi_gpu_temperature_celsius"
	MetricGPUMemoryUsed       = "all_smi_gpu_memory_used_bytes"
	MetricGPUMemoryTotal      = "all_smi_gpu_memory_total_bytes"
	MetricGPUFrequency        = "all_smi_gpu_frequency_mhz"
	MetricGPUPowerWatts       = "all_smi_gpu_power_watts"
	MetricGPUANEWatts         = "all_smi_gpu_ane_power_watts"
	MetricGPUANEMilliwatts    = "all_smi_gpu_ane_power_milliwatts"
	MetricGPUDLAUtilization   = "all_smi_gpu_dla_utilization"
	MetricGPUTensorCoreUtil   = "all_smi_gpu_tensorcore_utilization"

	MetricCPUUtilization    = "all_smi_cpu_utilization"
	MetricCPUTemperature    = "all_smi_cpu_temperature_celsius"
	MetricCPUPowerWatts     = "all_smi_cpu_power_watts"
	MetricCPUSocketUtil     = "all_smi_cpu_socket_utilization"
	MetricCPUCoreUtil       = "all_smi_cpu_core_utilization"

	MetricMemoryTotal       = "all_smi_memory_total_bytes"
	MetricMemoryUsed        = "all_smi_memory_used_bytes"
	MetricMemoryAvailable   = "all_smi_memory_available_bytes"
	MetricMemoryFree        = "all_smi_memory_free_bytes"
	MetricMemoryBuffers     = "all_smi_memory_buffers_bytes"
	MetricMemoryCached      = "all_smi_memory_cached_bytes"
	MetricMemorySwapTotal   = "all_smi_memory_swap_total_bytes"
	MetricMemorySwapUsed    = "all_smi_memory_swap_used_bytes"
	MetricMemorySwapFree    = "all_smi_memory_swap_free_bytes"
	MetricMemoryUtilization = "all_smi_memory_utilization"

	MetricStorageTotal     = "all_smi_storage_total_bytes"
	MetricStorageAvailable = "all_smi_storage_available_bytes"

	// Process metrics are local-only (spec §4.D "process information is not
	// collected remotely") and deliberately absent from acceptedMetrics
	// below: the scrape parser never needs to recognize them.
	MetricProcessCPU       = "all_smi_process_cpu_utilization"
	MetricProcessMemory    = "all_smi_process_memory_used_bytes"
	MetricProcessGPUMemory = "all_smi_process_gpu_memory_used_bytes"
)

// acceptedMetrics is the full set the parser recognizes; anything else is
// silently ignored (spec §4.D "unknown metric names are ignored").
var acceptedMetrics = map[string]bool{
	MetricGPUUtilization: true, MetricGPUTemperature: true,
	MetricGPUMemoryUsed: true, MetricGPUMemoryTotal: true,
	MetricGPUFrequency: true, MetricGPUPowerWatts: true,
	MetricGPUANEWatts: true, MetricGPUANEMilliwatts: true,
	MetricGPUDLAUtilization: true, MetricGPUTensorCoreUtil: true,
	MetricCPUUtilization: true, MetricCPUTemperature: true,
	MetricCPUPowerWatts: true, MetricCPUSocketUtil: true, MetricCPUCoreUtil: true,
	MetricMemoryTotal: true, MetricMemoryUsed: true, MetricMemoryAvailable: true,
	MetricMemoryFree: true, MetricMemoryBuffers: true, MetricMemoryCached: true,
	MetricMemorySwapTotal: true, MetricMemorySwapUsed: true, MetricMemorySwapFree: true,
	MetricMemoryUtilization: true,
	MetricStorageTotal:      true, MetricStorageAvailable: true,
}
