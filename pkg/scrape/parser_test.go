package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBody = `
# HELP all_smi_gpu_utilization GPU utilization percent
# TYPE all_smi_gpu_utilization gauge
all_smi_gpu_utilization{instance="node1",uuid="gpu-0",gpu="A100",index="0"} 42
all_smi_gpu_memory_used_bytes{instance="node1",uuid="gpu-0",gpu="A100",index="0"} 1000
all_smi_cpu_utilization{instance="node1"} 55
all_smi_memory_total_bytes{instance="node1"} 8000000000
all_smi_storage_total_bytes{instance="node1",mount_point="/"} 500000000000
all_smi_storage_available_bytes{instance="node1",mount_point="/"} 100000000000
all_smi_unknown_metric{instance="node1"} 1
`

func TestParserParseGroupsByMetricFamily(t *testing.T) {
	p := NewParser()

	host, err := p.Parse("10.0.0.1:9090", []byte(sampleBody))
	require.NoError(t, err)

	require.Len(t, host.GPUs, 1)
	assert.Equal(t, "gpu-0", host.GPUs[0].UUID)
	assert.Equal(t, "node1", host.GPUs[0].HostID)
	assert.InDelta(t, 42.0, host.GPUs[0].UtilizationPct, 0.001)
	assert.Equal(t, uint64(1000), host.GPUs[0].UsedMemBytes)

	require.Len(t, host.CPUs, 1)
	assert.InDelta(t, 55.0, host.CPUs[0].UtilizationPct, 0.001)

	require.Len(t, host.Memory, 1)
	assert.Equal(t, uint64(8000000000), host.Memory[0].Total)

	require.Len(t, host.Storage, 1)
	assert.Equal(t, "/", host.Storage[0].MountPoint)
	assert.Equal(t, uint64(500000000000), host.Storage[0].TotalBytes)
}

func TestParserLearnsCanonicalInstance(t *testing.T) {
	p := NewParser()

	urlKey := "10.0.0.1:9090"
	assert.Equal(t, urlKey, p.CanonicalHost(urlKey), "before any scrape, falls back to the key itself")

	_, err := p.Parse(urlKey, []byte(sampleBody))
	require.NoError(t, err)

	assert.Equal(t, "node1", p.CanonicalHost(urlKey))

	// A later scrape that omits the instance label still resolves to the
	// previously learned canonical name.
	_, err = p.Parse(urlKey, []byte("all_smi_cpu_utilization{} 10\n"))
	require.NoError(t, err)
	assert.Equal(t, "node1", p.CanonicalHost(urlKey))
}

func TestParserIgnoresUnknownMetrics(t *testing.T) {
	p := NewParser()

	host, err := p.Parse("k", []byte(`all_smi_unknown_metric{instance="x"} 1`+"\n"))
	require.NoError(t, err)

	assert.Empty(t, host.GPUs)
	assert.Empty(t, host.CPUs)
	assert.Empty(t, host.Memory)
	assert.Empty(t, host.Storage)
}
