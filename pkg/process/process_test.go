package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/all-smi/all-smi/pkg/types"
)

func newTestTable(byPID map[int]types.ProcessSample) *Table {
	return &Table{byPID: byPID, usernames: make(map[int]string)}
}

func TestMergeFillsPartialFromOSTable(t *testing.T) {
	table := newTestTable(map[int]types.ProcessSample{
		123: {PID: 123, Command: "python3", User: "alice", RSSBytes: 1024},
	})

	merged := table.Merge([]types.ProcessSample{
		{PID: 123, DeviceUUID: "gpu-0", GPUMemoryBytes: 2048, GPUUtilizationPct: 50},
	})

	require.Len(t, merged, 1)
	assert.Equal(t, "python3", merged[0].Command)
	assert.Equal(t, "alice", merged[0].User)
	assert.True(t, merged[0].UsesGPU)
	assert.Equal(t, "gpu-0", merged[0].DeviceUUID)
	assert.Equal(t, uint64(2048), merged[0].GPUMemoryBytes)
}

func TestMergeKeepsNonGPUProcessesUnmodified(t *testing.T) {
	table := newTestTable(map[int]types.ProcessSample{
		1: {PID: 1, Command: "init"},
		2: {PID: 2, Command: "bash"},
	})

	merged := table.Merge(nil)

	require.Len(t, merged, 2)

	for _, s := range merged {
		assert.False(t, s.UsesGPU)
	}
}

func TestMergeKeepsVendorOnlyProcessGoneFromOSTable(t *testing.T) {
	table := newTestTable(map[int]types.ProcessSample{})

	merged := table.Merge([]types.ProcessSample{
		{PID: 999, DeviceUUID: "gpu-0", Command: ""},
	})

	require.Len(t, merged, 1)
	assert.True(t, merged[0].UsesGPU)
	assert.Equal(t, 999, merged[0].PID)
}
