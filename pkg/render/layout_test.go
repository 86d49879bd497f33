package render

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/all-smi/all-smi/pkg/types"
)

func TestComputeLayoutBasic(t *testing.T) {
	l := ComputeLayout(80, 24, types.ViewState{}, 8)

	assert.Equal(t, headerLines, l.ContentStartRow)
	assert.Equal(t, 24-headerLines-footerLines, l.ContentRows)
	assert.Equal(t, deviceBaseHeight, l.DeviceHeight)
	assert.Equal(t, l.ContentRows/deviceBaseHeight, l.MaxGPUItems)
}

func TestComputeLayoutPerCoreAddsRows(t *testing.T) {
	base := ComputeLayout(80, 40, types.ViewState{}, 17)
	withCores := ComputeLayout(80, 40, types.ViewState{ShowPerCoreCPU: true}, 17)

	assert.Equal(t, deviceBaseHeight, base.DeviceHeight)
	assert.Equal(t, deviceBaseHeight+ceilDiv(17, coresPerLine), withCores.DeviceHeight)
	assert.Greater(t, withCores.DeviceHeight, base.DeviceHeight)
}

func TestComputeLayoutTinyTerminalNeverNegative(t *testing.T) {
	l := ComputeLayout(10, 2, types.ViewState{}, 4)

	assert.Equal(t, 0, l.ContentRows)
	assert.Equal(t, 0, l.MaxGPUItems)
}

func TestCeilDiv(t *testing.T) {
	assert.Equal(t, 0, ceilDiv(5, 0))
	assert.Equal(t, 1, ceilDiv(1, 8))
	assert.Equal(t, 2, ceilDiv(9, 8))
	assert.Equal(t, 3, ceilDiv(24, 8))
}
