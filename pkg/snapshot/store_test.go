package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/all-smi/all-smi/pkg/notify"
	"github.com/all-smi/all-smi/pkg/types"
)

func newTestStore() *Store {
	return New(notify.New(time.Second))
}

func TestPublishDedupesGPUsAndStorage(t *testing.T) {
	s := newTestStore()

	s.Publish(Tick{
		GPUs: []types.DeviceSample{
			{UUID: "gpu-0", HostID: "h1"},
			{UUID: "gpu-0", HostID: "h1"}, // duplicate
		},
		Storage: []types.StorageSample{
			{HostID: "h1", MountPoint: "/"},
			{HostID: "h1", MountPoint: "/"}, // duplicate
			{HostID: "h1", MountPoint: "/data"},
		},
		HostIDs: []string{"h1"},
	})

	snap := s.Snapshot()
	assert.Len(t, snap.GPUs, 1)
	assert.Len(t, snap.Storage, 2)
}

func TestPublishBuildsSortedTabsWithAllFirst(t *testing.T) {
	s := newTestStore()

	s.Publish(Tick{HostIDs: []string{"zeta", "alpha", "alpha", ""}})

	view := s.View()
	assert.Equal(t, []string{"All", "alpha", "zeta"}, view.Tabs)
}

func TestPublishResetsCurrentTabWhenOutOfRange(t *testing.T) {
	s := newTestStore()

	s.Publish(Tick{HostIDs: []string{"a", "b"}})
	s.MutateView(func(v *types.ViewState) { v.CurrentTab = 2 })

	// Next publish shrinks the tab set back down to "All" + 1 host.
	s.Publish(Tick{HostIDs: []string{"a"}})

	assert.Equal(t, 0, s.View().CurrentTab)
}

func TestUpdateConnectionStatus(t *testing.T) {
	s := newTestStore()

	s.UpdateConnectionStatus("h1", false, "dial timeout")
	snap := s.Snapshot()
	require.Contains(t, snap.ConnStatus, "h1")
	assert.False(t, snap.ConnStatus["h1"].IsConnected)
	assert.Equal(t, 1, snap.ConnStatus["h1"].ConsecutiveFailures)
	assert.Equal(t, "dial timeout", snap.ConnStatus["h1"].LastErrorMsg)

	s.UpdateConnectionStatus("h1", false, "dial timeout")
	assert.Equal(t, 2, s.Snapshot().ConnStatus["h1"].ConsecutiveFailures)

	s.UpdateConnectionStatus("h1", true, "")
	snap = s.Snapshot()
	assert.True(t, snap.ConnStatus["h1"].IsConnected)
	assert.Equal(t, 0, snap.ConnStatus["h1"].ConsecutiveFailures)
}

func TestClusterHistoryAccumulates(t *testing.T) {
	s := newTestStore()

	s.Publish(Tick{
		CPUs:    []types.CpuSample{{HostID: "h1", UtilizationPct: 50}},
		Memory:  []types.MemorySample{{HostID: "h1", UtilizationPct: 20}},
		HostIDs: []string{"h1"},
	})
	s.Publish(Tick{
		CPUs:    []types.CpuSample{{HostID: "h1", UtilizationPct: 70}},
		Memory:  []types.MemorySample{{HostID: "h1", UtilizationPct: 30}},
		HostIDs: []string{"h1"},
	})

	points := s.ClusterHistory()
	require.Len(t, points, 2)
	assert.InDelta(t, 50, points[0].UtilPct, 0.001)
	assert.InDelta(t, 70, points[1].UtilPct, 0.001)

	hostPoints := s.HostHistory("h1")
	require.Len(t, hostPoints, 2)
}

func TestAdvanceMarqueeWraps(t *testing.T) {
	s := newTestStore()

	for i := 0; i < 5; i++ {
		s.AdvanceMarquee("id1", 2) // period = 2+3 = 5
	}

	// The fifth advance wrapped the offset to 0, so the sixth gives 1.
	assert.Equal(t, 1, s.AdvanceMarquee("id1", 2))
}
