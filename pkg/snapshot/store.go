// Package snapshot implements the single process-wide unified view: the
// latest GPU/CPU/memory/storage/process/chassis samples, per-host connection
// status, bounded history rings and UI view state (spec §3, §4.C).
//
// Exactly one writer (the collector) publishes a tick at a time by taking an
// exclusive lock, replacing every array, then releasing it; readers (the
// renderer, the exposition handler) take a shared lock and always observe a
// complete tick, never a mixture of tick N and N+1 (spec §4.C "ordering
// guarantees", §5).
package snapshot

import (
	"sync"
	"time"

	"github.com/all-smi/all-smi/pkg/notify"
	"github.com/all-smi/all-smi/pkg/types"
)

// historyCapacity is the number of points kept per host and for the cluster
// average, enough for ~10 minutes of sparkline at a 3s tick.
const historyCapacity = 200

// Tick is the input the collector hands to Store.Publish once per tick. All
// fields reflect the same logical moment (spec §4.C "publish-once pattern").
type Tick struct {
	GPUs     []types.DeviceSample
	CPUs     []types.CpuSample
	Memory   []types.MemorySample
	Storage  []types.StorageSample
	Processes []types.ProcessSample
	Chassis  []types.ChassisSample
	// HostIDs is the full set of host identities observed this tick,
	// including remote hosts that contributed no devices, so the tabs list
	// (P3) stays stable even for device-less hosts.
	HostIDs []string
}

// Store is the snapshot. Zero value is not usable; use New.
type Store struct {
	mu sync.RWMutex

	gpus      []types.DeviceSample
	cpus      []types.CpuSample
	memory    []types.MemorySample
	storage   []types.StorageSample
	processes []types.ProcessSample
	chassis   []types.ChassisSample

	connStatus map[string]*types.ConnectionStatus

	hostHistory    map[string]*types.HistoryRing
	clusterHistory *types.HistoryRing

	view          *types.ViewState
	notifications *notify.Queue

	lastTick time.Time
}

// New returns an empty, ready-to-use Store.
func New(notifications *notify.Queue) *Store {
	return &Store{
		connStatus:     make(map[string]*types.ConnectionStatus),
		hostHistory:    make(map[string]*types.HistoryRing),
		clusterHistory: types.NewHistoryRing(historyCapacity),
		view:           types.NewViewState(),
		notifications:  notifications,
	}
}

// Snapshot is a read-only, self-contained copy handed to readers so they
// never observe a mutation mid-read.
type Snapshot struct {
	GPUs      []types.DeviceSample
	CPUs      []types.CpuSample
	Memory    []types.MemorySample
	Storage   []types.StorageSample
	Processes []types.ProcessSample
	Chassis   []types.ChassisSample

	ConnStatus map[string]types.ConnectionStatus

	View types.ViewState

	LastTick time.Time
}

// Publish applies the post-merge invariants (GPU dedup by UUID, storage
// dedup by host+mount, tabs = "All" + sorted host ids, process list sorted
// once per the current sort criteria) and atomically replaces the snapshot's
// arrays (spec §4.C).
func (s *Store) Publish(t Tick) {
	gpus := dedupeGPUs(t.GPUs)
	storageList := dedupeStorage(t.Storage)

	s.mu.Lock()
	defer s.mu.Unlock()

	procs := sortProcesses(t.Processes, s.view.SortCriteria, s.view.SortDirection)

	s.gpus = gpus
	s.cpus = t.CPUs
	s.memory = t.Memory
	s.storage = storageList
	s.processes = procs
	s.chassis = t.Chassis
	s.lastTick = time.Now()

	s.view.Tabs = buildTabs(t.HostIDs)
	if s.view.CurrentTab >= len(s.view.Tabs) {
		s.view.CurrentTab = 0
	}

	s.pushHistoryLocked(t.CPUs, t.Memory, gpus)
}

// pushHistoryLocked updates the per-host and cluster-average history rings.
// Caller must hold s.mu.
func (s *Store) pushHistoryLocked(cpus []types.CpuSample, mem []types.MemorySample, gpus []types.DeviceSample) {
	now := time.Now()

	memByHost := make(map[string]float64, len(mem))
	for _, m := range mem {
		memByHost[m.HostID] = m.UtilizationPct
	}

	gpuUtilByHost := make(map[string][]float64)
	gpuTempByHost := make(map[string][]float64)

	for _, g := range gpus {
		gpuUtilByHost[g.HostID] = append(gpuUtilByHost[g.HostID], g.UtilizationPct)
		gpuTempByHost[g.HostID] = append(gpuTempByHost[g.HostID], g.TemperatureC)
	}

	var clusterUtil, clusterMem, clusterTemp float64

	var n int

	for _, c := range cpus {
		util := c.UtilizationPct
		if us := gpuUtilByHost[c.HostID]; len(us) > 0 {
			util = average(us)
		}

		temp := 0.0
		if ts := gpuTempByHost[c.HostID]; len(ts) > 0 {
			temp = average(ts)
		} else if c.TemperatureC != nil {
			temp = *c.TemperatureC
		}

		point := types.HistoryPoint{
			Timestamp: now,
			UtilPct:   util,
			MemPct:    memByHost[c.HostID],
			TempC:     temp,
		}

		ring, ok := s.hostHistory[c.HostID]
		if !ok {
			ring = types.NewHistoryRing(historyCapacity)
			s.hostHistory[c.HostID] = ring
		}

		ring.Push(point)

		clusterUtil += util
		clusterMem += memByHost[c.HostID]
		clusterTemp += temp
		n++
	}

	if n > 0 {
		s.clusterHistory.Push(types.HistoryPoint{
			Timestamp: now,
			UtilPct:   clusterUtil / float64(n),
			MemPct:    clusterMem / float64(n),
			TempC:     clusterTemp / float64(n),
		})
	}
}

func average(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}

	var sum float64
	for _, v := range vs {
		sum += v
	}

	return sum / float64(len(vs))
}

// UpdateConnectionStatus records the outcome of one remote scrape attempt
// for hostID. success resets ConsecutiveFailures and updates LastSuccessTS;
// otherwise ConsecutiveFailures is incremented and errMsg recorded.
func (s *Store) UpdateConnectionStatus(hostID string, success bool, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.connStatus[hostID]
	if !ok {
		cs = &types.ConnectionStatus{HostID: hostID}
		s.connStatus[hostID] = cs
	}

	if success {
		cs.IsConnected = true
		cs.LastSuccessTS = time.Now()
		cs.ConsecutiveFailures = 0
	} else {
		cs.ConsecutiveFailures++
		cs.LastErrorTS = time.Now()
		cs.LastErrorMsg = errMsg
		cs.IsConnected = false
	}
}

// Snapshot returns a self-contained copy of the current state for readers.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn := make(map[string]types.ConnectionStatus, len(s.connStatus))
	for k, v := range s.connStatus {
		conn[k] = *v
	}

	return Snapshot{
		GPUs:       append([]types.DeviceSample(nil), s.gpus...),
		CPUs:       append([]types.CpuSample(nil), s.cpus...),
		Memory:     append([]types.MemorySample(nil), s.memory...),
		Storage:    append([]types.StorageSample(nil), s.storage...),
		Processes:  append([]types.ProcessSample(nil), s.processes...),
		Chassis:    append([]types.ChassisSample(nil), s.chassis...),
		ConnStatus: conn,
		View:       *s.view,
		LastTick:   s.lastTick,
	}
}

// HostHistory returns the history ring points for hostID, oldest first.
func (s *Store) HostHistory(hostID string) []types.HistoryPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.hostHistory[hostID]
	if !ok {
		return nil
	}

	return append([]types.HistoryPoint(nil), ring.Points()...)
}

// ClusterHistory returns the cluster-average history ring points, oldest
// first.
func (s *Store) ClusterHistory() []types.HistoryPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]types.HistoryPoint(nil), s.clusterHistory.Points()...)
}

// MutateView applies fn to the live view state under an exclusive lock. Used
// by the event loop (spec §4.F) to change tab/sort/scroll/help state.
func (s *Store) MutateView(fn func(*types.ViewState)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(s.view)
}

// View returns a copy of the current view state.
func (s *Store) View() types.ViewState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return *s.view
}

// AdvanceMarquee advances the per-id marquee offset by one step, wrapping at
// textLen+3 (the separator used between the two concatenated copies of the
// text, spec §4.G). Each call advances one step. The render path neither
// calls it nor reads MarqueeOffsets.
func (s *Store) AdvanceMarquee(id string, textLen int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	off := s.view.MarqueeOffsets[id]
	off = (off + 1) % (textLen + 3)
	s.view.MarqueeOffsets[id] = off

	return off
}

// Notifications returns the process-wide notification queue.
func (s *Store) Notifications() *notify.Queue {
	return s.notifications
}
