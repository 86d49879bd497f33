// Package process implements the OS-wide process enumerator (spec §4.B): a
// shared process table singleton, refreshed per tick under a mutex, that
// vendor device readers' partial GPU/NPU/TPU process samples are merged
// against. Enumeration follows the teacher's procfs.FS.AllProcs usage
// (pkg/collector/nvidia_gpus.go) rather than shelling out to `ps`.
package process

import (
	"os/user"
	"sync"
	"time"

	"github.com/prometheus/procfs"

	"github.com/all-smi/all-smi/pkg/types"
)

// clockTicksPerSecond is USER_HZ on every Linux platform all-smi targets.
const clockTicksPerSecond = 100

// Table is the OS-wide process table, refreshed once per tick.
type Table struct {
	fs procfs.FS

	mu        sync.Mutex
	byPID     map[int]types.ProcessSample
	usernames map[int]string
	memTotal  uint64
	bootTime  time.Time
}

// New opens procfs at mountPoint for process enumeration.
func New(mountPoint string) (*Table, error) {
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, err
	}

	t := &Table{fs: fs, byPID: make(map[int]types.ProcessSample), usernames: make(map[int]string)}

	if stat, err := fs.Stat(); err == nil {
		t.bootTime = time.Unix(int64(stat.BootTime), 0)
	}

	return t, nil
}

// Refresh re-scans /proc and replaces the cached process table. memTotal is
// the host's total memory in bytes, used to compute MemPct.
func (t *Table) Refresh(memTotal uint64) error {
	procs, err := t.fs.AllProcs()
	if err != nil {
		return err
	}

	byPID := make(map[int]types.ProcessSample, len(procs))

	for _, p := range procs {
		sample, ok := t.sampleFor(p, memTotal)
		if !ok {
			continue
		}

		byPID[p.PID] = sample
	}

	t.mu.Lock()
	t.byPID = byPID
	t.memTotal = memTotal
	t.mu.Unlock()

	return nil
}

func (t *Table) sampleFor(p procfs.Proc, memTotal uint64) (types.ProcessSample, bool) {
	stat, err := p.Stat()
	if err != nil {
		return types.ProcessSample{}, false
	}

	comm, err := p.Comm()
	if err != nil {
		comm = stat.Comm
	}

	var memPct float64
	if memTotal > 0 {
		memPct = float64(stat.ResidentMemory()) / float64(memTotal) * 100.0
	}

	return types.ProcessSample{
		PID:       p.PID,
		PPID:      stat.PPID,
		User:      t.username(p.PID),
		Command:   comm,
		State:     stat.State,
		Threads:   stat.NumThreads,
		StartTime: t.bootTime.Add(time.Duration(stat.Starttime/clockTicksPerSecond) * time.Second),
		CPUTimeS:  stat.CPUTime(),
		MemPct:    memPct,
		RSSBytes:  uint64(stat.ResidentMemory()),
		VMSBytes:  uint64(stat.VSize),
		Nice:      stat.Nice,
		Priority:  stat.Priority,
	}, true
}

// username resolves the owning user for pid, falling back to the numeric
// uid string and finally "" when the process has already exited or
// permissions prevent reading /proc/[pid]/status.
func (t *Table) username(pid int) string {
	t.mu.Lock()
	if name, ok := t.usernames[pid]; ok {
		t.mu.Unlock()

		return name
	}
	t.mu.Unlock()

	proc, err := t.fs.Proc(pid)
	if err != nil {
		return ""
	}

	status, err := proc.NewStatus()
	if err != nil {
		return ""
	}

	name := status.UIDs[0]
	if u, err := user.LookupId(name); err == nil {
		name = u.Username
	}

	t.mu.Lock()
	t.usernames[pid] = name
	t.mu.Unlock()

	return name
}

// Merge applies the process enumerator's merge rule (spec §4.B): partial
// vendor-reported samples (identified by PID, with blank identity fields)
// are filled in from the OS table and marked UsesGPU; OS processes with no
// matching vendor sample are returned unmodified with UsesGPU false.
func (t *Table) Merge(partials []types.ProcessSample) []types.ProcessSample {
	t.mu.Lock()
	table := make(map[int]types.ProcessSample, len(t.byPID))

	for pid, s := range t.byPID {
		table[pid] = s
	}
	t.mu.Unlock()

	merged := make(map[int]types.ProcessSample, len(table))
	for pid, s := range table {
		merged[pid] = s
	}

	for _, partial := range partials {
		full, ok := table[partial.PID]
		if !ok {
			// Process reported by the vendor reader but already gone from
			// the OS table; report what the vendor reader gave us.
			partial.UsesGPU = true
			merged[partial.PID] = partial

			continue
		}

		full.UsesGPU = true
		full.DeviceUUID = partial.DeviceUUID
		full.DeviceID = partial.DeviceID
		full.GPUMemoryBytes = partial.GPUMemoryBytes
		full.GPUUtilizationPct = partial.GPUUtilizationPct
		merged[partial.PID] = full
	}

	out := make([]types.ProcessSample, 0, len(merged))
	for _, s := range merged {
		out = append(out, s)
	}

	return out
}
