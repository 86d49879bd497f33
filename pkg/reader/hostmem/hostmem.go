// Package hostmem implements the host memory reader (spec §4.A.7) via
// prometheus/procfs's /proc/meminfo parser, the same source the teacher's
// cgroup collector uses to resolve "no limit" cgroup sentinels
// (pkg/collector/cgroup.go NewCgroupCollector).
package hostmem

import (
	"fmt"

	"github.com/prometheus/procfs"

	"github.com/all-smi/all-smi/pkg/types"
)

// Reader samples host memory from /proc/meminfo.
type Reader struct {
	fs procfs.FS
}

// New opens procfs at mountPoint.
func New(mountPoint string) (*Reader, error) {
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs: %w", err)
	}

	return &Reader{fs: fs}, nil
}

func kbToBytes(kb *uint64) uint64 {
	if kb == nil {
		return 0
	}

	return *kb * 1024
}

// Sample returns one MemorySample from the current /proc/meminfo contents.
func (r *Reader) Sample(hostID, hostname, instance string) (types.MemorySample, error) {
	info, err := r.fs.Meminfo()
	if err != nil {
		return types.MemorySample{}, fmt.Errorf("failed to read /proc/meminfo: %w", err)
	}

	total := kbToBytes(info.MemTotal)
	avail := kbToBytes(info.MemAvailable)
	free := kbToBytes(info.MemFree)
	buffers := kbToBytes(info.Buffers)
	cached := kbToBytes(info.Cached)
	used := total - free - buffers - cached

	var utilPct float64
	if total > 0 {
		utilPct = (1.0 - float64(avail)/float64(total)) * 100.0
	}

	return types.MemorySample{
		HostID:         hostID,
		Hostname:       hostname,
		Instance:       instance,
		Total:          total,
		Used:           used,
		Available:      avail,
		Free:           free,
		Buffers:        buffers,
		Cached:         cached,
		SwapTotal:      kbToBytes(info.SwapTotal),
		SwapUsed:       kbToBytes(info.SwapTotal) - kbToBytes(info.SwapFree),
		SwapFree:       kbToBytes(info.SwapFree),
		UtilizationPct: utilPct,
	}, nil
}
