package snapshot

import (
	"sort"
	"strings"

	"github.com/all-smi/all-smi/pkg/types"
)

// sortProcesses orders procs by criterion/direction in place and returns it.
// Sorting is stable so repeated calls with the same criterion and direction
// yield the same order (P5).
func sortProcesses(procs []types.ProcessSample, criterion types.SortCriterion, dir types.SortDirection) []types.ProcessSample {
	less := func(i, j int) bool {
		a, b := procs[i], procs[j]

		switch criterion {
		case types.SortMemory:
			return a.RSSBytes < b.RSSBytes
		case types.SortCPU:
			return a.CPUPct < b.CPUPct
		case types.SortGPUMem:
			return a.GPUMemoryBytes < b.GPUMemoryBytes
		case types.SortUser:
			return strings.Compare(a.User, b.User) < 0
		case types.SortPID:
			fallthrough
		default:
			return a.PID < b.PID
		}
	}

	sort.SliceStable(procs, func(i, j int) bool {
		if dir == types.SortDesc {
			return less(j, i)
		}

		return less(i, j)
	})

	return procs
}
