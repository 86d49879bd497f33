package snapshot

import (
	"sort"

	"github.com/all-smi/all-smi/pkg/types"
)

// dedupeGPUs enforces P1: at most one DeviceSample per UUID. The first
// occurrence in input order wins, matching the teacher's map-then-reassemble
// pattern used for cgroup/slurm entity dedup.
func dedupeGPUs(in []types.DeviceSample) []types.DeviceSample {
	seen := make(map[string]struct{}, len(in))
	out := make([]types.DeviceSample, 0, len(in))

	for _, d := range in {
		if _, ok := seen[d.UUID]; ok {
			continue
		}

		seen[d.UUID] = struct{}{}

		out = append(out, d)
	}

	return out
}

// dedupeStorage enforces P2: at most one StorageSample per (host_id, mount).
func dedupeStorage(in []types.StorageSample) []types.StorageSample {
	type key struct {
		host  string
		mount string
	}

	seen := make(map[key]struct{}, len(in))
	out := make([]types.StorageSample, 0, len(in))

	for _, s := range in {
		k := key{host: s.HostID, mount: s.MountPoint}
		if _, ok := seen[k]; ok {
			continue
		}

		seen[k] = struct{}{}

		out = append(out, s)
	}

	return out
}

// buildTabs enforces P3: tabs[0] == "All", tabs[1:] is the lexicographically
// sorted, duplicate-free set of observed host ids.
func buildTabs(hostIDs []string) []string {
	set := make(map[string]struct{}, len(hostIDs))
	for _, h := range hostIDs {
		if h == "" {
			continue
		}

		set[h] = struct{}{}
	}

	tabs := make([]string, 0, len(set)+1)
	tabs = append(tabs, "All")

	rest := make([]string, 0, len(set))
	for h := range set {
		rest = append(rest, h)
	}

	sort.Strings(rest)

	return append(tabs, rest...)
}
