// Package cgroup implements the container-info facade (spec §4.A.6): a
// single Detect operation that reports whether the current process is
// confined by a container/cgroup and, if so, its effective CPU count and
// memory limit. Detection follows the teacher's cgroup v1/v2 mode-switch
// pattern (pkg/collector/cgroup.go) but targets the caller's own cgroup
// rather than enumerating per-job cgroups under a resource manager.
package cgroup

import (
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/containerd/cgroups/v3"
	"github.com/containerd/cgroups/v3/cgroup1"
	"github.com/containerd/cgroups/v3/cgroup2"
)

const (
	milliCPUToCPU = 1000
	sharesPerCPU  = 1024
	minShares     = 2
	maxShares     = 262144
)

// Info is the effective resource view for the current process.
type Info struct {
	Containerized bool
	CPUCount      float64 // effective CPU count; 0 means "could not determine"
	MemoryLimit   uint64  // bytes; 0 means "no limit" or undetermined
}

// Detect inspects /.dockerenv, the in-cluster service-account mount, and
// /proc/self/cgroup to determine whether the process runs inside a
// container, and computes its effective CPU/memory limits.
func Detect() Info {
	info := Info{Containerized: isContainerized()}

	path, ok := selfCgroupPath()
	if !ok {
		return info
	}

	if cgroups.Mode() == cgroups.Unified {
		info.CPUCount = cpuCountV2(path)
		info.MemoryLimit = memoryLimitV2(path)
	} else {
		info.CPUCount = cpuCountV1(path)
		info.MemoryLimit = memoryLimitV1(path)
	}

	return info
}

func isContainerized() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	if _, err := os.Stat("/var/run/secrets/kubernetes.io/serviceaccount"); err == nil {
		return true
	}

	data, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return false
	}

	s := string(data)

	return strings.Contains(s, "docker") || strings.Contains(s, "kubepods") ||
		strings.Contains(s, "containerd") || strings.Contains(s, ".scope")
}

// selfCgroupPath returns this process's cgroup path relative to the
// cgroup root, from the unified (single-line) entry in /proc/self/cgroup.
func selfCgroupPath() (string, bool) {
	data, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return "", false
	}

	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		fields := strings.SplitN(line, ":", 3)
		if len(fields) != 3 {
			continue
		}

		// cgroup v2 has a single entry with an empty controller list;
		// cgroup v1 has one line per controller, any of which works for a
		// path since all subsystems of a process share structure in
		// practice for the purpose of discovering the leaf cgroup.
		if fields[1] == "" || strings.Contains(fields[1], "cpu") {
			return fields[2], true
		}
	}

	return "", false
}

func cpuCountV2(path string) float64 {
	m, err := cgroup2.Load(path)
	if err != nil {
		return 0
	}

	stat, err := m.Stat()
	if err != nil || stat.GetCPU() == nil {
		return 0
	}

	if quota, period := readCPUMaxV2(path); period > 0 && quota > 0 {
		return float64(quota) / float64(period)
	}

	return 0
}

func readCPUMaxV2(path string) (quota, period int64) {
	data, err := os.ReadFile(cgroupFSRoot + path + "/cpu.max")
	if err != nil {
		return 0, 0
	}

	fields := strings.Fields(strings.TrimSpace(string(data)))
	if len(fields) != 2 {
		return 0, 0
	}

	if fields[0] == "max" {
		return 0, 0
	}

	q, err1 := strconv.ParseInt(fields[0], 10, 64)
	p, err2 := strconv.ParseInt(fields[1], 10, 64)

	if err1 != nil || err2 != nil {
		return 0, 0
	}

	return q, p
}

func memoryLimitV2(path string) uint64 {
	data, err := os.ReadFile(cgroupFSRoot + path + "/memory.max")
	if err != nil {
		return 0
	}

	s := strings.TrimSpace(string(data))
	if s == "max" {
		return 0
	}

	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}

	return v
}

func cpuCountV1(path string) float64 {
	ctrl, err := cgroup1.Load(cgroup1.StaticPath(path))
	if err != nil {
		return 0
	}

	if _, err := ctrl.Stat(cgroup1.IgnoreNotExist); err != nil {
		return 0
	}

	if quota, period := readCPUQuotaV1(path); period > 0 && quota > 0 {
		return float64(quota) / float64(period)
	}

	return cpuCountFromSharesV1(path)
}

func readCPUQuotaV1(path string) (quota, period int64) {
	q, err := readInt64(cgroupFSRoot + "/cpu" + path + "/cpu.cfs_quota_us")
	if err != nil || q <= 0 {
		return 0, 0
	}

	p, err := readInt64(cgroupFSRoot + "/cpu" + path + "/cpu.cfs_period_us")
	if err != nil || p <= 0 {
		return 0, 0
	}

	return q, p
}

func cpuCountFromSharesV1(path string) float64 {
	shares, err := readInt64(cgroupFSRoot + "/cpu" + path + "/cpu.shares")
	if err != nil {
		return 0
	}

	if shares < minShares {
		shares = minShares
	}

	if shares > maxShares {
		shares = maxShares
	}

	return float64(shares*milliCPUToCPU/sharesPerCPU) / milliCPUToCPU
}

func memoryLimitV1(path string) uint64 {
	v, err := readInt64(cgroupFSRoot + "/memory" + path + "/memory.limit_in_bytes")
	if err != nil || v <= 0 || uint64(v) == math.MaxUint64 {
		return 0
	}

	return uint64(v)
}

const cgroupFSRoot = "/sys/fs/cgroup"

func readInt64(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}
