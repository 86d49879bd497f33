// Package storage implements the mounted-filesystem reader (spec §4.A.8).
// Mount points are enumerated from /proc/mounts, the same file the teacher's
// other procfs-based collectors read from directly, and sized via
// syscall.Statfs, following the disk-usage pattern used elsewhere in the
// example pack (internal-recorder's readDiskUsage).
package storage

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
	"syscall"

	"github.com/all-smi/all-smi/pkg/types"
)

// excludedFSTypes are never reported regardless of the configured regex.
var excludedFSTypes = map[string]bool{
	"proc": true, "sysfs": true, "devtmpfs": true, "devpts": true,
	"tmpfs": true, "overlay": true, "squashfs": true, "cgroup": true,
	"cgroup2": true, "mqueue": true, "pstore": true, "bpf": true,
	"tracefs": true, "debugfs": true, "securityfs": true, "autofs": true,
}

// defaultExcludePrefixes are mount points never reported by default.
var defaultExcludePrefixes = []string{"/proc", "/sys", "/dev", "/run/docker"}

// Reader samples mounted filesystem capacity from /proc/mounts.
type Reader struct {
	mountsPath  string
	excludeRe   *regexp.Regexp
}

// New returns a storage reader. excludeRegex, when non-empty, additionally
// excludes any mount point matching it. No command-line flag sets it;
// pkg/app passes an empty pattern.
func New(mountPoint, excludeRegex string) (*Reader, error) {
	r := &Reader{mountsPath: mountPoint + "/mounts"}

	if excludeRegex != "" {
		re, err := regexp.Compile(excludeRegex)
		if err != nil {
			return nil, fmt.Errorf("invalid storage exclude-mount-regex: %w", err)
		}

		r.excludeRe = re
	}

	return r, nil
}

type mountEntry struct {
	mountPoint string
	fsType     string
}

func (r *Reader) readMounts() ([]mountEntry, error) {
	f, err := os.Open(r.mountsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", r.mountsPath, err)
	}
	defer f.Close()

	var entries []mountEntry

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}

		entries = append(entries, mountEntry{mountPoint: fields[1], fsType: fields[2]})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.mountsPath, err)
	}

	return entries, nil
}

func (r *Reader) excluded(m mountEntry) bool {
	if excludedFSTypes[m.fsType] {
		return true
	}

	for _, p := range defaultExcludePrefixes {
		if strings.HasPrefix(m.mountPoint, p) {
			return true
		}
	}

	if r.excludeRe != nil && r.excludeRe.MatchString(m.mountPoint) {
		return true
	}

	return false
}

// Sample returns one StorageSample per eligible mounted filesystem.
func (r *Reader) Sample(hostID, hostname, instance string) ([]types.StorageSample, error) {
	mounts, err := r.readMounts()
	if err != nil {
		return nil, err
	}

	samples := make([]types.StorageSample, 0, len(mounts))
	idx := 0

	for _, m := range mounts {
		if r.excluded(m) {
			continue
		}

		var stat syscall.Statfs_t
		if err := syscall.Statfs(m.mountPoint, &stat); err != nil {
			continue
		}

		total := uint64(stat.Blocks) * uint64(stat.Bsize)
		if total == 0 {
			continue
		}

		avail := uint64(stat.Bavail) * uint64(stat.Bsize)

		samples = append(samples, types.StorageSample{
			HostID:         hostID,
			Hostname:       hostname,
			Instance:       instance,
			MountPoint:     m.mountPoint,
			TotalBytes:     total,
			AvailableBytes: avail,
			Index:          idx,
		})
		idx++
	}

	return samples, nil
}
