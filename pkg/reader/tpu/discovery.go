package tpu

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/all-smi/all-smi/internal/osexec"
)

// deviceMeta is the result of one-time device discovery (spec §4.A
// "static per-device metadata fetched exactly once").
type deviceMeta struct {
	index           uint32
	chipVersion     string
	uuid            string
	coreCount       uint32
	memoryTotal     uint64
	acceleratorType string
	source          string
}

const accelGlob = "/dev/accel*"

// discover runs the sysfs -> vfio -> environment fallback chain exactly
// once per process; callers cache the result.
func discover() []deviceMeta {
	if devs := scanSysfs(); len(devs) > 0 {
		return devs
	}

	if devs := scanVFIO(); devs != nil {
		return devs
	}

	if dev, ok := scanEnvironment(); ok {
		return []deviceMeta{dev}
	}

	return nil
}

// scanSysfs walks /sys/class/accel (or /dev/accel* as a presence check) and
// maps each PCI device id to a chip version.
func scanSysfs() []deviceMeta {
	matches, err := filepath.Glob(accelGlob)
	if err != nil || len(matches) == 0 {
		return nil
	}

	devs := make([]deviceMeta, 0, len(matches))

	for i, m := range matches {
		idx := uint32(i)
		if n := strings.TrimPrefix(filepath.Base(m), "accel"); n != "" {
			if v, err := strconv.Atoi(n); err == nil {
				idx = uint32(v)
			}
		}

		deviceIDPath := filepath.Join("/sys/class/accel", filepath.Base(m), "device", "device")

		chipVersion := "unknown"
		if raw, err := os.ReadFile(deviceIDPath); err == nil {
			chipVersion = ChipVersionFromPCIDeviceID(strings.TrimSpace(string(raw)))
		}

		gen := GenerationFromChipVersion(chipVersion)

		devs = append(devs, deviceMeta{
			index:           idx,
			chipVersion:     chipVersion,
			uuid:            "TPU-" + strconv.Itoa(int(idx)),
			coreCount:       1,
			memoryTotal:     gen.HBMSizeBytes(),
			acceleratorType: "TPU " + chipVersion,
			source:          "sysfs",
		})
	}

	return devs
}

// scanVFIO checks /dev/vfio for numbered device nodes, the pattern used by
// v6e and newer TPUs, and corroborates with the CLI or TPU env vars before
// treating the host as a TPU VM.
func scanVFIO() []deviceMeta {
	entries, err := os.ReadDir("/dev/vfio")
	if err != nil {
		return nil
	}

	count := 0

	for _, e := range entries {
		if _, err := strconv.Atoi(e.Name()); err == nil {
			count++
		}
	}

	if count == 0 {
		return nil
	}

	chipVersion, ok := accelTypeFromCLI()
	if !ok {
		if v, present := os.LookupEnv("TPU_ACCELERATOR_TYPE"); present {
			chipVersion, ok = v, true
		}
	}

	hasTPUEnv := envAny("TPU_CHIPS_PER_HOST_BOUNDS", "TPU_HOST_BOUNDS", "TPU_NAME")
	if !ok && !hasTPUEnv && !libtpuAvailable() {
		return nil
	}

	if chipVersion == "" {
		chipVersion = "unknown"
	}

	gen := GenerationFromChipVersion(chipVersion)
	devs := make([]deviceMeta, 0, count)

	for i := 0; i < count; i++ {
		devs = append(devs, deviceMeta{
			index:           uint32(i),
			chipVersion:     chipVersion,
			uuid:            "TPU-" + strconv.Itoa(i),
			coreCount:       1,
			memoryTotal:     gen.HBMSizeBytes(),
			acceleratorType: "TPU " + chipVersion,
			source:          "vfio",
		})
	}

	return devs
}

// scanEnvironment treats TPU-VM-style environment variables as evidence of
// a single multi-chip TPU slice when no device nodes are visible to this
// process (common inside a container).
func scanEnvironment() (deviceMeta, bool) {
	tpuName := os.Getenv("TPU_NAME")
	accelType := os.Getenv("TPU_ACCELERATOR_TYPE")
	chipsPerHost := os.Getenv("TPU_CHIPS_PER_HOST_BOUNDS")

	if tpuName == "" && accelType == "" && chipsPerHost == "" &&
		!envAny("TPU_WORKER_ID", "TPU_WORKER_HOSTNAMES") {
		return deviceMeta{}, false
	}

	chipVersion, ok := accelTypeFromCLI()
	if !ok && accelType != "" {
		chipVersion = parseAcceleratorType(accelType)
	}

	if chipVersion == "" {
		chipVersion = "unknown"
	}

	gen := GenerationFromChipVersion(chipVersion)

	chipCount := uint32(1)

	if chipsPerHost != "" {
		parts := strings.Split(chipsPerHost, ",")
		if len(parts) == 3 {
			var dims [3]uint32

			ok := true

			for i, p := range parts {
				v, err := strconv.Atoi(strings.TrimSpace(p))
				if err != nil {
					ok = false

					break
				}

				dims[i] = uint32(v)
			}

			if ok {
				chipCount = dims[0] * dims[1] * dims[2]
			}
		}
	}

	uuid := tpuName
	if uuid == "" {
		uuid = "TPU-VM"
	}

	return deviceMeta{
		index:           0,
		chipVersion:     chipVersion,
		uuid:            uuid,
		coreCount:       chipCount,
		memoryTotal:     gen.HBMSizeBytes() * uint64(chipCount),
		acceleratorType: "TPU " + chipVersion,
		source:          "env",
	}, true
}

func envAny(keys ...string) bool {
	for _, k := range keys {
		if _, ok := os.LookupEnv(k); ok {
			return true
		}
	}

	return false
}

func parseAcceleratorType(accelType string) string {
	l := strings.ToLower(accelType)

	switch {
	case strings.Contains(l, "v7"), strings.Contains(l, "ironwood"):
		return "v7"
	case strings.Contains(l, "v6e"):
		return "v6e"
	case strings.Contains(l, "v6"), strings.Contains(l, "trillium"):
		return "v6"
	case strings.Contains(l, "v5p"):
		return "v5p"
	case strings.Contains(l, "v5e"), strings.Contains(l, "v5lite"):
		return "v5e"
	case strings.Contains(l, "v4"):
		return "v4"
	case strings.Contains(l, "v3"):
		return "v3"
	case strings.Contains(l, "v2"):
		return "v2"
	default:
		return accelType
	}
}

// accelTypeFromCLI asks `tpu-info -v` for the accelerator type line, the
// fastest CLI probe that avoids the heavier JSON metrics path.
func accelTypeFromCLI() (string, bool) {
	out, err := osexec.ExecuteWithTimeout("tpu-info", []string{"-v"}, 3, nil)
	if err != nil {
		return "", false
	}

	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, "accelerator type:") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1]), true
			}
		}
	}

	return "", false
}

// libtpuAvailable checks the well-known install locations for libtpu.so.
func libtpuAvailable() bool {
	candidates := []string{
		"/usr/lib/libtpu.so",
		"/usr/local/lib/libtpu.so",
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return true
		}
	}

	return false
}
