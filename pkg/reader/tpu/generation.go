package tpu

import "strings"

// Generation enumerates the Google TPU hardware generations this reader
// recognizes, each with its own HBM size, TensorCore count and memory type
// (ported from the original accelerator's chip-version table).
type Generation int

const (
	GenUnknown Generation = iota
	GenV2
	GenV3
	GenV4
	GenV5e
	GenV5p
	GenV6e
	GenV6Trillium
	GenV7Ironwood
	GenV7x
)

const gib = 1024 * 1024 * 1024

// HBMSizeBytes returns the default HBM capacity for the generation, used
// when the CLI does not report a memory_total.
func (g Generation) HBMSizeBytes() uint64 {
	switch g {
	case GenV2:
		return 8 * gib
	case GenV3:
		return 16 * gib
	case GenV4:
		return 32 * gib
	case GenV5e:
		return 16 * gib
	case GenV5p:
		return 95 * gib
	case GenV6e:
		return 16 * gib
	case GenV6Trillium:
		return 32 * gib
	case GenV7Ironwood, GenV7x:
		return 192 * gib
	default:
		return 16 * gib
	}
}

// TensorCores returns the TensorCore count per chip for the generation.
func (g Generation) TensorCores() int {
	switch g {
	case GenV5e, GenV6e, GenUnknown:
		return 1
	default:
		return 2
	}
}

// DisplayName returns the human-readable name used as the device name.
func (g Generation) DisplayName() string {
	switch g {
	case GenV2:
		return "Google TPU v2"
	case GenV3:
		return "Google TPU v3"
	case GenV4:
		return "Google TPU v4"
	case GenV5e:
		return "Google TPU v5e"
	case GenV5p:
		return "Google TPU v5p"
	case GenV6e:
		return "Google TPU v6e"
	case GenV6Trillium:
		return "Google TPU v6 Trillium"
	case GenV7Ironwood:
		return "Google TPU v7 Ironwood 192GB HBM3e"
	case GenV7x:
		return "Google TPU v7x"
	default:
		return "Google TPU"
	}
}

// MemoryType returns the HBM generation name.
func (g Generation) MemoryType() string {
	switch g {
	case GenV7Ironwood, GenV7x:
		return "HBM3e"
	case GenV5p, GenV6e, GenV6Trillium:
		return "HBM2e"
	default:
		return "HBM2"
	}
}

// GenerationFromChipVersion parses a generation from a free-form chip
// version or accelerator-type string (e.g. "v6e-16", "v5litepod-4").
// Order matters: v6e must be checked before v6, v5p before v5e, to avoid
// substring false positives.
func GenerationFromChipVersion(version string) Generation {
	v := strings.ToLower(version)

	switch {
	case strings.Contains(v, "v7x"):
		return GenV7x
	case strings.Contains(v, "v7"), strings.Contains(v, "ironwood"):
		return GenV7Ironwood
	case strings.Contains(v, "v6e"):
		return GenV6e
	case strings.Contains(v, "v6"), strings.Contains(v, "trillium"):
		return GenV6Trillium
	case strings.Contains(v, "v5p"):
		return GenV5p
	case strings.Contains(v, "v5e"), strings.Contains(v, "v5lite"):
		return GenV5e
	case strings.Contains(v, "v4"):
		return GenV4
	case strings.Contains(v, "v3"), strings.Contains(v, "v2/v3"):
		return GenV3
	case strings.Contains(v, "v2"):
		return GenV2
	default:
		return GenUnknown
	}
}

// pciDeviceIDs maps Google TPU PCI device IDs to chip version strings
// (from tpu-info/device.py's device table).
var pciDeviceIDs = map[string]string{
	"0x0027": "v2/v3",
	"0x005e": "v4",
	"0x0063": "v5e",
	"0x0062": "v5p",
	"0x006f": "v6e",
	"0x0076": "v7x",
}

// ChipVersionFromPCIDeviceID maps a sysfs PCI device-id string to a chip
// version, tolerating IDs with or without the "0x" prefix.
func ChipVersionFromPCIDeviceID(id string) string {
	id = strings.ToLower(id)
	if v, ok := pciDeviceIDs[id]; ok {
		return v
	}

	if v, ok := pciDeviceIDs["0x"+id]; ok {
		return v
	}

	return "unknown"
}
