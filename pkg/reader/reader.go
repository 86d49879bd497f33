// Package reader defines the device-reader capability contract (spec §4.A)
// and the startup probe that selects which vendor-specific readers to
// activate on this host.
//
// "A device reader" is any value implementing DeviceReader: inheritance is
// replaced by this small capability interface, and the concrete variants are
// stored as a dynamic, heterogeneous collection (spec §9 "inheritance
// replaced by capability variants").
package reader

import (
	"errors"
	"log/slog"

	"github.com/all-smi/all-smi/pkg/types"
)

// ErrNoData is returned by a reader with no hardware present or a
// recoverable read failure. Callers must treat it as "empty, not fatal".
var ErrNoData = errors.New("reader returned no data")

// DeviceReader is the contract every vendor-specific probe implements.
// Implementations must be safe for concurrent Get* calls; they may hold
// internal caches behind a mutex.
type DeviceReader interface {
	// Name identifies the reader for logs and notification reasons.
	Name() string
	// GetDeviceInfo returns one DeviceSample per device visible to this
	// reader. It must never panic; on any failure it returns (nil, err)
	// with err wrapping ErrNoData or a descriptive cause, and the caller
	// (the local collector) downgrades that to an empty sequence.
	GetDeviceInfo() ([]types.DeviceSample, error)
	// GetProcessInfo returns partial ProcessSample entries (GPU residency
	// only; identity fields such as User/Command are left blank for the
	// process enumerator to fill in).
	GetProcessInfo() ([]types.ProcessSample, error)
	// Close releases any resources owned by the reader (subprocess
	// handles, FFI caches).
	Close() error
}

// Probe registers the readers whose hardware is present on this host. It
// runs the detectors in registration order; vendor packages register from
// init(), so that is the initialization order of the vendor packages linked
// into the binary (pkg/app imports them). There are no Furiosa or
// Rebellions detectors.
func Probe(logger *slog.Logger, notifications Notifier) []DeviceReader {
	var readers []DeviceReader

	for _, candidate := range probeFuncs {
		r, ok := candidate(logger, notifications)
		if ok {
			readers = append(readers, r)
		}
	}

	return readers
}

// Notifier is the subset of notify.Queue a reader needs: it must not depend
// on the notify package directly to avoid an import cycle with callers that
// construct readers before the snapshot exists.
type Notifier interface {
	Warning(reason, message string)
	Status(reason, message string)
}

// probeDetector tries to construct a reader for one vendor; ok is false when
// the hardware is silently absent (spec: "probing is silent on absence").
type probeDetector func(logger *slog.Logger, n Notifier) (DeviceReader, bool)

// probeFuncs is populated by each vendor subpackage's init-time registration
// via RegisterProbe, keeping this file free of vendor-specific build tags.
var probeFuncs []probeDetector

// RegisterProbe adds a vendor detector to the fixed probe order. Vendor
// packages call this from an init() func; registration order across
// packages is therefore link order, so Probe additionally stable-sorts
// nothing — callers that need a deterministic cross-platform order should
// rely on the fact that at most one accelerator vendor's detector succeeds
// per host in practice (NVIDIA/Jetson/Apple/TPU/Tenstorrent are mutually
// exclusive hardware).
func RegisterProbe(fn probeDetector) {
	probeFuncs = append(probeFuncs, fn)
}
