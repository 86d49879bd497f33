// Package localcollect implements the snapshot collector (spec §4.C): the
// sole writer of the snapshot store, running in two modes — a
// parallel-fan-out first iteration with one-line progress logging, and a
// sequential, predictable-cost steady state. The run loop itself follows
// the teacher's ticker-driven update loop (cmd/batchjob_stats_db), adapted
// so the ticker governs time between tick starts rather than tick ends.
package localcollect

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/all-smi/all-smi/pkg/process"
	"github.com/all-smi/all-smi/pkg/reader"
	"github.com/all-smi/all-smi/pkg/reader/cgroup"
	"github.com/all-smi/all-smi/pkg/reader/chassis"
	"github.com/all-smi/all-smi/pkg/reader/hostcpu"
	"github.com/all-smi/all-smi/pkg/reader/hostmem"
	"github.com/all-smi/all-smi/pkg/reader/storage"
	"github.com/all-smi/all-smi/pkg/snapshot"
	"github.com/all-smi/all-smi/pkg/types"
)

// Identity is the local host's stable identifiers, stamped onto every
// sample this collector produces.
type Identity struct {
	HostID   string
	Hostname string
	Instance string
}

// Collector is the sole writer of one snapshot.Store: it runs device
// readers, the CPU/memory/storage readers, the process enumerator, and an
// optional chassis reader, merges their output into one Tick, and publishes
// it once per interval.
type Collector struct {
	store    *snapshot.Store
	identity Identity
	logger   *slog.Logger

	devices []reader.DeviceReader
	cpu     *hostcpu.Reader
	mem     *hostmem.Reader
	disk    *storage.Reader
	procs   *process.Table
	bmc     *chassis.Reader // optional; nil when no Redfish endpoint configured

	interval time.Duration // explicit --interval; 0 means adaptive
	nodeCount func() int

	first sync.Once
}

// New returns a Collector wired to store, sampling the given readers under
// identity. bmc may be nil. interval of 0 selects the adaptive step
// function driven by nodeCount.
func New(
	store *snapshot.Store,
	identity Identity,
	logger *slog.Logger,
	devices []reader.DeviceReader,
	cpu *hostcpu.Reader,
	mem *hostmem.Reader,
	disk *storage.Reader,
	procs *process.Table,
	bmc *chassis.Reader,
	interval time.Duration,
	nodeCount func() int,
) *Collector {
	return &Collector{
		store: store, identity: identity, logger: logger,
		devices: devices, cpu: cpu, mem: mem, disk: disk, procs: procs, bmc: bmc,
		interval: interval, nodeCount: nodeCount,
	}
}

// stepInterval implements the adaptive tick-pacing step function (spec
// §4.C): 1-10 nodes -> 2s, 11-50 -> 3s, 51-100 -> 4s, 101-200 -> 5s, else 6s.
func stepInterval(nodes int) time.Duration {
	switch {
	case nodes <= 10:
		return 2 * time.Second
	case nodes <= 50:
		return 3 * time.Second
	case nodes <= 100:
		return 4 * time.Second
	case nodes <= 200:
		return 5 * time.Second
	default:
		return 6 * time.Second
	}
}

func (c *Collector) tickInterval() time.Duration {
	if c.interval > 0 {
		return c.interval
	}

	return stepInterval(c.nodeCount())
}

// Run drives the collect loop until ctx is cancelled. The interval governs
// time between tick starts: a tick that overruns the interval does not
// delay the next one beyond Go's standard single-pending-tick ticker
// behavior.
func (c *Collector) Run(ctx context.Context) {
	c.runOnce(ctx, true)

	ticker := time.NewTicker(c.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			c.runOnce(ctx, false)

			if c.interval <= 0 {
				// Subtract this tick's own run time so the next tick starts
				// one interval after this one started.
				next := c.tickInterval() - time.Since(start)
				if next <= 0 {
					next = time.Millisecond
				}

				ticker.Reset(next)
			}
		}
	}
}

// runOnce executes one tick. On firstIteration it fans the subtasks out in
// parallel and logs one progress line per subtask as it completes;
// otherwise it runs them sequentially for predictable per-tick cost.
func (c *Collector) runOnce(ctx context.Context, firstIteration bool) {
	var (
		gpus    []types.DeviceSample
		partial []types.ProcessSample
		cpus    []types.CpuSample
		mem     []types.MemorySample
		disk    []types.StorageSample
		chas    []types.ChassisSample
	)

	collectDevices := func() {
		for _, d := range c.devices {
			ds, err := d.GetDeviceInfo()
			if err == nil {
				gpus = append(gpus, stampDevices(ds, c.identity)...)
			}

			ps, err := d.GetProcessInfo()
			if err == nil {
				partial = append(partial, ps...)
			}
		}

		if firstIteration {
			c.logger.Info("collected device readers", "count", len(c.devices))
		}
	}

	collectCPU := func() {
		if c.cpu == nil {
			return
		}

		sample, err := c.cpu.Sample(c.identity.HostID, c.identity.Hostname, c.identity.Instance)
		if err == nil {
			cpus = []types.CpuSample{sample}
		}

		if firstIteration {
			c.logger.Info("collected host cpu")
		}
	}

	collectMem := func() {
		if c.mem == nil {
			return
		}

		sample, err := c.mem.Sample(c.identity.HostID, c.identity.Hostname, c.identity.Instance)
		if err == nil {
			mem = []types.MemorySample{sample}
		}

		if firstIteration {
			c.logger.Info("collected host memory")
		}
	}

	collectDisk := func() {
		if c.disk == nil {
			return
		}

		samples, err := c.disk.Sample(c.identity.HostID, c.identity.Hostname, c.identity.Instance)
		if err == nil {
			disk = samples
		}

		if firstIteration {
			c.logger.Info("collected storage", "mounts", len(disk))
		}
	}

	collectChassis := func() {
		if c.bmc == nil {
			return
		}

		samples, err := c.bmc.Sample(c.identity.HostID, c.identity.Hostname)
		if err == nil {
			chas = samples
		}

		if firstIteration {
			c.logger.Info("collected chassis")
		}
	}

	if firstIteration {
		var wg sync.WaitGroup

		for _, fn := range []func(){collectDevices, collectCPU, collectMem, collectDisk, collectChassis} {
			wg.Add(1)

			go func(fn func()) {
				defer wg.Done()
				fn()
			}(fn)
		}

		wg.Wait()
	} else {
		collectDevices()
		collectCPU()
		collectMem()
		collectDisk()
		collectChassis()
	}

	var memTotal uint64
	if len(mem) > 0 {
		memTotal = mem[0].Total
	}

	if c.procs != nil {
		if err := c.procs.Refresh(memTotal); err != nil {
			c.store.Notifications().Warning("process_enumeration_failed", err.Error())
		}
	}

	var merged []types.ProcessSample
	if c.procs != nil {
		merged = c.procs.Merge(partial)
	} else {
		merged = partial
	}

	c.store.Notifications().Update()

	c.store.Publish(snapshot.Tick{
		GPUs:      gpus,
		CPUs:      cpus,
		Memory:    mem,
		Storage:   disk,
		Processes: merged,
		Chassis:   chas,
		HostIDs:   []string{c.identity.HostID},
	})
}

func stampDevices(ds []types.DeviceSample, id Identity) []types.DeviceSample {
	out := make([]types.DeviceSample, len(ds))

	for i, d := range ds {
		d.HostID = id.HostID
		d.Hostname = id.Hostname
		d.Instance = id.Instance
		d.Timestamp = time.Now()
		out[i] = d
	}

	return out
}

// Detect returns a cgroup.Info describing the current process's container
// confinement, for informational display alongside host CPU/memory.
func Detect() cgroup.Info {
	return cgroup.Detect()
}
