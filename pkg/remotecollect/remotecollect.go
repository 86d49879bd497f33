// Package remotecollect implements the remote scrape fabric's collector
// loop (spec §4.D): on the same ticker-governed cadence as localcollect, it
// runs one scrape.Fabric pass over the configured agent URLs, merges the
// results and publishes them into the snapshot store, recording each host's
// ConnectionStatus as it goes. Unlike localcollect it never enumerates
// processes: process information is not collected remotely.
package remotecollect

import (
	"context"
	"log/slog"
	"time"

	"github.com/all-smi/all-smi/pkg/hostfile"
	"github.com/all-smi/all-smi/pkg/scrape"
	"github.com/all-smi/all-smi/pkg/snapshot"
)

// Collector is the sole writer of one snapshot.Store in remote mode.
type Collector struct {
	store  *snapshot.Store
	logger *slog.Logger
	fabric *scrape.Fabric

	urls     []string
	interval time.Duration // explicit --interval; 0 means adaptive
}

// New returns a Collector scraping urls on interval (0 selects the adaptive
// step function, driven by len(urls) the same way localcollect drives it by
// its nodeCount callback).
func New(store *snapshot.Store, logger *slog.Logger, urls []string, interval time.Duration) *Collector {
	return &Collector{store: store, logger: logger, fabric: scrape.New(), urls: urls, interval: interval}
}

// Hosts merges --hosts and a parsed --hostfile, per spec §6 "additive".
// Both sources accept the same "host:port" or full-URL shorthand.
func Hosts(hosts []string, hostfilePath string) ([]string, error) {
	urls := make([]string, 0, len(hosts))
	for _, h := range hosts {
		urls = append(urls, hostfile.ToMetricsURL(h))
	}

	if hostfilePath != "" {
		fileURLs, err := hostfile.Parse(hostfilePath)
		if err != nil {
			return nil, err
		}

		urls = append(urls, fileURLs...)
	}

	return urls, nil
}

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

	return stepInterval(len(c.urls))
}

// Run drives the scrape loop until ctx is cancelled, governing time between
// tick starts the same way localcollect.Collector.Run does.
func (c *Collector) Run(ctx context.Context) {
	c.runOnce(ctx)

	ticker := time.NewTicker(c.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			c.runOnce(ctx)

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

func (c *Collector) runOnce(ctx context.Context) {
	results := c.fabric.ScrapeAll(ctx, c.urls)

	hostIDs := make([]string, 0, len(results))

	for _, r := range results {
		errMsg := ""
		if r.Err != nil {
			errMsg = r.Err.Error()
		}

		hostID := c.fabric.CanonicalHost(r.URL)
		hostIDs = append(hostIDs, hostID)

		c.store.UpdateConnectionStatus(hostID, r.Success, errMsg)

		if !r.Success {
			c.logger.Warn("remote scrape failed", "url", r.URL, "host", hostID, "err", r.Err)
		}
	}

	gpus, cpus, mem, storage, _ := scrape.Merge(results)

	c.store.Notifications().Update()

	c.store.Publish(snapshot.Tick{
		GPUs:    gpus,
		CPUs:    cpus,
		Memory:  mem,
		Storage: storage,
		HostIDs: hostIDs,
	})
}
