// Package scrape implements the remote scrape fabric (spec §4.D): for each
// configured remote agent URL, periodically GET /metrics, parse the
// Prometheus-format body, and merge the resulting samples into the
// snapshot. Concurrency is capped by a semaphore with staggered task start,
// each task retried up to three times with fixed backoff.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/all-smi/all-smi/pkg/types"
)

var retryBackoffs = []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 150 * time.Millisecond}

const maxConcurrency = 64

// Result is one host's scrape outcome for one tick.
type Result struct {
	URL     string
	Host    ParsedHost
	Success bool
	Err     error
}

// Fabric runs one tick's worth of remote scrapes.
type Fabric struct {
	client *http.Client
	parser *Parser
}

// New returns a Fabric using the spec-mandated HTTP client configuration.
func New() *Fabric {
	return &Fabric{client: newHTTPClient(), parser: NewParser()}
}

// ScrapeAll fetches /metrics from every url concurrently, bounded by
// min(len(urls), 64) in-flight requests, each task staggered by
// (i*500ms)/len(urls) before its first attempt.
func (f *Fabric) ScrapeAll(ctx context.Context, urls []string) []Result {
	n := len(urls)
	if n == 0 {
		return nil
	}

	concurrency := n
	if concurrency > maxConcurrency {
		concurrency = maxConcurrency
	}

	sem := make(chan struct{}, concurrency)
	results := make([]Result, n)

	var wg sync.WaitGroup

	for i, url := range urls {
		wg.Add(1)

		go func(i int, url string) {
			defer wg.Done()

			stagger := time.Duration(i) * 500 * time.Millisecond / time.Duration(n)

			select {
			case <-time.After(stagger):
			case <-ctx.Done():
				results[i] = Result{URL: url, Err: ctx.Err()}

				return
			}

			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = f.scrapeOne(ctx, url)
		}(i, url)
	}

	wg.Wait()

	return results
}

func (f *Fabric) scrapeOne(ctx context.Context, url string) Result {
	var lastErr error

	for attempt := 0; attempt < len(retryBackoffs)+1; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryBackoffs[attempt-1]):
			case <-ctx.Done():
				return Result{URL: url, Err: ctx.Err()}
			}
		}

		host, err := f.attempt(ctx, url)
		if err == nil {
			return Result{URL: url, Host: host, Success: true}
		}

		lastErr = err
	}

	return Result{URL: url, Err: lastErr}
}

// CanonicalHost returns the cached canonical instance name learned for url,
// falling back to url itself before any scrape has succeeded.
func (f *Fabric) CanonicalHost(url string) string {
	return f.parser.CanonicalHost(url)
}

func (f *Fabric) attempt(ctx context.Context, url string) (ParsedHost, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ParsedHost{}, fmt.Errorf("failed to build request for %s: %w", url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return ParsedHost{}, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ParsedHost{}, fmt.Errorf("request to %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ParsedHost{}, fmt.Errorf("failed to read body from %s: %w", url, err)
	}

	return f.parser.Parse(url, body)
}

// Merge combines every successful host's samples into one Tick's worth of
// remote data, deduplicated across addresses by canonical instance (spec
// §4.D "publish semantics").
func Merge(results []Result) ([]types.DeviceSample, []types.CpuSample, []types.MemorySample, []types.StorageSample, []string) {
	seenInstance := make(map[string]bool)

	var (
		gpus    []types.DeviceSample
		cpus    []types.CpuSample
		mem     []types.MemorySample
		storage []types.StorageSample
		hosts   []string
	)

	for _, r := range results {
		if !r.Success {
			continue
		}

		if len(r.Host.CPUs) > 0 {
			instance := r.Host.CPUs[0].Instance
			if seenInstance[instance] {
				continue
			}

			seenInstance[instance] = true
			hosts = append(hosts, instance)
		}

		gpus = append(gpus, r.Host.GPUs...)
		cpus = append(cpus, r.Host.CPUs...)
		mem = append(mem, r.Host.Memory...)
		storage = append(storage, r.Host.Storage...)
	}

	return gpus, cpus, mem, storage, hosts
}
