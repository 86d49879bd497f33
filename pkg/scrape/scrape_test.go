package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/all-smi/all-smi/pkg/types"
)

func TestMergeDedupesByInstance(t *testing.T) {
	results := []Result{
		{
			Success: true,
			Host: ParsedHost{
				CPUs: []types.CpuSample{{Instance: "node1"}},
			},
		},
		{
			// Same logical host scraped under a second address.
			Success: true,
			Host: ParsedHost{
				CPUs: []types.CpuSample{{Instance: "node1"}},
			},
		},
		{
			Success: true,
			Host: ParsedHost{
				CPUs: []types.CpuSample{{Instance: "node2"}},
			},
		},
		{
			Success: false,
		},
	}

	gpus, cpus, _, _, hosts := Merge(results)

	assert.Empty(t, gpus)
	assert.Len(t, cpus, 2, "the second address of node1 contributes no samples")
	assert.Equal(t, []string{"node1", "node2"}, hosts)
}

func TestFabricScrapeAllSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`all_smi_cpu_utilization{instance="remote1"} 33` + "\n"))
	}))
	defer srv.Close()

	f := New()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	results := f.ScrapeAll(ctx, []string{srv.URL})
	require.Len(t, results, 1)
	require.True(t, results[0].Success)
	require.Len(t, results[0].Host.CPUs, 1)
	assert.Equal(t, "remote1", results[0].Host.CPUs[0].Instance)
	assert.Equal(t, "remote1", f.CanonicalHost(srv.URL))
}

func TestFabricScrapeAllFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	results := f.ScrapeAll(ctx, []string{srv.URL})
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Error(t, results[0].Err)

	// No scrape ever succeeded, so the URL itself is the fallback identity.
	assert.Equal(t, srv.URL, f.CanonicalHost(srv.URL))
}

func TestFabricScrapeAllEmpty(t *testing.T) {
	f := New()
	assert.Nil(t, f.ScrapeAll(context.Background(), nil))
}
