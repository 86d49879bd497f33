package exposition

import (
	"log/slog"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/all-smi/all-smi/pkg/notify"
	"github.com/all-smi/all-smi/pkg/snapshot"
	"github.com/all-smi/all-smi/pkg/types"
)

func newTestStore() *snapshot.Store {
	return snapshot.New(notify.New(time.Second))
}

func TestServeHTTPHeaders(t *testing.T) {
	store := newTestStore()
	store.Publish(snapshot.Tick{
		CPUs:    []types.CpuSample{{HostID: "h1", Instance: "h1", UtilizationPct: 42}},
		HostIDs: []string{"h1"},
	})

	srv := New(store, slog.Default(), false)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "max-age=2, must-revalidate", rec.Header().Get("Cache-Control"))

	body := rec.Body.String()
	assert.Contains(t, body, "all_smi_cpu_utilization")

	wantLen, err := strconv.Atoi(rec.Header().Get("Content-Length"))
	require.NoError(t, err)
	assert.Equal(t, len(body), wantLen)
}

func TestServeHTTPOmitsProcessMetricsByDefault(t *testing.T) {
	store := newTestStore()
	store.Publish(snapshot.Tick{
		Processes: []types.ProcessSample{{PID: 1, Command: "init", CPUPct: 1}},
		HostIDs:   []string{"h1"},
	})

	srv := New(store, slog.Default(), false)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.NotContains(t, rec.Body.String(), "all_smi_process_")
}

func TestServeHTTPIncludesProcessMetricsWhenEnabled(t *testing.T) {
	store := newTestStore()
	store.Publish(snapshot.Tick{
		Processes: []types.ProcessSample{{PID: 1, Command: "init", CPUPct: 1}},
		HostIDs:   []string{"h1"},
	})

	srv := New(store, slog.Default(), true)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), "all_smi_process_cpu_utilization")
}
