// Package app wires the `all-smi` CLI together: flag parsing, logger setup
// and the two run modes (view, api) described in the external interface
// section. Structure mirrors the exporter CLI it is grounded on — a thin
// kingpin.Application wrapper with a Main method — generalized to two
// subcommands instead of one flat flag set.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/gorilla/mux"
	"github.com/prometheus/common/promslog"
	"github.com/prometheus/common/promslog/flag"
	"github.com/prometheus/common/version"
	"github.com/prometheus/exporter-toolkit/web"

	internal_runtime "github.com/all-smi/all-smi/internal/runtime"
	"github.com/all-smi/all-smi/pkg/exposition"
	"github.com/all-smi/all-smi/pkg/localcollect"
	"github.com/all-smi/all-smi/pkg/notify"
	"github.com/all-smi/all-smi/pkg/process"
	"github.com/all-smi/all-smi/pkg/reader"
	_ "github.com/all-smi/all-smi/pkg/reader/applesilicon"
	"github.com/all-smi/all-smi/pkg/reader/hostcpu"
	"github.com/all-smi/all-smi/pkg/reader/hostmem"
	_ "github.com/all-smi/all-smi/pkg/reader/jetson"
	_ "github.com/all-smi/all-smi/pkg/reader/nvidia"
	"github.com/all-smi/all-smi/pkg/reader/storage"
	_ "github.com/all-smi/all-smi/pkg/reader/tenstorrent"
	_ "github.com/all-smi/all-smi/pkg/reader/tpu"
	"github.com/all-smi/all-smi/pkg/remotecollect"
	"github.com/all-smi/all-smi/pkg/snapshot"
	"github.com/all-smi/all-smi/pkg/ui"
)

// AppName is the kingpin app name and binary name.
const AppName = "all-smi"

// notificationTTL bounds how long a one-shot notification stays visible in
// the footer after it is last renewed.
const notificationTTL = 10 * time.Second

// App represents the `all-smi` CLI.
type App struct {
	appName string
	App     kingpin.Application
}

// New returns a new App instance.
func New() (*App, error) {
	return &App{
		appName: AppName,
		App:     *kingpin.New(AppName, "Cross-platform multi-accelerator observability tool."),
	}, nil
}

// Main is the entry point of the `all-smi` command.
func (a *App) Main() error {
	viewCmd := a.App.Command("view", "Interactive terminal UI (default).").Default()
	viewHosts := viewCmd.Flag("hosts", "Remote agent URL(s) to scrape; omit for local host mode.").Strings()
	viewHostfile := viewCmd.Flag("hostfile", "Path to a file of remote agent addresses, one per line.").String()
	viewInterval := viewCmd.Flag("interval", "Tick interval in seconds; 0 selects the adaptive step function.").Default("0").Int()

	apiCmd := a.App.Command("api", "Run the Prometheus exposition server without a terminal UI.")
	apiPort := apiCmd.Flag("port", "Port to listen on.").Default("9090").Uint16()
	apiInterval := apiCmd.Flag("interval", "Tick interval in seconds.").Default("3").Int()
	apiProcesses := apiCmd.Flag("processes", "Include process metrics.").Bool()

	promslogConfig := &promslog.Config{}
	flag.AddFlags(&a.App, promslogConfig)
	a.App.Version(version.Print(a.appName))
	a.App.UsageWriter(os.Stdout)
	a.App.HelpFlag.Short('h')

	cmd, err := a.App.Parse(os.Args[1:])
	if err != nil {
		return fmt.Errorf("failed to parse CLI flags: %w", err)
	}

	logger := promslog.New(promslogConfig)

	logger.Info("Starting "+a.appName, "version", version.Info())
	logger.Info("Operational information", "build_context", version.BuildContext(), "host_details", internal_runtime.Uname())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case viewCmd.FullCommand():
		return runView(ctx, logger, *viewHosts, *viewHostfile, time.Duration(*viewInterval)*time.Second)
	case apiCmd.FullCommand():
		return runAPI(ctx, logger, *apiPort, time.Duration(*apiInterval)*time.Second, *apiProcesses)
	}

	return fmt.Errorf("unknown command %q", cmd)
}

// buildStore constructs a Store and its Notifications queue.
func buildStore() *snapshot.Store {
	return snapshot.New(notify.New(notificationTTL))
}

// runView wires local or remote collection into the store and drives the
// terminal UI until the user quits or ctx is cancelled.
func runView(ctx context.Context, logger *slog.Logger, hosts []string, hostfilePath string, interval time.Duration) error {
	urls, err := remotecollect.Hosts(hosts, hostfilePath)
	if err != nil {
		return fmt.Errorf("failed to read hostfile: %w", err)
	}

	store := buildStore()

	if len(urls) == 0 {
		identity, err := localIdentity()
		if err != nil {
			return err
		}

		collector, _, err := newLocalCollector(store, logger, identity, interval)
		if err != nil {
			return fmt.Errorf("failed to initialize local collectors: %w", err)
		}

		go collector.Run(ctx)
	} else {
		logger.Info("remote mode", "hosts", len(urls))

		go remotecollect.New(store, logger, urls, interval).Run(ctx)
	}

	return ui.Run(ctx, store, logger)
}

// runAPI wires local collection only (process metrics are local-only by
// construction) into an HTTP exposition server with no terminal UI.
func runAPI(ctx context.Context, logger *slog.Logger, port uint16, interval time.Duration, includeProcesses bool) error {
	store := buildStore()

	identity, err := localIdentity()
	if err != nil {
		return err
	}

	collector, _, err := newLocalCollector(store, logger, identity, interval)
	if err != nil {
		return fmt.Errorf("failed to initialize local collectors: %w", err)
	}

	go collector.Run(ctx)

	expositionServer := exposition.New(store, logger, includeProcesses)

	router := mux.NewRouter()
	router.Handle("/metrics", expositionServer.Handler("/metrics"))
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("all-smi is healthy"))
	})

	addr := fmt.Sprintf(":%d", port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("starting exposition server", "address", addr)

		if err := web.ListenAndServe(httpServer, &web.FlagConfig{WebListenAddresses: &[]string{addr}}, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err

			return
		}

		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func localIdentity() (localcollect.Identity, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return localcollect.Identity{}, fmt.Errorf("failed to get hostname: %w", err)
	}

	return localcollect.Identity{HostID: hostname, Hostname: hostname, Instance: hostname}, nil
}

// newLocalCollector constructs every local reader and the process table,
// probing device readers via reader.Probe and returning the assembled
// Collector ready to Run.
func newLocalCollector(store *snapshot.Store, logger *slog.Logger, identity localcollect.Identity, interval time.Duration) (*localcollect.Collector, *process.Table, error) {
	devices := reader.Probe(logger, store.Notifications())

	cpuReader, err := hostcpu.New("/proc", "/sys")
	if err != nil {
		logger.Warn("host cpu reader unavailable", "err", err)
	}

	memReader, err := hostmem.New("/proc")
	if err != nil {
		logger.Warn("host memory reader unavailable", "err", err)
	}

	diskReader, err := storage.New("/proc", "")
	if err != nil {
		logger.Warn("storage reader unavailable", "err", err)
	}

	procTable, err := process.New("/proc")
	if err != nil {
		logger.Warn("process enumerator unavailable", "err", err)
	}

	collector := localcollect.New(
		store, identity, logger,
		devices, cpuReader, memReader, diskReader, procTable, nil,
		interval, func() int { return 1 },
	)

	return collector, procTable, nil
}
