//go:build darwin

// Package applesilicon implements the Apple-silicon device reader
// (spec §4.A.2, §4.A.3): a singleton long-running `powermetrics` sampler,
// owned by SamplerManager, feeding a Reader that parses the most recently
// completed sample section on every tick.
package applesilicon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/all-smi/all-smi/internal/osexec"
)

const (
	sampleDelimiter  = "*** Sampled system activity"
	tempFilePrefix   = "/tmp/all-smi_powermetrics_"
	restartPollEvery = 5 * time.Second
	samplers         = "cpu_power,gpu_power,ane_power,thermal,tasks"
	intervalMs       = "1000"
)

// SamplerManager owns the single powermetrics subprocess for the whole
// process lifetime. It kills any stale sampler left by a previous run,
// respawns the process if it exits unexpectedly (polled every
// restartPollEvery), and deletes its temp file on shutdown (spec P10).
type SamplerManager struct {
	logger     *slog.Logger
	outputFile string

	mu      sync.Mutex
	cmd     *exec.Cmd
	running bool

	shutdown chan struct{}
}

// NewSamplerManager constructs and starts the sampler. Callers must call
// Stop to release the subprocess and temp file.
func NewSamplerManager(logger *slog.Logger) (*SamplerManager, error) {
	m := &SamplerManager{
		logger:     logger,
		outputFile: fmt.Sprintf("%s%d", tempFilePrefix, time.Now().UnixNano()),
		shutdown:   make(chan struct{}),
	}

	killStaleSamplers(logger)

	if err := m.spawn(); err != nil {
		return nil, fmt.Errorf("failed to start powermetrics: %w", err)
	}

	// powermetrics needs longer than its own sampling interval to produce
	// the first complete section.
	time.Sleep(2500 * time.Millisecond)

	go m.monitor()

	return m, nil
}

func (m *SamplerManager) spawn() error {
	flag := outputFlag()

	cmd := exec.Command("sudo", "nice", "-n", "10", "powermetrics",
		"--samplers", samplers,
		"--show-process-gpu",
		flag, m.outputFile,
		"-i", intervalMs,
	)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return err
	}

	m.mu.Lock()
	m.cmd = cmd
	m.running = true
	m.mu.Unlock()

	return nil
}

// monitor polls every restartPollEvery for an unexpectedly exited sampler
// and restarts it (spec §4.A.2 "respawns on unexpected exit").
func (m *SamplerManager) monitor() {
	ticker := time.NewTicker(restartPollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-m.shutdown:
			return
		case <-ticker.C:
			m.mu.Lock()
			cmd := m.cmd
			running := m.running
			m.mu.Unlock()

			if !running || cmd == nil || cmd.Process == nil {
				continue
			}

			// A non-blocking liveness probe: signal 0 checks existence
			// without affecting the process.
			if err := cmd.Process.Signal(syscall.Signal(0)); err != nil {
				m.logger.Debug("powermetrics sampler exited, restarting")

				if err := m.spawn(); err != nil {
					m.logger.Error("failed to restart powermetrics sampler", "err", err)
				}
			}
		}
	}
}

// Stop terminates the sampler, waits for it, and deletes the temp file
// (spec P10 "cancellation safety").
func (m *SamplerManager) Stop() error {
	close(m.shutdown)

	m.mu.Lock()
	m.running = false

	cmd := m.cmd
	m.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}

	return os.Remove(m.outputFile)
}

// LatestSection reads the output file and returns the second-to-last
// complete sample section (the last section may be partially written),
// split on sampleDelimiter, per spec §4.A.2.
func (m *SamplerManager) LatestSection() (string, error) {
	data, err := os.ReadFile(m.outputFile)
	if err != nil {
		return "", err
	}

	sections := strings.Split(string(data), sampleDelimiter)
	if len(sections) < 2 {
		return "", fmt.Errorf("powermetrics output has no complete sample yet")
	}

	if len(sections) == 2 {
		return sections[1], nil
	}

	return sections[len(sections)-2], nil
}

// outputFlag picks -o (macOS 13+) or -u (older), per spec §4.A.2 "chooses
// between two CLI flags based on OS major version".
func outputFlag() string {
	out, err := osexec.ExecuteContext(context.Background(), "sw_vers", []string{"-productVersion"}, nil)
	if err != nil {
		return "-u"
	}

	version := strings.TrimSpace(string(out))

	parts := strings.SplitN(version, ".", 2)
	if len(parts) == 0 {
		return "-u"
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return "-u"
	}

	if major >= 13 {
		return "-o"
	}

	return "-u"
}

// killStaleSamplers kills any powermetrics sampler left running by a
// previous all-smi process, identified by its temp-file command-line
// argument pattern.
func killStaleSamplers(logger *slog.Logger) {
	out, err := osexec.Execute("ps", []string{"auxww"}, nil)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, "sudo nice") || !strings.Contains(line, tempFilePrefix) {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		if _, err := osexec.Execute("sudo", []string{"kill", "-9", fields[1]}, nil); err != nil {
			logger.Debug("failed to kill stale powermetrics sampler", "pid", fields[1], "err", err)
		}
	}
}
