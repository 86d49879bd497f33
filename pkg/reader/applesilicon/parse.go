//go:build darwin

package applesilicon

import (
	"regexp"
	"strconv"
	"strings"
)

// sample is the subset of one powermetrics text section this reader needs.
type sample struct {
	cpuPowerMW     float64
	gpuPowerMW     float64
	anePowerMW     float64
	pClusterMHz    float64
	eClusterMHz    float64
	pClusterActive float64
	eClusterActive float64
	gpuActive      float64
	perCore        map[int]float64 // core index -> active residency pct
}

var (
	cpuPowerRe     = regexp.MustCompile(`(?m)^CPU Power:\s*(\d+)\s*mW`)
	gpuPowerRe     = regexp.MustCompile(`(?m)^GPU Power:\s*(\d+)\s*mW`)
	anePowerRe     = regexp.MustCompile(`(?m)^ANE Power:\s*(\d+)\s*mW`)
	pClusterFreqRe = regexp.MustCompile(`(?m)^P-Cluster HW active frequency:\s*([\d.]+)\s*MHz`)
	eClusterFreqRe = regexp.MustCompile(`(?m)^E-Cluster HW active frequency:\s*([\d.]+)\s*MHz`)
	pClusterActRe  = regexp.MustCompile(`(?m)^P-Cluster HW active residency:\s*([\d.]+)%`)
	eClusterActRe  = regexp.MustCompile(`(?m)^E-Cluster HW active residency:\s*([\d.]+)%`)
	gpuActiveRe    = regexp.MustCompile(`(?m)^GPU HW active residency:\s*([\d.]+)%`)
	perCoreRe      = regexp.MustCompile(`(?m)^CPU (\d+) active residency:\s*([\d.]+)%`)
)

// parseSection extracts gauges from one powermetrics text section. Absent
// fields are left at zero; callers must track which fields are genuinely
// "missing" vs zero via the surrounding static chip info when needed.
func parseSection(text string) sample {
	s := sample{perCore: make(map[int]float64)}

	if m := cpuPowerRe.FindStringSubmatch(text); m != nil {
		s.cpuPowerMW = mustFloat(m[1])
	}

	if m := gpuPowerRe.FindStringSubmatch(text); m != nil {
		s.gpuPowerMW = mustFloat(m[1])
	}

	if m := anePowerRe.FindStringSubmatch(text); m != nil {
		s.anePowerMW = mustFloat(m[1])
	}

	if m := pClusterFreqRe.FindStringSubmatch(text); m != nil {
		s.pClusterMHz = mustFloat(m[1])
	}

	if m := eClusterFreqRe.FindStringSubmatch(text); m != nil {
		s.eClusterMHz = mustFloat(m[1])
	}

	if m := pClusterActRe.FindStringSubmatch(text); m != nil {
		s.pClusterActive = mustFloat(m[1])
	}

	if m := eClusterActRe.FindStringSubmatch(text); m != nil {
		s.eClusterActive = mustFloat(m[1])
	}

	if m := gpuActiveRe.FindStringSubmatch(text); m != nil {
		s.gpuActive = mustFloat(m[1])
	}

	for _, m := range perCoreRe.FindAllStringSubmatch(text, -1) {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}

		s.perCore[idx] = mustFloat(m[2])
	}

	return s
}

func mustFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}

	return v
}

// parseProcessGPU extracts (name, pid, gpuMillicoresPerSec) tuples from the
// "Name ID CPU ms/s User% Deadlines Wakeups GPU ms/s" process table, per
// the legacy implementation's column-counting heuristic.
func parseProcessGPU(text string) []struct {
	Name  string
	PID   int
	GPUMs float64
} {
	var out []struct {
		Name  string
		PID   int
		GPUMs float64
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, "***") || strings.Contains(line, "Name") || strings.Contains(line, "ID") {
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 8 {
			continue
		}

		gpuMs, err := strconv.ParseFloat(parts[len(parts)-1], 64)
		if err != nil || gpuMs <= 0 {
			continue
		}

		pidIdx := -1

		for i := 1; i < len(parts); i++ {
			if _, err := strconv.Atoi(parts[i]); err == nil {
				pidIdx = i

				break
			}
		}

		if pidIdx < 0 {
			continue
		}

		pid, err := strconv.Atoi(parts[pidIdx])
		if err != nil {
			continue
		}

		out = append(out, struct {
			Name  string
			PID   int
			GPUMs float64
		}{Name: strings.Join(parts[:pidIdx], " "), PID: pid, GPUMs: gpuMs})
	}

	return out
}
