// Package chassis implements the optional BMC/Redfish attribute bag (spec
// §4.A.9) via stmcginnis/gofish, grounded on the teacher's Redfish power
// collector (pkg/collector/redfish.go). Unlike the teacher's per-chassis
// power-metric Collector, this reader reports a flat string attribute map
// since the destination is a display field rather than a Prometheus series.
package chassis

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/stmcginnis/gofish"
	"github.com/stmcginnis/gofish/redfish"

	"github.com/all-smi/all-smi/pkg/types"
)

// Config holds the connection parameters for one Redfish BMC endpoint.
type Config struct {
	Endpoint string
	Username string
	Password string
	Insecure bool
	Timeout  time.Duration
}

// Reader queries a Redfish-capable BMC for chassis-level attributes.
type Reader struct {
	cfg    Config
	client *gofish.APIClient
}

// New returns a chassis reader for the given BMC endpoint. The connection is
// established lazily on the first Sample call so that a BMC that is briefly
// unreachable at startup does not block probing.
func New(cfg Config) *Reader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &Reader{cfg: cfg}
}

func (r *Reader) connect() error {
	if r.client != nil {
		return nil
	}

	client, err := gofish.Connect(gofish.ClientConfig{
		Endpoint:         r.cfg.Endpoint,
		Username:         r.cfg.Username,
		Password:         r.cfg.Password,
		Insecure:         r.cfg.Insecure,
		ReuseConnections: true,
		HTTPClient:       &http.Client{Timeout: r.cfg.Timeout},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redfish endpoint %s: %w", r.cfg.Endpoint, err)
	}

	r.client = client

	return nil
}

func (r *Reader) reset() {
	if r.client != nil {
		r.client.Logout()
		r.client = nil
	}
}

// Close releases the Redfish session, if any.
func (r *Reader) Close() error {
	r.reset()

	return nil
}

// Sample returns one ChassisSample per Redfish chassis resource, each a flat
// attribute bag suitable for display rather than a Prometheus time series.
func (r *Reader) Sample(hostID, hostname string) ([]types.ChassisSample, error) {
	if err := r.connect(); err != nil {
		return nil, err
	}

	chassisList, err := r.client.Service.Chassis()
	if err != nil {
		r.reset()

		return nil, fmt.Errorf("failed to fetch chassis from redfish: %w", err)
	}

	samples := make([]types.ChassisSample, 0, len(chassisList))

	for _, c := range chassisList {
		samples = append(samples, types.ChassisSample{
			HostID:   hostID,
			Hostname: hostname,
			Attrs:    attrsFor(c),
		})
	}

	return samples, nil
}

func attrsFor(c *redfish.Chassis) map[string]string {
	attrs := map[string]string{
		"id":            c.ID,
		"name":          c.Name,
		"manufacturer":  c.Manufacturer,
		"model":         c.Model,
		"serial_number": c.SerialNumber,
		"part_number":   c.PartNumber,
		"chassis_type":  string(c.ChassisType),
		"status_health": string(c.Status.Health),
		"status_state":  string(c.Status.State),
	}

	if power, err := c.Power(); err == nil && power != nil {
		var total float64
		for _, pwc := range power.PowerControl {
			total += float64(pwc.PowerConsumedWatts)
		}

		if total > 0 {
			attrs["power_watts"] = strconv.FormatFloat(total, 'f', 1, 64)
		}
	}

	if thermal, err := c.Thermal(); err == nil && thermal != nil && len(thermal.Temperatures) > 0 {
		attrs["temperature_c"] = strconv.FormatFloat(thermal.Temperatures[0].ReadingCelsius, 'f', 1, 64)
	}

	return attrs
}
