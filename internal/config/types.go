package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the whole process configuration. It decodes strictly: unknown
// fields are rejected so typos fail loudly at startup instead of silently
// running with defaults.
//
// All duration fields are Go duration strings (e.g. "30s", "1m", "72h").
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Feed    FeedConfig    `json:"feed"`
	Mesh    MeshConfig    `json:"mesh"`
	Monitor MonitorConfig `json:"monitor"`
	Metrics MetricsConfig `json:"metrics,omitempty"`
	Stats   StatsConfig   `json:"stats,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// FeedConfig selects the upstream seismic feed and the query constraints
// applied to every poll.
type FeedConfig struct {
	// Host without scheme; default earthquake.usgs.gov.
	Host string `json:"host,omitempty"`

	MinMagnitude float64 `json:"min_magnitude,omitempty"`
	Limit        int     `json:"limit,omitempty"`

	RequestTimeout string `json:"request_timeout,omitempty"`

	Bounds BoundsConfig `json:"bounds,omitempty"`
}

// BoundsConfig is the geographic bounding box queried for events.
type BoundsConfig struct {
	MinLatitude  float64 `json:"min_latitude"`
	MaxLatitude  float64 `json:"max_latitude"`
	MinLongitude float64 `json:"min_longitude"`
	MaxLongitude float64 `json:"max_longitude"`
}

func (b BoundsConfig) IsZero() bool { return b == BoundsConfig{} }

// MeshConfig configures the multicast mesh transport.
type MeshConfig struct {
	Group   string `json:"group,omitempty"`
	Port    int    `json:"port,omitempty"`
	Channel string `json:"channel,omitempty"`
	Key     string `json:"key,omitempty"`

	// MaxSendsPerSec caps the outbound datagram rate.
	MaxSendsPerSec float64 `json:"max_sends_per_sec,omitempty"`

	// SendSpacing is the pause after each outbound packet.
	SendSpacing string `json:"send_spacing,omitempty"`
}

type MonitorConfig struct {
	PollInterval   string `json:"poll_interval,omitempty"`
	FirstLookback  string `json:"first_lookback,omitempty"`
	SteadyLookback string `json:"steady_lookback,omitempty"`

	// AlertThreshold: text alerts go out only for magnitudes strictly above this.
	AlertThreshold float64 `json:"alert_threshold,omitempty"`

	// SignificantMagnitude marks events that get a louder log line.
	SignificantMagnitude float64 `json:"significant_magnitude,omitempty"`
}

// MetricsConfig controls the optional Prometheus /metrics endpoint.
// Prefer binding to localhost.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9104"
}

// StatsConfig controls the periodic counters summary logged by the stats job.
type StatsConfig struct {
	Enabled bool `json:"enabled"`
	// Schedule is a cron spec (robfig/cron, standard 5-field). Default: hourly.
	Schedule string `json:"schedule,omitempty"`
}

// Default returns the configuration the daemon runs with when no config
// file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Stats:   StatsConfig{Enabled: true},
	}
}

// Validate checks the fields that cannot be repaired by defaulting.
func (c *Config) Validate() error {
	if _, err := ParseDurationField("feed.request_timeout", c.Feed.RequestTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("mesh.send_spacing", c.Mesh.SendSpacing); err != nil {
		return err
	}
	for path, raw := range map[string]string{
		"monitor.poll_interval":   c.Monitor.PollInterval,
		"monitor.first_lookback":  c.Monitor.FirstLookback,
		"monitor.steady_lookback": c.Monitor.SteadyLookback,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	if c.Feed.Limit < 0 {
		return fmt.Errorf("feed.limit: must be >= 0")
	}
	if c.Mesh.Port < 0 || c.Mesh.Port > 65535 {
		return fmt.Errorf("mesh.port: out of range")
	}
	if !c.Feed.Bounds.IsZero() {
		b := c.Feed.Bounds
		if b.MinLatitude >= b.MaxLatitude {
			return fmt.Errorf("feed.bounds: min_latitude must be < max_latitude")
		}
		if b.MinLongitude >= b.MaxLongitude {
			return fmt.Errorf("feed.bounds: min_longitude must be < max_longitude")
		}
	}
	return nil
}

// ---- duration helpers ----

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
