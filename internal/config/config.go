// Package config loads the YAML decoder configuration, grounded on the
// front end's own LoadConfig pattern: read file, unmarshal with
// gopkg.in/yaml.v3, then validate and apply defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level decoder configuration, per spec §3's adaptive
// protocol parameters and §7's operating thresholds.
type Config struct {
	SampleRate         float64          `yaml:"sample_rate"`
	RingCapacity       int              `yaml:"ring_capacity"`
	Technologies       []string         `yaml:"technologies"`
	MaxFrameSize       int              `yaml:"max_frame_size"`
	NoPatternTimeoutMs int              `yaml:"no_pattern_timeout_ms"`
	Thresholds         ThresholdConfig  `yaml:"thresholds"`
	Logging            LoggingConfig    `yaml:"logging"`
	Prometheus         PrometheusConfig `yaml:"prometheus"`
	MQTT               MQTTConfig       `yaml:"mqtt"`
	Websocket          WebsocketConfig  `yaml:"websocket"`
	Source             SourceConfig     `yaml:"source"`
}

// ThresholdConfig holds the per-technology signal-front-end thresholds
// described in spec §7.
type ThresholdConfig struct {
	PowerLevel           float64            `yaml:"power_level"`
	CorrelationThreshold float64            `yaml:"correlation_threshold"`
	ModulationMin        map[string]float64 `yaml:"modulation_min"`
	ModulationMax        map[string]float64 `yaml:"modulation_max"`
}

// LoggingConfig selects the structured logging level/format, matching the
// front end's own logging block.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// PrometheusConfig holds the Prometheus settings. The decoder does not
// start a /metrics endpoint from them.
type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// MQTTConfig configures the frame-publishing MQTT sink.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// WebsocketConfig configures the frame-streaming websocket sink.
type WebsocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// SourceConfig selects and configures the IQ sample source.
type SourceConfig struct {
	Kind      string `yaml:"kind"` // "wav" or "rtp"
	Path      string `yaml:"path"`
	Multicast string `yaml:"multicast"`
	Interface string `yaml:"interface"`
	SSRC      uint32 `yaml:"ssrc"`
}

// Load reads and parses the decoder configuration file, then fills in
// defaults and validates it.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", filename, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", filename, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 50e6
	}
	if c.RingCapacity == 0 {
		c.RingCapacity = 1 << 16
	}
	if len(c.Technologies) == 0 {
		c.Technologies = []string{"nfca", "nfcb", "nfcf", "iso7816"}
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = 256
	}
	if c.NoPatternTimeoutMs == 0 {
		c.NoPatternTimeoutMs = 100
	}
	if c.Thresholds.PowerLevel == 0 {
		c.Thresholds.PowerLevel = 0.05
	}
	if c.Thresholds.CorrelationThreshold == 0 {
		c.Thresholds.CorrelationThreshold = 0.3
	}
	if c.Source.Kind == "" {
		c.Source.Kind = "wav"
	}
}

// Validate checks the configuration for internally-inconsistent values,
// per the front end's own Config.Validate pattern.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("config: sample_rate must be positive")
	}
	if c.RingCapacity < 256 || c.RingCapacity&(c.RingCapacity-1) != 0 {
		return fmt.Errorf("config: ring_capacity must be a power of two >= 256, got %d", c.RingCapacity)
	}
	for _, t := range c.Technologies {
		switch t {
		case "nfca", "nfcb", "nfcf", "iso7816":
		default:
			return fmt.Errorf("config: unknown technology %q", t)
		}
	}
	switch c.Source.Kind {
	case "wav":
		if c.Source.Path == "" {
			return fmt.Errorf("config: source.path is required for source.kind=wav")
		}
	case "rtp":
		if c.Source.Multicast == "" {
			return fmt.Errorf("config: source.multicast is required for source.kind=rtp")
		}
	default:
		return fmt.Errorf("config: unknown source.kind %q", c.Source.Kind)
	}
	return nil
}

// Enabled reports whether technology name t is in the configured allow
// list.
func (c *Config) Enabled(t string) bool {
	for _, x := range c.Technologies {
		if x == t {
			return true
		}
	}
	return false
}
