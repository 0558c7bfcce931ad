package config

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the engine configuration. The per-source enable switches are
// read once when a capture session starts.
type Config struct {
	Microphone    MicrophoneConfig    `yaml:"microphone"`
	SystemAudio   SystemAudioConfig   `yaml:"system_audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// MicrophoneConfig configures the microphone source.
type MicrophoneConfig struct {
	Enabled bool    `yaml:"enabled"`
	Device  string  `yaml:"device"` // empty picks the default input
	Gain    float64 `yaml:"gain"`
}

// SystemAudioConfig configures the loopback source.
type SystemAudioConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TranscriptionConfig points at the downstream transcription service.
// An empty endpoint runs the pipeline without a consumer.
type TranscriptionConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Microphone: MicrophoneConfig{
			Enabled: true,
			Gain:    2.5,
		},
		SystemAudio: SystemAudioConfig{
			Enabled: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9090",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults and validates the result. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Microphone.Validate(); err != nil {
		return fmt.Errorf("microphone config: %w", err)
	}
	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates microphone configuration.
func (m *MicrophoneConfig) Validate() error {
	if m.Gain <= 0 {
		return fmt.Errorf("gain must be positive, got %f", m.Gain)
	}
	if m.Gain > 16 {
		return fmt.Errorf("gain above 16 would saturate everything, got %f", m.Gain)
	}
	return nil
}

// Validate validates the transcription endpoint when one is set.
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return nil
	}
	u, err := url.Parse(t.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", t.Endpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("endpoint scheme must be ws or wss, got %q", u.Scheme)
	}
	return nil
}

// Validate validates metrics configuration.
func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.Address == "" {
		return fmt.Errorf("address cannot be empty when metrics are enabled")
	}
	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [trace, debug, info, warn, error], got %q", l.Level)
	}
	return nil
}
