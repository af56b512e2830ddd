// Package config loads the agent's optional YAML configuration. The core
// metering knobs are command-line flags; the file enables and tunes the
// supplemental exporters, the debug API, and the tap.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TapConfig tunes the packet tap.
type TapConfig struct {
	// Workers is the fan-out size for taps that support it; 0 means one
	// worker per CPU.
	Workers int `yaml:"workers"`
	// FanoutID selects the AF_PACKET fan-out group.
	FanoutID uint16 `yaml:"fanout_id"`
	// BatchSize bounds how many packets one AF_PACKET tap block carries; the
	// pcap and NATS taps use their own fixed batch sizes.
	BatchSize int `yaml:"batch_size"`
	// NATSQueue names the queue group used by the NATS tap.
	NATSQueue string `yaml:"nats_queue"`
}

// ClickHouseConfig configures the optional ClickHouse exporter.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NATSExportConfig configures the optional NATS IPFIX exporter.
type NATSExportConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// APIConfig configures the debug HTTP endpoint.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Config is the top-level configuration.
type Config struct {
	Tap        TapConfig        `yaml:"tap"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	NATSExport NATSExportConfig `yaml:"nats_export"`
	API        APIConfig        `yaml:"api"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Tap: TapConfig{BatchSize: 256, NATSQueue: "clerk"},
		API: APIConfig{Listen: "127.0.0.1:9099"},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
