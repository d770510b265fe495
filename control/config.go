// control/config.go
// Author: momentics <momentics@gmail.com>
//
// TOML configuration for the network engine and its command line front end.

package control

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all engine configuration.
type Config struct {
	Engine  EngineConfig  `toml:"engine"`
	Logging LoggingConfig `toml:"logging"`
	Metrics MetricsConfig `toml:"metrics"`
}

// EngineConfig controls the reactor and its ports.
type EngineConfig struct {
	RecvBatchSize  int           `toml:"recv_batch_size"`
	ResolveTimeout time.Duration `toml:"resolve_timeout"`
	MaxPacketSize  int           `toml:"max_packet_size"`
	PoolSize       int           `toml:"pool_size"`
	CPU            int           `toml:"cpu"` // -1 = no pinning
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			RecvBatchSize:  64,
			ResolveTimeout: 10 * time.Second,
			MaxPacketSize:  2048,
			PoolSize:       4096,
			CPU:            -1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
	}
}

// LoadConfig reads a TOML file over DefaultConfig. An empty path yields the
// defaults. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := checkUndecoded(md); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ParseConfig is LoadConfig for in-memory TOML.
func ParseConfig(data string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := checkUndecoded(md); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func checkUndecoded(md toml.MetaData) error {
	keys := md.Undecoded()
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	sort.Strings(names)
	return fmt.Errorf("parse config: unknown keys: %s", strings.Join(names, ", "))
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.Engine.RecvBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("engine.recv_batch_size must be positive, got %d", c.Engine.RecvBatchSize))
	}
	if c.Engine.ResolveTimeout <= 0 {
		errs = append(errs, fmt.Errorf("engine.resolve_timeout must be positive, got %s", c.Engine.ResolveTimeout))
	}
	if c.Engine.MaxPacketSize < 64 || c.Engine.MaxPacketSize > 65536 {
		errs = append(errs, fmt.Errorf("engine.max_packet_size must be in [64, 65536], got %d", c.Engine.MaxPacketSize))
	}
	if c.Engine.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("engine.pool_size must not be negative, got %d", c.Engine.PoolSize))
	}
	if c.Engine.CPU < -1 {
		errs = append(errs, fmt.Errorf("engine.cpu must be -1 or a cpu index, got %d", c.Engine.CPU))
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics.listen is required when metrics are enabled"))
	}
	return errors.Join(errs...)
}
