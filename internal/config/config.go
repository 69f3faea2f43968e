// Package config handles loading and parsing the server configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-hclog"

	"github.com/ASHISH26940/pipekv/internal/protocol"
	"github.com/ASHISH26940/pipekv/internal/strategy"
)

// PipeName is the well-known endpoint name shared by the server and its clients.
const PipeName = "DatabasePipe"

// Config holds all configuration for the server.
// We use struct tags to explicitly map TOML keys to struct fields.
type Config struct {
	Network         string `toml:"network"` // "unix" or "tcp"
	Address         string `toml:"address"` // socket path or host:port
	Serial          bool   `toml:"serial"`  // drain one connection before accepting the next
	DefaultStrategy string `toml:"default_strategy"`
	FIFOCapacity    int    `toml:"fifo_capacity"`
	AgingPeriod     int    `toml:"aging_period"`
	AgingFloor      int64  `toml:"aging_floor"`
	MaxRecords      int    `toml:"max_records"`  // 0 disables capacity enforcement
	SnapshotDir     string `toml:"snapshot_dir"` // empty means file names are used verbatim
	MaxFrameBytes   uint32 `toml:"max_frame_bytes"`
	LogLevel        string `toml:"log_level"`
	LogJSON         bool   `toml:"log_json"`
}

// DefaultAddress is the socket path used when none is configured.
func DefaultAddress() string {
	return filepath.Join(os.TempDir(), "pipekv", PipeName+".sock")
}

// New returns a new Config with default values.
func New() *Config {
	return &Config{
		Network:         "unix",
		Address:         DefaultAddress(),
		DefaultStrategy: string(strategy.FIFO),
		FIFOCapacity:    strategy.DefaultFIFOCapacity,
		AgingPeriod:     strategy.DefaultAgingPeriod,
		AgingFloor:      strategy.DefaultAgingFloor,
		MaxFrameBytes:   protocol.DefaultMaxFrame,
		LogLevel:        "info",
	}
}

// Load reads a configuration file from the given path and populates the Config struct.
func (c *Config) Load(path string) error {
	_, err := toml.DecodeFile(path, c)
	return err
}

// LoadOptional behaves like Load but treats a missing file as empty.
func (c *Config) LoadOptional(path string) error {
	err := c.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Validate reports the first setting the server cannot run with.
func (c *Config) Validate() error {
	switch c.Network {
	case "unix", "tcp":
	default:
		return fmt.Errorf("config: unsupported network %q", c.Network)
	}
	if c.Address == "" {
		return errors.New("config: address is required")
	}
	if _, err := strategy.ParseName(c.DefaultStrategy); err != nil {
		return fmt.Errorf("config: default_strategy: %w", err)
	}
	if c.FIFOCapacity <= 0 {
		return fmt.Errorf("config: fifo_capacity must be positive, got %d", c.FIFOCapacity)
	}
	if c.AgingPeriod <= 0 {
		return fmt.Errorf("config: aging_period must be positive, got %d", c.AgingPeriod)
	}
	if c.AgingFloor > 0 {
		return fmt.Errorf("config: aging_floor must not be positive, got %d", c.AgingFloor)
	}
	if c.MaxRecords < 0 {
		return fmt.Errorf("config: max_records must not be negative, got %d", c.MaxRecords)
	}
	if c.MaxFrameBytes == 0 {
		return errors.New("config: max_frame_bytes must be positive")
	}
	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}

// StrategyOptions converts the policy settings for strategy.NewSet.
// Call Validate first.
func (c *Config) StrategyOptions() strategy.Options {
	def, _ := strategy.ParseName(c.DefaultStrategy)
	return strategy.Options{
		Default:      def,
		FIFOCapacity: c.FIFOCapacity,
		AgingPeriod:  uint64(c.AgingPeriod),
		AgingFloor:   c.AgingFloor,
	}
}
