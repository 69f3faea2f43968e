// Package config_test contains the unit tests for the config package.
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ASHISH26940/pipekv/internal/strategy"
)

func TestConfig_Load(t *testing.T) {
	// Create a temporary directory for our test config files
	tempDir := t.TempDir()

	// --- Test Case 1: Valid configuration file ---
	validToml := `
network = "tcp"
address = "127.0.0.1:7070"
serial = true
default_strategy = "LRU"
fifo_capacity = 4
aging_period = 3
max_records = 100
snapshot_dir = "/var/lib/pipekv"
`
	validPath := filepath.Join(tempDir, "valid.toml")
	require.NoError(t, os.WriteFile(validPath, []byte(validToml), 0644))

	cfg := New()
	require.NoError(t, cfg.Load(validPath))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "tcp", cfg.Network)
	assert.Equal(t, "127.0.0.1:7070", cfg.Address)
	assert.True(t, cfg.Serial)
	assert.Equal(t, 100, cfg.MaxRecords)
	assert.Equal(t, "/var/lib/pipekv", cfg.SnapshotDir)
	// untouched keys keep their defaults
	assert.Equal(t, int64(strategy.DefaultAgingFloor), cfg.AgingFloor)
	assert.Equal(t, "info", cfg.LogLevel)

	opts := cfg.StrategyOptions()
	assert.Equal(t, strategy.LRU, opts.Default)
	assert.Equal(t, 4, opts.FIFOCapacity)
	assert.Equal(t, uint64(3), opts.AgingPeriod)

	// --- Test Case 2: File does not exist ---
	cfg2 := New()
	require.Error(t, cfg2.Load(filepath.Join(tempDir, "nonexistent.toml")))
	require.NoError(t, cfg2.LoadOptional(filepath.Join(tempDir, "nonexistent.toml")))

	// --- Test Case 3: Invalid TOML format ---
	invalidToml := `address = 127.0.0.1` // Invalid: address should be a string
	invalidPath := filepath.Join(tempDir, "invalid.toml")
	require.NoError(t, os.WriteFile(invalidPath, []byte(invalidToml), 0644))

	cfg3 := New()
	require.Error(t, cfg3.LoadOptional(invalidPath))
}

func TestConfig_Defaults(t *testing.T) {
	cfg := New()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "unix", cfg.Network)
	assert.Equal(t, PipeName+".sock", filepath.Base(cfg.Address))
	assert.False(t, cfg.Serial)
	assert.Equal(t, strategy.DefaultOptions(), cfg.StrategyOptions())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"network", func(c *Config) { c.Network = "udp" }},
		{"address", func(c *Config) { c.Address = "" }},
		{"strategy", func(c *Config) { c.DefaultStrategy = "mru" }},
		{"fifo capacity", func(c *Config) { c.FIFOCapacity = 0 }},
		{"aging period", func(c *Config) { c.AgingPeriod = -1 }},
		{"aging floor", func(c *Config) { c.AgingFloor = 3 }},
		{"max records", func(c *Config) { c.MaxRecords = -5 }},
		{"frame size", func(c *Config) { c.MaxFrameBytes = 0 }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
