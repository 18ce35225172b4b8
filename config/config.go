// Package config loads the node's TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DataDir     string `toml:"DataDir"`
	GenesisFile string `toml:"GenesisFile"`
	NetworkName string `toml:"NetworkName"`

	LogFile  string `toml:"LogFile,omitempty"`
	LogLevel string `toml:"LogLevel"`

	// MetricsAddress, when set, serves Prometheus metrics over HTTP.
	MetricsAddress string `toml:"MetricsAddress,omitempty"`

	BaseFee    uint64 `toml:"BaseFee"`
	PerByteFee uint64 `toml:"PerByteFee"`
	GasPerByte uint64 `toml:"GasPerByte"`
	GasLimit   uint64 `toml:"GasLimit"`

	MaxTxPerBlock     int `toml:"MaxTxPerBlock"`
	MemoryBlockWindow int `toml:"MemoryBlockWindow"`

	AutoMine           bool `toml:"AutoMine"`
	AutoMineIntervalMs int  `toml:"AutoMineIntervalMs"`

	// AllowUnverifiedQuantum lets post-quantum signatures pass unverified
	// when no external verifier is wired. Development only.
	AllowUnverifiedQuantum bool `toml:"AllowUnverifiedQuantum"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults(path string) {
	base := filepath.Dir(path)
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = filepath.Join(base, "data")
	}
	if strings.TrimSpace(c.GenesisFile) == "" {
		c.GenesisFile = filepath.Join(base, "genesis.json")
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "spacekit-local"
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	if c.GasLimit == 0 {
		c.GasLimit = 10_000_000
	}
	if c.MaxTxPerBlock <= 0 {
		c.MaxTxPerBlock = 100
	}
	if c.MemoryBlockWindow <= 0 {
		c.MemoryBlockWindow = 128
	}
	if c.AutoMineIntervalMs <= 0 {
		c.AutoMineIntervalMs = 2000
	}
}

// Validate rejects configurations that cannot produce a working node.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	if c.GasLimit == 0 {
		return fmt.Errorf("config: GasLimit must be positive")
	}
	if c.AutoMine && c.AutoMineIntervalMs <= 0 {
		return fmt.Errorf("config: AutoMineIntervalMs must be positive when AutoMine is enabled")
	}
	return nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		NetworkName:        "spacekit-local",
		LogLevel:           "info",
		BaseFee:            1000,
		PerByteFee:         10,
		GasPerByte:         5,
		GasLimit:           10_000_000,
		MaxTxPerBlock:      100,
		MemoryBlockWindow:  128,
		AutoMine:           true,
		AutoMineIntervalMs: 2000,
	}
	cfg.applyDefaults(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: write default %s: %w", path, err)
	}
	return cfg, nil
}
