package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "spacekit-local", cfg.NetworkName)
	require.Equal(t, uint64(10_000_000), cfg.GasLimit)
	require.True(t, cfg.AutoMine)
	require.FileExists(t, path)

	// Loading the file it just wrote round-trips.
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.GasLimit, again.GasLimit)
	require.Equal(t, cfg.DataDir, again.DataDir)
}

func TestLoadFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	blob := `NetworkName = "testnet"
BaseFee = 50
`
	require.NoError(t, os.WriteFile(path, []byte(blob), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "testnet", cfg.NetworkName)
	require.Equal(t, uint64(50), cfg.BaseFee)
	require.Equal(t, filepath.Join(dir, "data"), cfg.DataDir)
	require.Equal(t, filepath.Join(dir, "genesis.json"), cfg.GenesisFile)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 100, cfg.MaxTxPerBlock)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`LogLevel = "verbose"`), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateAutoMineInterval(t *testing.T) {
	cfg := &Config{LogLevel: "info", GasLimit: 1, AutoMine: true, AutoMineIntervalMs: 0}
	require.Error(t, cfg.Validate())
	cfg.AutoMineIntervalMs = 500
	require.NoError(t, cfg.Validate())
}
