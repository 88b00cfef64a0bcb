package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Fleet.ReconcileInterval)
	assert.Equal(t, 200, cfg.Fleet.WindowSize)
	assert.Equal(t, 10*time.Second, cfg.WebSocket.ReconnectInterval)
	assert.Equal(t, 4, cfg.Evolution.MinPopulation)
	assert.InDelta(t, 0.25, cfg.Evolution.EliminationRate, 1e-9)
	assert.InDelta(t, 0.4, cfg.Evolution.MutationChance, 1e-9)
	assert.True(t, cfg.OKX.DryRun)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	content := `
database:
  driver: mysql
  mysql:
    host: db.internal
    port: 3307
    username: fleet
    database: fleet
fleet:
  reconcile_interval: 45s
evolution:
  elimination_rate: 0.5
  seed: 42
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("FLEET_POLL_INTERVAL", "7s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.MySQL.Host)
	assert.Equal(t, 3307, cfg.Database.MySQL.Port)
	assert.Equal(t, 45*time.Second, cfg.Fleet.ReconcileInterval)
	assert.Equal(t, 7*time.Second, cfg.Fleet.PollInterval)
	assert.InDelta(t, 0.5, cfg.Evolution.EliminationRate, 1e-9)
	assert.Equal(t, int64(42), cfg.Evolution.Seed)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
