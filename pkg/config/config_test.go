package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsPopulated(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":7417", cfg.Server.ListenAddr)
	assert.Equal(t, 64, cfg.WAL.FlushEntries)
	assert.Equal(t, 256, cfg.Room.PeerBufferSize)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Server.ListenAddr, cfg.Server.ListenAddr)
}

func TestLoadParsesYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collabd.yaml")
	yamlContent := `
server:
  listen_addr: ":9000"
storage:
  dir: "/var/lib/collabd"
wal:
  flush_entries: 128
  sync_interval: 1s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.ListenAddr)
	assert.Equal(t, "/var/lib/collabd", cfg.Storage.Dir)
	assert.Equal(t, 128, cfg.WAL.FlushEntries)
	assert.Equal(t, time.Second, cfg.WAL.SyncInterval)
	assert.Equal(t, 256, cfg.Room.PeerBufferSize, "unset fields keep their default")
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("COLLABD_LISTEN_ADDR", ":8080")
	t.Setenv("COLLABD_LOG_JSON", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.True(t, cfg.Logging.JSON)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [this is not valid"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
