package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, ';', cfg.Export.DelimiterRune())
	assert.Equal(t, int64(32<<20), cfg.Ingestion.MaxUploadBytes())
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`server:
  addr: ":9090"
  allowed_origins:
    - http://one.example
session:
  store: postgres
export:
  retention: 30m
database:
  port: 6543
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))
	t.Setenv("COLMAP_SESSION_STORE", "memory")
	t.Setenv("COLMAP_EXPORT_DELIMITER", `\t`)
	t.Setenv("COLMAP_TRANSFORM_CACHE_SIZE", "16")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"http://one.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, StoreMemory, cfg.Session.Store)
	assert.Equal(t, 30*time.Minute, cfg.Export.Retention)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, '\t', cfg.Export.DelimiterRune())
	assert.Equal(t, 16, cfg.Transform.CacheSize)
}
