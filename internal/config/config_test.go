package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	t.Setenv("TRADEIMPORT_HOME", t.TempDir())
	v := viper.New()
	SetViperDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	v := newTestViper(t)

	cfg, err := LoadFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, []string{"csv", "txt", "xlsx"}, cfg.Import.AllowedExtensions)
	assert.Equal(t, 50, cfg.Import.MaxFileSizeMB)
	assert.Equal(t, 0, cfg.Import.ChunkSize, "chunk size is derived from file size by default")
	assert.Equal(t, 3, cfg.Import.MaxRetries)
	assert.Equal(t, 10, cfg.Import.BreakerThreshold)
	assert.Equal(t, "background_upload_queue", cfg.Store.QueueKey)
	assert.Equal(t, filepath.Join(DataDir(), "tradeimport.db"), cfg.Store.Path)
	assert.Equal(t, "local", cfg.Notify.Driver)
	assert.Equal(t, time.Second, cfg.RetryDelay())
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout())
	assert.Equal(t, int64(50*1024*1024), cfg.MaxFileSizeBytes())
}

func TestLoadFromFile(t *testing.T) {
	v := newTestViper(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
import:
  allowed_extensions: [".CSV", "txt"]
  chunk_size: 250
  retry_delay_ms: 50
api:
  base_url: "http://backend.local"
  rate_limit: 0
targets:
  - id: "7"
    file_name: "clients"
    exchange: "NSE"
    segment: "CM"
    import_key: "CLIENT_MASTER"
    enabled: true
  - id: "8"
    file_name: "trades"
    enabled: false
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, []string{"csv", "txt"}, cfg.Import.AllowedExtensions, "extensions are normalised")
	assert.Equal(t, 250, cfg.Import.ChunkSize)
	assert.Equal(t, 50*time.Millisecond, cfg.RetryDelay())
	assert.Equal(t, "http://backend.local", cfg.API.BaseURL)
	assert.Equal(t, 0, cfg.API.RateLimit)
	assert.Equal(t, "debug", cfg.Log.Level)

	require.Len(t, cfg.Targets, 2)
	assert.Equal(t, "clients", cfg.Targets[0].FileName)
	assert.Equal(t, "CLIENT_MASTER", cfg.Targets[0].ImportKey)
	assert.True(t, cfg.Targets[0].Enabled)
	assert.False(t, cfg.Targets[1].Enabled)

	// untouched keys keep their defaults
	assert.Equal(t, 3, cfg.Import.MaxRetries)
}

func TestSetDefaultsRepairsZeroValues(t *testing.T) {
	cfg := &Config{}
	cfg.Import.MaxRetries = -2
	setDefaults(cfg)

	assert.Equal(t, 0, cfg.Import.MaxRetries)
	assert.Equal(t, 10, cfg.Import.BreakerThreshold)
	assert.Equal(t, 1.0, cfg.Import.RetryMultiplier)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, cfg.RetryDelay(), cfg.RetryMaxDelay())
}

func TestDataDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRADEIMPORT_HOME", dir)
	assert.Equal(t, dir, DataDir())
}
