package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsWithoutFile(t *testing.T) {
	cfg := New(filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Equal(t, ":7860", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowOrigins)
	assert.True(t, cfg.CORS.AllowCredentials)
	assert.Equal(t, int64(20*1024*1024), cfg.Upload.MaxSize)
	assert.Equal(t, BackendONNX, cfg.Model.Backend)
	assert.Equal(t, 1024, cfg.Model.InputSize)
	assert.False(t, cfg.Cache.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: ":9000"
  mode: release
  write_timeout: 5s
model:
  backend: remote
  remote_url: http://inference:8188/mask
  pool_size: 4
cache:
  enabled: true
  ttl: 10m
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, 5*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, BackendRemote, cfg.Model.Backend)
	assert.Equal(t, "http://inference:8188/mask", cfg.Model.RemoteURL)
	assert.Equal(t, 4, cfg.Model.PoolSize)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("REMBG_SERVER_PORT", ":8081")
	t.Setenv("REMBG_MODEL_DEVICE", "cpu")

	cfg := New(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, ":8081", cfg.Server.Port)
	assert.Equal(t, DeviceCPU, cfg.Model.Device)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Model.Backend = "tflite" },
			wantErr: "unknown model.backend",
		},
		{
			name:    "unknown device",
			mutate:  func(c *Config) { c.Model.Device = "tpu" },
			wantErr: "unknown model.device",
		},
		{
			name:    "empty pool",
			mutate:  func(c *Config) { c.Model.PoolSize = 0 },
			wantErr: "model.pool_size",
		},
		{
			name:    "remote without url",
			mutate:  func(c *Config) { c.Model.Backend = BackendRemote; c.Model.RemoteURL = "" },
			wantErr: "model.remote_url",
		},
		{
			name:    "negative upload size",
			mutate:  func(c *Config) { c.Upload.MaxSize = -1 },
			wantErr: "upload.max_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
