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

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.Equal(t, int64(10<<20), cfg.API.MaxUploadBytes)
	assert.Equal(t, []string{"image/jpeg", "image/png", "image/webp"}, cfg.API.AllowedTypes)
	assert.Equal(t, "X-User-ID", cfg.API.RateLimit.UserIDHeader)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 40, cfg.Backend.HDSteps)
	assert.Equal(t, -1, cfg.Backend.Seed)
	assert.Empty(t, cfg.Backend.Token)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("TRYONFLOW_API_ADDR", ":9999")
	t.Setenv("TRYONFLOW_QUEUE_REDIS_ADDR", "redis:6380")
	t.Setenv("TRYONFLOW_API_RATE_LIMIT_REQUESTS", "5")
	t.Setenv("TRYONFLOW_CACHE_TTL", "90s")
	t.Setenv("HUGGINGFACE_TOKEN", "hf_secret")
	t.Setenv("COLAB_API_URL", "https://colab.example.test")

	cfg, err := load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.API.Addr)
	assert.Equal(t, "redis:6380", cfg.Queue.RedisAddr)
	assert.Equal(t, 5, cfg.API.RateLimit.Requests)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "hf_secret", cfg.Backend.Token)
	assert.Equal(t, "https://colab.example.test", cfg.Backend.SpaceURL)
}

func TestLoadPrefixedTokenWins(t *testing.T) {
	t.Setenv("TRYONFLOW_BACKEND_TOKEN", "primary")
	t.Setenv("HF_TOKEN", "secondary")

	cfg, err := load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.Backend.Token)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tryonflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: minio
  bucket: looks
database:
  driver: postgres
providers:
  blur_background: true
`), 0o644))

	cfg, err := load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "minio", cfg.Storage.Driver)
	assert.Equal(t, "looks", cfg.Storage.Bucket)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.True(t, cfg.Providers.BlurBackground)
}

func TestValidateRejectsUnknownDrivers(t *testing.T) {
	t.Setenv("TRYONFLOW_STORAGE_DRIVER", "ftp")
	t.Setenv("TRYONFLOW_CACHE_DRIVER", "disk")

	_, err := load(viper.New(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.driver")
	assert.Contains(t, err.Error(), "cache.driver")
}
