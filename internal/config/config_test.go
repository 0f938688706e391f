package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for key := range defaults {
		t.Setenv(strings.ToUpper(key), "")
		os.Unsetenv(strings.ToUpper(key))
	}
	t.Setenv("CONFIG_FILE", "")
	os.Unsetenv("CONFIG_FILE")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, CacheMemory, cfg.CacheBackend)
	assert.Equal(t, 1000, cfg.CacheMaxSize)
	assert.Equal(t, 60*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 5*time.Minute, cfg.CacheCleanupInterval)
	assert.Equal(t, CatalogDefault, cfg.CatalogSource)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAIBaseURL)
	assert.True(t, cfg.UsageAsync)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 1.0, cfg.TraceSampleRatio)
	assert.True(t, cfg.RateLimitEnabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADDR", ":9090")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CACHE_TTL", "10m")
	t.Setenv("CACHE_MAX_SIZE", "50")
	t.Setenv("RATE_LIMIT_RPS", "0")
	t.Setenv("ENV", "production")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, CacheRedis, cfg.CacheBackend)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 50, cfg.CacheMaxSize)
	assert.False(t, cfg.RateLimitEnabled())
	assert.True(t, cfg.IsProduction())
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "agentrouter.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":7000\"\ncache_max_size: 42\nlog_level: debug\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, 42, cfg.CacheMaxSize)
	assert.Equal(t, "warn", cfg.LogLevel, "environment overrides the file")
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := load(viper.New())
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"redis backend without url", map[string]string{"CACHE_BACKEND": "redis"}},
		{"unknown backend", map[string]string{"CACHE_BACKEND": "memcached"}},
		{"zero cache size", map[string]string{"CACHE_MAX_SIZE": "0"}},
		{"negative ttl", map[string]string{"CACHE_TTL": "-1m"}},
		{"catalog file missing", map[string]string{"CATALOG_SOURCE": "file"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}},
		{"queue without region", map[string]string{"SQS_USAGE_QUEUE_URL": "https://sqs.local/q"}},
		{"zero burst", map[string]string{"RATE_LIMIT_BURST": "0"}},
		{"sample ratio above one", map[string]string{"TRACE_SAMPLE_RATIO": "1.5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := load(viper.New())
			assert.Error(t, err)
		})
	}
}
