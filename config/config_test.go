package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cacheforge/semcache/config"
)

func TestLoadConfigFromEnv(t *testing.T) {
	os.Setenv("SEMANTIC_CACHE_REDIS_URL", "redis://localhost:6379")
	os.Setenv("ENV", "test")
	os.Setenv("SEMANTIC_CACHE_CACHE_VERSION", "v7")
	defer func() {
		os.Unsetenv("SEMANTIC_CACHE_REDIS_URL")
		os.Unsetenv("ENV")
		os.Unsetenv("SEMANTIC_CACHE_CACHE_VERSION")
	}()

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	require.Equal(t, "test", cfg.Env)
	require.Equal(t, "v7", cfg.CacheVersion)
	require.Equal(t, config.EvictionRecency, cfg.L1Cache.EvictionStrategy)
}

func TestLoadRejectsMissingRedisURL(t *testing.T) {
	os.Unsetenv("SEMANTIC_CACHE_REDIS_URL")
	_, err := config.Load()
	require.Error(t, err)
}

func TestValidateRejectsBadEvictionStrategy(t *testing.T) {
	cfg := config.Defaults()
	cfg.RedisURL = "redis://localhost:6379"
	cfg.L1Cache.EvictionStrategy = "least-favorite"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsStaleWindowInversion(t *testing.T) {
	cfg := config.Defaults()
	cfg.RedisURL = "redis://localhost:6379"
	cfg.EnableStaleWhileRevalidate = true
	cfg.StaleToleranceSeconds = 100
	cfg.MaxStaleAgeSeconds = 10
	require.Error(t, cfg.Validate())
}
