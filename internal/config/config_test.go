package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_PORT", "")
	t.Setenv("API_WORKER", "")
	t.Setenv("API_SERVICES", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 4, cfg.Workers)
	assert.Empty(t, cfg.Services)
}

func TestLoadOverridesAndServiceList(t *testing.T) {
	t.Setenv("API_PORT", "9090")
	t.Setenv("API_SERVICES", "zarr-stream, userdata")
	t.Setenv("API_CACHE_EXP", "120")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.HasService("zarr-stream"))
	assert.True(t, cfg.HasService("userdata"))
	assert.False(t, cfg.HasService("nonexistent"))
	assert.Equal(t, 120, int(cfg.CacheExpiry.Seconds()))
}
