package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProviderEndpoints(t *testing.T) {
	cfg := Default()

	// Adapters append their query string directly, so each default must be
	// the full API root.
	assert.Equal(t, "https://www.alphavantage.co/query", cfg.AlphaVantage.Endpoint)
	assert.Equal(t, "https://finnhub.io/api/v1", cfg.Finnhub.Endpoint)
	assert.Equal(t, "https://api.openfigi.com", cfg.OpenFIGI.Endpoint)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ALPHAVANTAGE_ENDPOINT", "http://localhost:4010/query")
	t.Setenv("REDIS_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "http://localhost:4010/query", cfg.AlphaVantage.Endpoint)
	assert.False(t, cfg.Redis.Enabled)
}
