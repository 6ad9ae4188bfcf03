package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, uint16(25), cfg.Market.FeeBps)
	assert.Equal(t, uint32(4), cfg.Batch.MaxBatchSize)
	assert.True(t, cfg.Market.ClearingEnabled)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Market.Authority, cfg.Market.Authority)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchange.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
  shutdown_timeout: 5s
market:
  authority: grid-admin
  fee_bps: 50
  clearing_enabled: true
batch:
  max_batch_size: 2
  timeout_seconds: 120
  min_batch_size: 1
  price_improvement_pct: 10
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "grid-admin", cfg.Market.Authority)
	assert.Equal(t, uint16(50), cfg.Market.FeeBps)
	assert.Equal(t, uint32(2), cfg.Batch.MaxBatchSize)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a mapping"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("PORT", "7777")
	t.Setenv("MARKET_AUTHORITY", "env-authority")
	t.Setenv("MARKET_FEE_BPS", "75")
	t.Setenv("NATS_URL", "nats://broker:4222")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "7777", cfg.Server.Port)
	assert.Equal(t, "env-authority", cfg.Market.Authority)
	assert.Equal(t, uint16(75), cfg.Market.FeeBps)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Server.Port = "" }},
		{"non-numeric port", func(c *Config) { c.Server.Port = "http" }},
		{"empty authority", func(c *Config) { c.Market.Authority = "" }},
		{"fee above 100%", func(c *Config) { c.Market.FeeBps = 10001 }},
		{"zero batch size", func(c *Config) { c.Batch.MaxBatchSize = 0 }},
		{"batch size above cap", func(c *Config) { c.Batch.MaxBatchSize = 5 }},
		{"min above max", func(c *Config) { c.Batch.MinBatchSize = 4; c.Batch.MaxBatchSize = 2 }},
		{"zero timeout", func(c *Config) { c.Batch.TimeoutSeconds = 0 }},
		{"improvement above 100", func(c *Config) { c.Batch.PriceImprovementPct = 101 }},
		{"nats enabled without url", func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" }},
		{"missing fee collector", func(c *Config) { c.Accounts.FeeCollector = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
