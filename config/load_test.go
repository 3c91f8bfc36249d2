package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validYAML = `
symbol: BTC-PERP
referenceFeed: binance
spreadBps: 8
takeProfitBps: 4
requoteThresholdBps: 2
minOrderAgeMs: 250
orderSizeUsd: 500
closeThresholdUsd: 25000
warmupSeconds: 10
updateThrottleMs: 500
fairPriceWindowMs: 60000
gateway:
  apiKey: foo
  apiSecret: bar
  baseUrl: https://api.test
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "BTC-PERP", cfg.Symbol)
	assert.Equal(t, 2, cfg.MarketPriceDecimals)
	assert.Equal(t, 4, cfg.MaxAtomicActions)
	assert.Equal(t, ":9100", cfg.Metrics.ListenAddr)
	assert.True(t, cfg.HotReload.Enabled)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	t.Setenv("MM_GATEWAY_API_KEY", "env-key")
	t.Setenv("MM_GATEWAY_API_SECRET", "env-secret")
	cfg, err := LoadWithEnvOverrides(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Gateway.APIKey)
	assert.Equal(t, "env-secret", cfg.Gateway.APISecret)
}

func TestValidateRejectsEmptyConfig(t *testing.T) {
	err := Validate(AppConfig{})
	assert.Error(t, err)
}

func TestValidateRejectsNonPositiveSpread(t *testing.T) {
	cfg := DefaultAppConfig()
	cfg.Symbol = "BTC-PERP"
	cfg.SpreadBps = 0
	err := Validate(cfg)
	assert.ErrorContains(t, err, "spreadBps")
}
