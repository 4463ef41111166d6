package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  env: prod\n"))
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, 5, cfg.App.TickSeconds)

	assert.Equal(t, 55, cfg.Control.MinHoldTimeMinutes)
	assert.Equal(t, 3, cfg.Control.MaxOperationsPerWallet)
	assert.InDelta(t, 0.10, cfg.Control.PsychologyTaxRate, 1e-9)
	assert.InDelta(t, 2.0, cfg.Control.MinPsychologyBalance, 1e-9)

	assert.Equal(t, 15, cfg.TimeProto.GoldenWindowEndMin)
	assert.Equal(t, 55, cfg.TimeProto.HardExpiryMin)
	assert.InDelta(t, 0.33, cfg.TimeProto.DecayFraction, 1e-9)

	assert.InDelta(t, -0.7, cfg.Exit.NegativeSentiment, 1e-9)
	assert.InDelta(t, -0.8, cfg.Exit.PanicSentiment, 1e-9)

	assert.Equal(t, "raydium", cfg.Mining.PreferredVenue)
	assert.Equal(t, "default", cfg.Screener.Preset)
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
control:
  min_hold_time_minutes: 40
  max_hold_time_minutes: 50
screener:
  preset: strict
`))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Control.MinHoldTimeMinutes)
	assert.Equal(t, "strict", cfg.Screener.Preset)
}

func TestLoadRejectsBadWalletRatios(t *testing.T) {
	_, err := Load(writeConfig(t, `
wallet:
  total_capital: 20
  lightning_ratio: 0.5
  emergency_gas_ratio: 0.5
  reentry_ratio: 0.5
  psychology_ratio: 0.2
  tactical_exit_ratio: 0.2
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to 1.0")
}

func TestLoadRejectsBadWindowOrdering(t *testing.T) {
	_, err := Load(writeConfig(t, `
time_protocol:
  golden_window_end_minutes: 50
  decay_window_end_minutes: 45
  hard_expiry_minutes: 55
`))
	assert.Error(t, err)
}

func TestLoadRejectsPositiveSentimentThreshold(t *testing.T) {
	_, err := Load(writeConfig(t, `
exit:
  negative_sentiment_threshold: 0.7
`))
	assert.Error(t, err)
}

func TestLoadRejectsUnknownPreset(t *testing.T) {
	_, err := Load(writeConfig(t, "screener:\n  preset: reckless\n"))
	assert.Error(t, err)
}

func TestLoadRejectsIncompleteTelegram(t *testing.T) {
	_, err := Load(writeConfig(t, `
notify:
  telegram:
    enabled: true
`))
	assert.Error(t, err)
}

func TestLoadRejectsOversizedPositionRatio(t *testing.T) {
	_, err := Load(writeConfig(t, `
mining:
  position_size_ratio: 0.95
`))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, validate(cfg))
}
