package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Credentials = []CredentialConfig{{Name: "primary", Key: "AAA", DailyQuota: 10000}}
	return cfg
}

func TestValidateRequiresCredentials(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate())

	cfg.Credentials = []CredentialConfig{{Name: "a", Key: "", DailyQuota: 100}}
	assert.Error(t, cfg.Validate())
}

func TestValidateDefaultsPlusCredentialPass(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	cfg := validConfig()
	cfg.Discovery.Threshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Discovery.ReviewFloor = 0.9 // above threshold
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadCadence(t *testing.T) {
	cfg := validConfig()
	cfg.Snapshots.Cadence = nil
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Snapshots.Cadence = []CadenceBand{
		{MaxAgeHours: 720, IntervalMinutes: 1440},
		{MaxAgeHours: 24, IntervalMinutes: 60}, // out of order
	}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Backend = "postgres"
	assert.Error(t, cfg.Validate())
}

func TestCadenceInterval(t *testing.T) {
	cfg := Default().Snapshots

	interval, ok := cfg.CadenceInterval(2 * time.Hour)
	require.True(t, ok)
	assert.Equal(t, time.Hour, interval)

	interval, ok = cfg.CadenceInterval(48 * time.Hour)
	require.True(t, ok)
	assert.Equal(t, 24*time.Hour, interval)

	_, ok = cfg.CadenceInterval(31 * 24 * time.Hour)
	assert.False(t, ok)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "viewcast.yaml")
	raw := `
region: "NP"
credentials:
  - name: primary
    key: AAA
    daily_quota: 10000
discovery:
  seed_keywords: ["news", "music"]
  languages: ["nep", "eng"]
storage:
  backend: sqlite
  path: ` + dir + `
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "NP", cfg.Region)
	assert.Equal(t, []string{"news", "music"}, cfg.Discovery.SeedKeywords)
	// Defaults survive partial files.
	assert.Equal(t, 0.7, cfg.Discovery.Threshold)
	assert.Equal(t, int64(60), cfg.Features.ShortFormMaxSeconds)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
