// Package config provides the configuration surface for the forecaster:
// credentials, regional-relevance settings, snapshot cadence, feature
// thresholds and model-artifact locations.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration consumed by the collector and the
// prediction engine.
type Config struct {
	Region      string             `mapstructure:"region"`
	Credentials []CredentialConfig `mapstructure:"credentials"`
	Discovery   DiscoveryConfig    `mapstructure:"discovery"`
	Collection  CollectionConfig   `mapstructure:"collection"`
	Snapshots   SnapshotConfig     `mapstructure:"snapshots"`
	Features    FeatureConfig      `mapstructure:"features"`
	Prediction  PredictionConfig   `mapstructure:"prediction"`
	Storage     StorageConfig      `mapstructure:"storage"`
}

// CredentialConfig describes one API key and its daily allowance.
type CredentialConfig struct {
	Name       string `mapstructure:"name"`
	Key        string `mapstructure:"key"`
	DailyQuota int    `mapstructure:"daily_quota"`
}

// DiscoveryConfig controls channel discovery and relevance scoring.
type DiscoveryConfig struct {
	SeedKeywords      []string `mapstructure:"seed_keywords"`
	Languages         []string `mapstructure:"languages"` // ISO 639-3 codes
	Threshold         float64  `mapstructure:"threshold"`
	ReviewFloor       float64  `mapstructure:"review_floor"`
	Allowlist         []string `mapstructure:"allowlist"`
	MaxResultsPerSeed int      `mapstructure:"max_results_per_seed"`
}

// CollectionConfig controls harvester behaviour.
type CollectionConfig struct {
	MaxVideosPerChannel int `mapstructure:"max_videos_per_channel"`
	Concurrency         int `mapstructure:"concurrency"`
}

// CadenceBand maps a video age ceiling to a capture interval.
type CadenceBand struct {
	MaxAgeHours     int `mapstructure:"max_age_hours"`
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

// SnapshotConfig controls the decaying observation cadence. Observation stops
// once a video is older than the last band's ceiling.
type SnapshotConfig struct {
	Cadence []CadenceBand `mapstructure:"cadence"`
}

// FeatureConfig controls feature extraction thresholds and weights.
type FeatureConfig struct {
	ShortFormMaxSeconds   int64   `mapstructure:"short_form_max_seconds"`
	PrimeTimeStartHour    int     `mapstructure:"prime_time_start_hour"`
	PrimeTimeEndHour      int     `mapstructure:"prime_time_end_hour"`
	SubscriberWeight      float64 `mapstructure:"subscriber_weight"`
	VideoCountWeight      float64 `mapstructure:"video_count_weight"`
	SubscriberSaturation  int64   `mapstructure:"subscriber_saturation"`
	VideoCountSaturation  int64   `mapstructure:"video_count_saturation"`
}

// PredictionConfig controls artifact loading and confidence blending.
type PredictionConfig struct {
	ArtifactDir        string  `mapstructure:"artifact_dir"`
	CompletenessWeight float64 `mapstructure:"completeness_weight"`
	ConsistencyWeight  float64 `mapstructure:"consistency_weight"`
	FallbackConfidence float64 `mapstructure:"fallback_confidence"`
}

// StorageConfig selects and parameterizes the persistence backend.
type StorageConfig struct {
	Backend        string `mapstructure:"backend"` // "sqlite" or "dapr"
	Path           string `mapstructure:"path"`    // data directory for sqlite + locks
	DaprStateStore string `mapstructure:"dapr_state_store"`
}

// Default returns a configuration with sensible defaults. Credentials and
// seed keywords have no defaults and must come from the config file.
func Default() *Config {
	return &Config{
		Region: "US",
		Discovery: DiscoveryConfig{
			Languages:         []string{"eng"},
			Threshold:         0.7,
			ReviewFloor:       0.4,
			MaxResultsPerSeed: 25,
		},
		Collection: CollectionConfig{
			MaxVideosPerChannel: 200,
			Concurrency:         4,
		},
		Snapshots: SnapshotConfig{
			Cadence: []CadenceBand{
				{MaxAgeHours: 24, IntervalMinutes: 60},
				{MaxAgeHours: 720, IntervalMinutes: 1440},
			},
		},
		Features: FeatureConfig{
			ShortFormMaxSeconds:  60,
			PrimeTimeStartHour:   19,
			PrimeTimeEndHour:     22,
			SubscriberWeight:     0.7,
			VideoCountWeight:     0.3,
			SubscriberSaturation: 1_000_000,
			VideoCountSaturation: 1_000,
		},
		Prediction: PredictionConfig{
			ArtifactDir:        "artifacts",
			CompletenessWeight: 0.6,
			ConsistencyWeight:  0.4,
			FallbackConfidence: 0.2,
		},
		Storage: StorageConfig{
			Backend:        "sqlite",
			Path:           "data",
			DaprStateStore: "statestore",
		},
	}
}

// Load reads configuration from the given file (YAML) layered over defaults
// and VIEWCAST_* environment variables, then validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VIEWCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("viewcast")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/viewcast")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid. Configuration errors are
// fatal: the affected subsystem must not start on a broken config.
func (c *Config) Validate() error {
	if len(c.Credentials) == 0 {
		return fmt.Errorf("at least one credential is required")
	}
	for i, cred := range c.Credentials {
		if cred.Key == "" {
			return fmt.Errorf("credential %d (%s) has an empty key", i, cred.Name)
		}
		if cred.DailyQuota <= 0 {
			return fmt.Errorf("credential %d (%s) must have a positive daily quota", i, cred.Name)
		}
	}

	if c.Discovery.Threshold <= 0 || c.Discovery.Threshold > 1 {
		return fmt.Errorf("discovery threshold must be in (0,1], got %v", c.Discovery.Threshold)
	}
	if c.Discovery.ReviewFloor < 0 || c.Discovery.ReviewFloor >= c.Discovery.Threshold {
		return fmt.Errorf("review floor must be in [0, threshold), got %v", c.Discovery.ReviewFloor)
	}

	if c.Collection.MaxVideosPerChannel < 1 {
		return fmt.Errorf("max_videos_per_channel must be at least 1")
	}
	if c.Collection.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}

	if len(c.Snapshots.Cadence) == 0 {
		return fmt.Errorf("at least one snapshot cadence band is required")
	}
	prev := 0
	for i, band := range c.Snapshots.Cadence {
		if band.MaxAgeHours <= prev {
			return fmt.Errorf("cadence band %d: max_age_hours must increase", i)
		}
		if band.IntervalMinutes < 1 {
			return fmt.Errorf("cadence band %d: interval_minutes must be at least 1", i)
		}
		prev = band.MaxAgeHours
	}

	if c.Features.ShortFormMaxSeconds < 1 {
		return fmt.Errorf("short_form_max_seconds must be at least 1")
	}
	if c.Features.PrimeTimeStartHour < 0 || c.Features.PrimeTimeStartHour > 23 ||
		c.Features.PrimeTimeEndHour < 0 || c.Features.PrimeTimeEndHour > 23 {
		return fmt.Errorf("prime-time hours must be within 0-23")
	}
	if sum := c.Features.SubscriberWeight + c.Features.VideoCountWeight; sum <= 0 || sum > 1.0001 {
		return fmt.Errorf("authority weights must sum to at most 1, got %v", sum)
	}

	if sum := c.Prediction.CompletenessWeight + c.Prediction.ConsistencyWeight; sum <= 0 || sum > 1.0001 {
		return fmt.Errorf("confidence weights must sum to at most 1, got %v", sum)
	}
	if c.Prediction.FallbackConfidence < 0 || c.Prediction.FallbackConfidence >= 1 {
		return fmt.Errorf("fallback_confidence must be in [0,1)")
	}
	if c.Prediction.ArtifactDir == "" {
		return fmt.Errorf("artifact_dir is required")
	}

	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the sqlite backend")
		}
	case "dapr":
		if c.Storage.DaprStateStore == "" {
			return fmt.Errorf("dapr_state_store is required for the dapr backend")
		}
	default:
		return fmt.Errorf("invalid storage backend %q, must be one of: sqlite, dapr", c.Storage.Backend)
	}

	return nil
}

// CadenceInterval returns the capture interval for a video of the given age,
// or false once the video has aged out of observation.
func (c *SnapshotConfig) CadenceInterval(age time.Duration) (time.Duration, bool) {
	for _, band := range c.Cadence {
		if age < time.Duration(band.MaxAgeHours)*time.Hour {
			return time.Duration(band.IntervalMinutes) * time.Minute, true
		}
	}
	return 0, false
}
