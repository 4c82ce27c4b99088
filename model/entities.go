// Package model contains the core data entities shared across the forecaster.
package model

import (
	"time"
)

// Channel represents a video channel admitted to the regional corpus.
type Channel struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Country         string    `json:"country"`
	SubscriberCount int64     `json:"subscriber_count"`
	VideoCount      int64     `json:"video_count"`
	RelevanceScore  float64   `json:"relevance_score"`
	DiscoveredAt    time.Time `json:"discovered_at"`
	RefreshedAt     time.Time `json:"refreshed_at"`
}

// Video represents a harvested video and its current aggregate statistics.
// Statistics are mutated by the snapshot tracker; everything else is written
// once at harvest time.
type Video struct {
	ID           string    `json:"id"`
	ChannelID    string    `json:"channel_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	PublishedAt  time.Time `json:"published_at"`
	DurationSec  int64     `json:"duration_sec"`
	CategoryID   string    `json:"category_id"`
	Tags         []string  `json:"tags,omitempty"`
	ViewCount    int64     `json:"view_count"`
	LikeCount    int64     `json:"like_count"`
	CommentCount int64     `json:"comment_count"`
	HarvestedAt  time.Time `json:"harvested_at"`
}

// IsShortForm classifies the video by duration alone. The threshold is the
// single classifier; no secondary signal is consulted.
func (v *Video) IsShortForm(maxSeconds int64) bool {
	return v.DurationSec <= maxSeconds
}

// Snapshot is an immutable, append-only capture of a video's counters at a
// point in time. Anomalous marks captures whose view count regressed against
// the previous snapshot; the record is kept either way.
type Snapshot struct {
	VideoID      string    `json:"video_id"`
	CapturedAt   time.Time `json:"captured_at"`
	ViewCount    int64     `json:"view_count"`
	LikeCount    int64     `json:"like_count"`
	CommentCount int64     `json:"comment_count"`
	Anomalous    bool      `json:"anomalous"`
}

// FeatureVector is an ordered numeric sequence keyed by a fixed feature
// schema. DefaultMask marks positions that were filled with a documented
// default because the source value was absent.
type FeatureVector struct {
	Values      []float64
	DefaultMask []bool
}

// Completeness returns the fraction of values that were derived from real
// inputs rather than defaults.
func (fv FeatureVector) Completeness() float64 {
	if len(fv.Values) == 0 {
		return 0
	}
	present := 0
	for _, defaulted := range fv.DefaultMask {
		if !defaulted {
			present++
		}
	}
	return float64(present) / float64(len(fv.Values))
}

// ModelVariant identifies which trained artifact (or the fallback heuristic)
// produced a prediction.
type ModelVariant string

const (
	VariantShortForm ModelVariant = "short_form"
	VariantLongForm  ModelVariant = "long_form"
	VariantFallback  ModelVariant = "fallback"
)

// PredictionResult holds the multi-horizon forecast for a single video.
// Immutable once produced; callers may cache it.
type PredictionResult struct {
	Horizon24h   float64      `json:"horizon_24h"`
	Horizon7d    float64      `json:"horizon_7d"`
	Horizon30d   float64      `json:"horizon_30d"`
	Confidence   float64      `json:"confidence"`
	ModelVariant ModelVariant `json:"model_variant"`
	GeneratedAt  time.Time    `json:"generated_at"`
}
