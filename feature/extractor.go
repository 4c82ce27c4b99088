package feature

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/researchaccelerator-hub/viewcast/config"
	"github.com/researchaccelerator-hub/viewcast/model"
)

// Extractor builds feature vectors against the fixed schema. It holds only
// immutable configuration, so concurrent extraction needs no locking.
type Extractor struct {
	cfg         config.FeatureConfig
	regionLangs map[string]struct{}
}

// NewExtractor builds an extractor for the given feature config and region
// languages (ISO 639-3 codes).
func NewExtractor(cfg config.FeatureConfig, regionLanguages []string) *Extractor {
	langs := make(map[string]struct{}, len(regionLanguages))
	for _, code := range regionLanguages {
		langs[strings.ToLower(code)] = struct{}{}
	}
	return &Extractor{cfg: cfg, regionLangs: langs}
}

type builder struct {
	values      []float64
	defaultMask []bool
}

func newBuilder() *builder {
	return &builder{
		values:      make([]float64, Size()),
		defaultMask: make([]bool, Size()),
	}
}

func (b *builder) set(name string, value float64) {
	b.values[schemaIndex[name]] = value
}

// setDefault leaves the documented default (zero) in place and records that
// the source value was absent.
func (b *builder) setDefault(name string) {
	b.defaultMask[schemaIndex[name]] = true
}

// Extract produces the feature vector for a video, its channel and its most
// recent snapshots. Any absent input substitutes a documented default; the
// vector's length and order are invariant.
func (e *Extractor) Extract(video *model.Video, channel *model.Channel, recent []*model.Snapshot) (model.FeatureVector, error) {
	if video == nil {
		return model.FeatureVector{}, fmt.Errorf("extract features: video is required")
	}
	if video.PublishedAt.IsZero() {
		return model.FeatureVector{}, fmt.Errorf("extract features: video %s has no publish timestamp", video.ID)
	}

	b := newBuilder()

	e.temporalFeatures(b, video)
	e.contentFeatures(b, video)
	e.structuralFeatures(b, video)
	e.authorityFeatures(b, channel)
	e.engagementFeatures(b, video)
	e.snapshotFeatures(b, video, recent)

	return model.FeatureVector{Values: b.values, DefaultMask: b.defaultMask}, nil
}

// temporalFeatures derive from the publish timestamp alone. Hours are taken
// in UTC; the prime-time window is configured in the same clock.
func (e *Extractor) temporalFeatures(b *builder, video *model.Video) {
	published := video.PublishedAt.UTC()
	hour := published.Hour()
	weekday := int(published.Weekday())

	b.set(PublishHour, float64(hour))
	b.set(PublishWeekday, float64(weekday))
	b.set(IsWeekend, boolFeature(weekday == 0 || weekday == 6))
	b.set(IsPrimeTime, boolFeature(hour >= e.cfg.PrimeTimeStartHour && hour <= e.cfg.PrimeTimeEndHour))
}

func (e *Extractor) contentFeatures(b *builder, video *model.Video) {
	title := video.Title
	desc := video.Description

	if title == "" {
		b.setDefault(TitleLength)
		b.setDefault(TitleWordCount)
	} else {
		b.set(TitleLength, float64(len([]rune(title))))
		b.set(TitleWordCount, float64(len(strings.Fields(title))))
	}

	if desc == "" {
		// Missing description zeroes its sub-features, never nulls.
		b.setDefault(DescLength)
		b.setDefault(DescWordCount)
	} else {
		b.set(DescLength, float64(len([]rune(desc))))
		b.set(DescWordCount, float64(len(strings.Fields(desc))))
	}

	combined := strings.TrimSpace(title + " " + desc)
	b.set(HasQuestion, boolFeature(strings.ContainsAny(combined, "?？")))
	b.set(HasExclamation, boolFeature(strings.ContainsAny(combined, "!！")))
	b.set(HasDigits, boolFeature(strings.ContainsAny(combined, "0123456789")))
	b.set(HasBrackets, boolFeature(strings.ContainsAny(combined, "[]()【】")))

	if combined == "" {
		b.setDefault(LanguageMatch)
		b.setDefault(Sentiment)
		return
	}

	info := whatlanggo.Detect(combined)
	code := strings.ToLower(whatlanggo.LangToString(info.Lang))
	_, match := e.regionLangs[code]
	b.set(LanguageMatch, boolFeature(match))
	b.set(Sentiment, polarity(combined))
}

func (e *Extractor) structuralFeatures(b *builder, video *model.Video) {
	b.set(DurationSeconds, float64(video.DurationSec))
	b.set(IsShortForm, boolFeature(video.IsShortForm(e.cfg.ShortFormMaxSeconds)))

	if video.CategoryID == "" {
		b.setDefault(CategoryCode)
		return
	}
	code, err := strconv.Atoi(video.CategoryID)
	if err != nil {
		b.setDefault(CategoryCode)
		return
	}
	b.set(CategoryCode, float64(code))
}

// authorityFeatures blend normalized subscriber and video counts, each
// capped at 1.0 past its saturation point so mega-channels cannot dominate
// the feature's dynamic range.
func (e *Extractor) authorityFeatures(b *builder, channel *model.Channel) {
	if channel == nil {
		b.setDefault(SubscriberCount)
		b.setDefault(ChannelVideoCount)
		b.setDefault(AuthorityScore)
		return
	}

	b.set(SubscriberCount, float64(channel.SubscriberCount))
	b.set(ChannelVideoCount, float64(channel.VideoCount))

	normSubs := saturate(channel.SubscriberCount, e.cfg.SubscriberSaturation)
	normVids := saturate(channel.VideoCount, e.cfg.VideoCountSaturation)
	b.set(AuthorityScore, e.cfg.SubscriberWeight*normSubs+e.cfg.VideoCountWeight*normVids)
}

// engagementFeatures use a denominator floor of 1 so brand-new videos with
// zero views divide cleanly.
func (e *Extractor) engagementFeatures(b *builder, video *model.Video) {
	views := video.ViewCount
	if views < 1 {
		views = 1
	}
	b.set(LikeViewRatio, float64(video.LikeCount)/float64(views))
	b.set(CommentViewRatio, float64(video.CommentCount)/float64(views))
}

// snapshotFeatures derive the early-engagement signal from the observed
// time series: views gained per hour between the oldest and newest capture.
func (e *Extractor) snapshotFeatures(b *builder, video *model.Video, recent []*model.Snapshot) {
	b.set(SnapshotCount, float64(len(recent)))

	if len(recent) < 2 {
		b.setDefault(EarlyViewVelocity)
		return
	}

	oldest, newest := recent[0], recent[0]
	for _, snap := range recent[1:] {
		if snap.CapturedAt.Before(oldest.CapturedAt) {
			oldest = snap
		}
		if snap.CapturedAt.After(newest.CapturedAt) {
			newest = snap
		}
	}

	hours := newest.CapturedAt.Sub(oldest.CapturedAt).Hours()
	if hours <= 0 {
		b.setDefault(EarlyViewVelocity)
		return
	}

	delta := float64(newest.ViewCount - oldest.ViewCount)
	if delta < 0 {
		delta = 0
	}
	b.set(EarlyViewVelocity, delta/hours)
}

func boolFeature(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func saturate(value, saturation int64) float64 {
	if saturation <= 0 {
		return 0
	}
	norm := float64(value) / float64(saturation)
	if norm > 1 {
		return 1
	}
	if norm < 0 {
		return 0
	}
	return norm
}
