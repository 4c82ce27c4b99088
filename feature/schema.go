// Package feature transforms a raw video+channel record and its recent
// snapshots into a fixed-order numeric feature vector. Extraction is a pure
// function: identical inputs always yield identical vectors.
package feature

// Feature names in schema order. The order and length are shared with the
// trained model artifacts and must never change without retraining.
const (
	PublishHour       = "publish_hour"
	PublishWeekday    = "publish_weekday"
	IsWeekend         = "is_weekend"
	IsPrimeTime       = "is_prime_time"
	TitleLength       = "title_length"
	TitleWordCount    = "title_word_count"
	DescLength        = "desc_length"
	DescWordCount     = "desc_word_count"
	HasQuestion       = "has_question"
	HasExclamation    = "has_exclamation"
	HasDigits         = "has_digits"
	HasBrackets       = "has_brackets"
	LanguageMatch     = "language_match"
	Sentiment         = "sentiment"
	DurationSeconds   = "duration_seconds"
	IsShortForm       = "is_short_form"
	CategoryCode      = "category_code"
	SubscriberCount   = "subscriber_count"
	ChannelVideoCount = "channel_video_count"
	AuthorityScore    = "authority_score"
	LikeViewRatio     = "like_view_ratio"
	CommentViewRatio  = "comment_view_ratio"
	EarlyViewVelocity = "early_view_velocity"
	SnapshotCount     = "snapshot_count"
)

var schema = []string{
	PublishHour,
	PublishWeekday,
	IsWeekend,
	IsPrimeTime,
	TitleLength,
	TitleWordCount,
	DescLength,
	DescWordCount,
	HasQuestion,
	HasExclamation,
	HasDigits,
	HasBrackets,
	LanguageMatch,
	Sentiment,
	DurationSeconds,
	IsShortForm,
	CategoryCode,
	SubscriberCount,
	ChannelVideoCount,
	AuthorityScore,
	LikeViewRatio,
	CommentViewRatio,
	EarlyViewVelocity,
	SnapshotCount,
}

var schemaIndex = func() map[string]int {
	m := make(map[string]int, len(schema))
	for i, name := range schema {
		m[name] = i
	}
	return m
}()

// Schema returns the feature names in output order.
func Schema() []string {
	out := make([]string, len(schema))
	copy(out, schema)
	return out
}

// Index returns the position of a feature in the schema, or -1.
func Index(name string) int {
	if idx, ok := schemaIndex[name]; ok {
		return idx
	}
	return -1
}

// Size is the fixed vector length.
func Size() int {
	return len(schema)
}
