// Package validate gates harvested records before persistence: incomplete or
// inconsistent records are quarantined, never silently discarded.
package validate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/researchaccelerator-hub/viewcast/model"
)

// Issue names one failed check on a record.
type Issue struct {
	Field  string
	Reason string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Field, i.Reason)
}

// Result reports the outcome of validating one record.
type Result struct {
	OK     bool
	Issues []Issue
}

// Strings flattens the issues for persistence alongside the quarantined
// record.
func (r Result) Strings() []string {
	out := make([]string, 0, len(r.Issues))
	for _, issue := range r.Issues {
		out = append(out, issue.String())
	}
	return out
}

// ChannelResolver resolves a video's owning-channel reference.
type ChannelResolver interface {
	GetChannel(ctx context.Context, id string) (*model.Channel, error)
}

// VideoResolver checks the lifecycle invariant that a video must exist before
// any snapshot referencing it is accepted.
type VideoResolver interface {
	GetVideo(ctx context.Context, id string) (*model.Video, error)
}

// Validator checks completeness and consistency of harvested records.
type Validator struct {
	channels ChannelResolver
	videos   VideoResolver
	now      func() time.Time
}

// New builds a validator resolving foreign references through the given
// lookups.
func New(channels ChannelResolver, videos VideoResolver) *Validator {
	return &Validator{channels: channels, videos: videos, now: time.Now}
}

// ValidateVideo checks a harvested video record.
func (v *Validator) ValidateVideo(ctx context.Context, video *model.Video) Result {
	var issues []Issue

	if video.ID == "" {
		issues = append(issues, Issue{Field: "id", Reason: "required"})
	}
	if video.Title == "" {
		issues = append(issues, Issue{Field: "title", Reason: "required"})
	}
	if video.ChannelID == "" {
		issues = append(issues, Issue{Field: "channel_id", Reason: "required"})
	}
	if video.DurationSec < 0 {
		issues = append(issues, Issue{Field: "duration_sec", Reason: "negative"})
	}
	if video.ViewCount < 0 || video.LikeCount < 0 || video.CommentCount < 0 {
		issues = append(issues, Issue{Field: "statistics", Reason: "negative counter"})
	}
	if video.PublishedAt.IsZero() {
		issues = append(issues, Issue{Field: "published_at", Reason: "required"})
	} else if video.PublishedAt.After(v.now().Add(time.Minute)) {
		issues = append(issues, Issue{Field: "published_at", Reason: "in the future"})
	}

	if video.ChannelID != "" && v.channels != nil {
		if _, err := v.channels.GetChannel(ctx, video.ChannelID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				issues = append(issues, Issue{Field: "channel_id", Reason: "unresolvable reference"})
			} else {
				issues = append(issues, Issue{Field: "channel_id", Reason: fmt.Sprintf("lookup failed: %v", err)})
			}
		}
	}

	if len(issues) > 0 {
		log.Warn().
			Str("video_id", video.ID).
			Int("issue_count", len(issues)).
			Msg("Video failed validation, quarantining")
	}
	return Result{OK: len(issues) == 0, Issues: issues}
}

// ValidateSnapshot enforces the lifecycle invariant: the referenced video
// must already exist as a validated record.
func (v *Validator) ValidateSnapshot(ctx context.Context, snap *model.Snapshot) Result {
	var issues []Issue

	if snap.VideoID == "" {
		issues = append(issues, Issue{Field: "video_id", Reason: "required"})
	}
	if snap.CapturedAt.IsZero() {
		issues = append(issues, Issue{Field: "captured_at", Reason: "required"})
	} else if snap.CapturedAt.After(v.now().Add(time.Minute)) {
		issues = append(issues, Issue{Field: "captured_at", Reason: "in the future"})
	}
	if snap.ViewCount < 0 || snap.LikeCount < 0 || snap.CommentCount < 0 {
		issues = append(issues, Issue{Field: "counters", Reason: "negative"})
	}

	if snap.VideoID != "" && v.videos != nil {
		if _, err := v.videos.GetVideo(ctx, snap.VideoID); err != nil {
			issues = append(issues, Issue{Field: "video_id", Reason: "unresolvable reference"})
		}
	}

	return Result{OK: len(issues) == 0, Issues: issues}
}

// ValidateChannel checks a discovered channel record.
func (v *Validator) ValidateChannel(channel *model.Channel) Result {
	var issues []Issue

	if channel.ID == "" {
		issues = append(issues, Issue{Field: "id", Reason: "required"})
	}
	if channel.Title == "" {
		issues = append(issues, Issue{Field: "title", Reason: "required"})
	}
	if channel.SubscriberCount < 0 || channel.VideoCount < 0 {
		issues = append(issues, Issue{Field: "statistics", Reason: "negative counter"})
	}

	return Result{OK: len(issues) == 0, Issues: issues}
}
