package client

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	ytapi "google.golang.org/api/youtube/v3"

	"github.com/researchaccelerator-hub/viewcast/model"
)

// This file is the single place where "missing field" policy lives: a remote
// payload either decodes into a validated entity or surfaces
// model.ErrMalformedMetadata.

func decodeVideo(item *ytapi.Video, now time.Time) (*model.Video, error) {
	if item == nil || item.Id == "" {
		return nil, fmt.Errorf("video payload without id: %w", model.ErrMalformedMetadata)
	}
	if item.Snippet == nil {
		return nil, fmt.Errorf("video %s missing snippet: %w", item.Id, model.ErrMalformedMetadata)
	}
	if item.ContentDetails == nil {
		return nil, fmt.Errorf("video %s missing content details: %w", item.Id, model.ErrMalformedMetadata)
	}
	if item.Snippet.ChannelId == "" || item.Snippet.Title == "" {
		return nil, fmt.Errorf("video %s missing channel or title: %w", item.Id, model.ErrMalformedMetadata)
	}

	publishedAt, err := parseTimestamp(item.Snippet.PublishedAt)
	if err != nil {
		return nil, fmt.Errorf("video %s publish time: %w", item.Id, err)
	}

	durationSec, err := parseISODuration(item.ContentDetails.Duration)
	if err != nil {
		return nil, fmt.Errorf("video %s duration: %w", item.Id, err)
	}

	video := &model.Video{
		ID:          item.Id,
		ChannelID:   item.Snippet.ChannelId,
		Title:       item.Snippet.Title,
		Description: item.Snippet.Description,
		PublishedAt: publishedAt,
		DurationSec: durationSec,
		CategoryID:  item.Snippet.CategoryId,
		Tags:        item.Snippet.Tags,
		HarvestedAt: now,
	}

	if item.Statistics != nil {
		video.ViewCount = int64(item.Statistics.ViewCount)
		video.LikeCount = int64(item.Statistics.LikeCount)
		video.CommentCount = int64(item.Statistics.CommentCount)
	}

	return video, nil
}

func decodeChannel(item *ytapi.Channel, now time.Time) (*model.Channel, error) {
	if item == nil || item.Id == "" {
		return nil, fmt.Errorf("channel payload without id: %w", model.ErrMalformedMetadata)
	}
	if item.Snippet == nil {
		return nil, fmt.Errorf("channel %s missing snippet: %w", item.Id, model.ErrMalformedMetadata)
	}

	channel := &model.Channel{
		ID:          item.Id,
		Title:       item.Snippet.Title,
		Description: item.Snippet.Description,
		Country:     item.Snippet.Country,
		RefreshedAt: now,
	}

	if item.Statistics != nil {
		channel.SubscriberCount = int64(item.Statistics.SubscriberCount)
		channel.VideoCount = int64(item.Statistics.VideoCount)
	}

	return channel, nil
}

// parseTimestamp parses the RFC3339 timestamps the API emits into UTC.
func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp: %w", model.ErrMalformedMetadata)
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", raw, model.ErrMalformedMetadata)
	}
	return ts.UTC(), nil
}

// parseISODuration converts an ISO-8601 period string (for example PT1H2M3S)
// into whole seconds. Date components beyond days never occur in video
// durations and are rejected.
func parseISODuration(raw string) (int64, error) {
	if raw == "" || raw == "P0D" {
		return 0, nil
	}
	if !strings.HasPrefix(raw, "P") {
		return 0, fmt.Errorf("duration %q: %w", raw, model.ErrMalformedMetadata)
	}

	var total int64
	var number strings.Builder
	inTime := false

	for _, r := range raw[1:] {
		switch {
		case r == 'T':
			inTime = true
		case r >= '0' && r <= '9':
			number.WriteRune(r)
		default:
			if number.Len() == 0 {
				return 0, fmt.Errorf("duration %q: %w", raw, model.ErrMalformedMetadata)
			}
			n, err := strconv.ParseInt(number.String(), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("duration %q: %w", raw, model.ErrMalformedMetadata)
			}
			number.Reset()

			switch {
			case r == 'D' && !inTime:
				total += n * 86400
			case r == 'H' && inTime:
				total += n * 3600
			case r == 'M' && inTime:
				total += n * 60
			case r == 'S' && inTime:
				total += n
			default:
				return 0, fmt.Errorf("duration %q has unsupported component %c: %w", raw, r, model.ErrMalformedMetadata)
			}
		}
	}

	if number.Len() != 0 {
		return 0, fmt.Errorf("duration %q has a trailing number: %w", raw, model.ErrMalformedMetadata)
	}

	return total, nil
}
