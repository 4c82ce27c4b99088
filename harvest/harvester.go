// Package harvest walks a channel's upload list, fetches video metadata,
// gates it through validation and places accepted videos under observation.
// Runs are idempotent: already-known video IDs are skipped, and a partial run
// resumes from its last page checkpoint.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/researchaccelerator-hub/viewcast/client"
	"github.com/researchaccelerator-hub/viewcast/config"
	"github.com/researchaccelerator-hub/viewcast/model"
	"github.com/researchaccelerator-hub/viewcast/store"
	"github.com/researchaccelerator-hub/viewcast/validate"
)

const playlistPageSize = 50

// Report summarizes one channel harvest run. Failures are collected here and
// requeued for the next run rather than aborting the remainder of a page.
type Report struct {
	ChannelID   string
	Harvested   int
	Skipped     int
	Quarantined int
	Failed      int
	FailedIDs   []string
}

// Tracker is the observation side the harvester hands accepted videos to.
type Tracker interface {
	TrackVideo(ctx context.Context, videoID string) error
}

// Harvester fetches and persists a channel's videos.
type Harvester struct {
	cfg       config.CollectionConfig
	client    client.MetadataClient
	store     store.Store
	validator *validate.Validator
	tracker   Tracker
	now       func() time.Time
}

// NewHarvester wires the harvester against its collaborators.
func NewHarvester(cfg config.CollectionConfig, c client.MetadataClient, s store.Store, v *validate.Validator, t Tracker) *Harvester {
	return &Harvester{cfg: cfg, client: c, store: s, validator: v, tracker: t, now: time.Now}
}

// HarvestChannel pages through the channel's uploads up to the configured
// per-run ceiling. Previously failed fetches are retried first. The returned
// error is non-nil only when the run as a whole had to stop (quota denied,
// upstream unreachable, context cancelled); per-video failures land in the
// report instead.
func (h *Harvester) HarvestChannel(ctx context.Context, channelID string) (Report, error) {
	report := Report{ChannelID: channelID}

	// Leftovers from earlier runs get another chance before new paging
	// spends quota.
	retries, err := h.store.TakeFailedFetches(ctx, channelID)
	if err != nil {
		return report, fmt.Errorf("load failed fetches: %w", err)
	}
	for i, videoID := range retries {
		if err := h.processVideo(ctx, channelID, videoID, &report); err != nil {
			// The queue was drained destructively; a stopped run must put
			// the failing ID and the unprocessed tail back, never drop them.
			h.requeue(ctx, channelID, retries[i:])
			return report, err
		}
	}

	playlistID, err := h.client.FetchUploadsPlaylistID(ctx, channelID)
	if err != nil {
		return report, fmt.Errorf("resolve uploads playlist for %s: %w", channelID, err)
	}

	pageToken, err := h.store.LoadCheckpoint(ctx, channelID)
	if err != nil {
		return report, fmt.Errorf("load checkpoint: %w", err)
	}

	processed := len(retries)
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		page, err := h.client.FetchPlaylistPage(ctx, playlistID, pageToken, playlistPageSize)
		if err != nil {
			return report, fmt.Errorf("fetch playlist page: %w", err)
		}

		for _, videoID := range page.VideoIDs {
			if processed >= h.cfg.MaxVideosPerChannel {
				// Ceiling hit mid-channel; the checkpoint lets the next
				// run pick the page up again and dedupe past the overlap.
				return report, nil
			}
			if err := h.processVideo(ctx, channelID, videoID, &report); err != nil {
				return report, err
			}
			processed++
		}

		if page.NextPageToken == "" {
			if err := h.store.ClearCheckpoint(ctx, channelID); err != nil {
				return report, err
			}
			return report, nil
		}
		if err := h.store.SaveCheckpoint(ctx, channelID, page.NextPageToken); err != nil {
			return report, err
		}
		pageToken = page.NextPageToken
	}
}

// requeue puts still-pending retry IDs back on the failed-fetch queue.
func (h *Harvester) requeue(ctx context.Context, channelID string, videoIDs []string) {
	for _, videoID := range videoIDs {
		if err := h.store.AddFailedFetch(ctx, channelID, videoID); err != nil {
			log.Error().Err(err).Str("video_id", videoID).Msg("Failed to requeue pending retry")
		}
	}
}

// processVideo handles a single video ID. It returns an error only for
// conditions that must stop the whole run.
func (h *Harvester) processVideo(ctx context.Context, channelID, videoID string, report *Report) error {
	known, err := h.store.HasVideo(ctx, videoID)
	if err != nil {
		return err
	}
	if known {
		report.Skipped++
		return nil
	}

	video, err := h.client.FetchVideo(ctx, videoID)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrQuotaExhausted):
		return err
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrMalformedMetadata):
		// Permanent: skipped and logged, never retried.
		log.Info().Err(err).Str("video_id", videoID).Msg("Skipping video with permanent fetch failure")
		report.Failed++
		report.FailedIDs = append(report.FailedIDs, videoID)
		return nil
	default:
		// Transient after retries: requeue for the next scheduled run.
		log.Warn().Err(err).Str("video_id", videoID).Msg("Video fetch failed, requeued for next run")
		if qErr := h.store.AddFailedFetch(ctx, channelID, videoID); qErr != nil {
			return qErr
		}
		report.Failed++
		report.FailedIDs = append(report.FailedIDs, videoID)
		return nil
	}

	if res := h.validator.ValidateVideo(ctx, video); !res.OK {
		log.Warn().Strs("issues", res.Strings()).Str("video_id", videoID).Msg("Video failed validation, quarantined")
		if err := h.store.QuarantineVideo(ctx, video, res.Strings()); err != nil {
			return err
		}
		report.Quarantined++
		return nil
	}

	video.HarvestedAt = h.now()
	if err := h.store.SaveVideo(ctx, video); err != nil {
		return err
	}
	if err := h.tracker.TrackVideo(ctx, videoID); err != nil {
		return err
	}
	report.Harvested++
	return nil
}
