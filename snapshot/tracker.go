// Package snapshot schedules and performs periodic statistics captures for
// videos under active observation, on a cadence that decays with video age.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/researchaccelerator-hub/viewcast/client"
	"github.com/researchaccelerator-hub/viewcast/config"
	"github.com/researchaccelerator-hub/viewcast/model"
	"github.com/researchaccelerator-hub/viewcast/store"
	"github.com/researchaccelerator-hub/viewcast/validate"
)

// Report summarizes one capture sweep.
type Report struct {
	Captured  int
	Anomalous int
	Retired   int
	Failed    int
}

// Tracker owns the observation schedule. Videos enter observation when the
// harvester stores them and leave once they age past the last cadence band.
type Tracker struct {
	cfg       config.SnapshotConfig
	store     store.Store
	client    client.MetadataClient
	validator *validate.Validator
	now       func() time.Time
}

// NewTracker builds a tracker over the given store and metadata client.
// Every capture passes the validator before it is appended.
func NewTracker(cfg config.SnapshotConfig, s store.Store, c client.MetadataClient, v *validate.Validator) *Tracker {
	return &Tracker{cfg: cfg, store: s, client: c, validator: v, now: time.Now}
}

// TrackVideo places an already-persisted video under observation. The video
// must exist in storage first; snapshots never precede their video.
func (t *Tracker) TrackVideo(ctx context.Context, videoID string) error {
	video, err := t.store.GetVideo(ctx, videoID)
	if err != nil {
		return fmt.Errorf("track video %s: %w", videoID, err)
	}

	now := t.now()
	interval, ok := t.cfg.CadenceInterval(now.Sub(video.PublishedAt))
	if !ok {
		log.Debug().Str("video_id", videoID).Msg("Video already past the observation window, not tracking")
		return nil
	}

	return t.store.UpsertObservation(ctx, store.Observation{
		VideoID:       videoID,
		TrackedAt:     now,
		NextCaptureAt: now.Add(interval),
	})
}

// CaptureDue captures fresh statistics for every observation whose next
// capture time has passed. One video's failure never aborts the sweep; it is
// counted and the observation stays due for the next run.
func (t *Tracker) CaptureDue(ctx context.Context) (Report, error) {
	var report Report

	due, err := t.store.DueObservations(ctx, t.now())
	if err != nil {
		return report, fmt.Errorf("list due observations: %w", err)
	}

	for _, obs := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		anomalous, retired, err := t.captureOne(ctx, obs)
		switch {
		case errors.Is(err, model.ErrNotFound):
			// Gone from the remote service; stop observing it.
			log.Info().Str("video_id", obs.VideoID).Msg("Video no longer available, retiring observation")
			if rmErr := t.store.RemoveObservation(ctx, obs.VideoID); rmErr != nil {
				return report, rmErr
			}
			report.Retired++
		case err != nil:
			log.Warn().Err(err).Str("video_id", obs.VideoID).Msg("Statistics capture failed, will retry next sweep")
			report.Failed++
		default:
			report.Captured++
			if anomalous {
				report.Anomalous++
			}
			if retired {
				report.Retired++
			}
		}
	}

	return report, nil
}

func (t *Tracker) captureOne(ctx context.Context, obs store.Observation) (anomalous, retired bool, err error) {
	video, err := t.store.GetVideo(ctx, obs.VideoID)
	if err != nil {
		return false, false, fmt.Errorf("load video: %w", err)
	}

	fetched, err := t.client.FetchVideo(ctx, obs.VideoID)
	if err != nil {
		return false, false, err
	}

	now := t.now()
	snap := &model.Snapshot{
		VideoID:      obs.VideoID,
		CapturedAt:   now,
		ViewCount:    fetched.ViewCount,
		LikeCount:    fetched.LikeCount,
		CommentCount: fetched.CommentCount,
	}

	if res := t.validator.ValidateSnapshot(ctx, snap); !res.OK {
		return false, false, fmt.Errorf("snapshot rejected (%s): %w",
			strings.Join(res.Strings(), "; "), model.ErrMalformedMetadata)
	}

	previous, err := t.store.ListSnapshots(ctx, obs.VideoID, 1)
	if err != nil {
		return false, false, fmt.Errorf("load previous snapshot: %w", err)
	}
	if len(previous) > 0 && snap.ViewCount < previous[0].ViewCount {
		// Decreasing views are flagged, never silently accepted. The record
		// is still appended so the full history survives review.
		snap.Anomalous = true
		log.Warn().Err(model.ErrStatAnomaly).
			Str("video_id", obs.VideoID).
			Int64("previous_views", previous[0].ViewCount).
			Int64("captured_views", snap.ViewCount).
			Msg("View count decreased between captures")
	}

	if err := t.store.AppendSnapshot(ctx, snap); err != nil {
		return false, false, fmt.Errorf("append snapshot: %w", err)
	}

	// Aggregate counters on the video only advance from trusted captures.
	if !snap.Anomalous {
		video.ViewCount = fetched.ViewCount
		video.LikeCount = fetched.LikeCount
		video.CommentCount = fetched.CommentCount
		if err := t.store.SaveVideo(ctx, video); err != nil {
			return false, false, fmt.Errorf("update aggregates: %w", err)
		}
	}

	interval, ok := t.cfg.CadenceInterval(now.Sub(video.PublishedAt))
	if !ok {
		if err := t.store.RemoveObservation(ctx, obs.VideoID); err != nil {
			return false, false, err
		}
		return snap.Anomalous, true, nil
	}

	obs.NextCaptureAt = now.Add(interval)
	if err := t.store.UpsertObservation(ctx, obs); err != nil {
		return false, false, err
	}
	return snap.Anomalous, false, nil
}
