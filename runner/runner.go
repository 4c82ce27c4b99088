// Package runner orchestrates one collection sweep: discover channels,
// harvest their uploads under a concurrency ceiling, then capture due
// statistics snapshots. Errors recover locally and aggregate into a run
// summary; a sweep only aborts on lock contention or cancellation.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/researchaccelerator-hub/viewcast/config"
	"github.com/researchaccelerator-hub/viewcast/discovery"
	"github.com/researchaccelerator-hub/viewcast/harvest"
	"github.com/researchaccelerator-hub/viewcast/model"
	"github.com/researchaccelerator-hub/viewcast/snapshot"
	"github.com/researchaccelerator-hub/viewcast/store"
	"github.com/researchaccelerator-hub/viewcast/validate"
)

// RunSummary aggregates everything one sweep did and every recovered error.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	ChannelsDiscovered int
	ChannelsForReview  int
	ChannelsHarvested  int

	Harvested   int
	Skipped     int
	Quarantined int
	Failed      int

	SnapshotsCaptured int
	Anomalies         int
	Retired           int

	Errors []string
}

// CollectionRunner drives the collection side end to end.
type CollectionRunner struct {
	cfg        *config.Config
	store      store.Store
	discoverer *discovery.Discoverer
	harvester  *harvest.Harvester
	tracker    *snapshot.Tracker
	validator  *validate.Validator
	now        func() time.Time
}

// New wires a runner over already-constructed collaborators.
func New(cfg *config.Config, s store.Store, d *discovery.Discoverer, h *harvest.Harvester, t *snapshot.Tracker, v *validate.Validator) *CollectionRunner {
	return &CollectionRunner{cfg: cfg, store: s, discoverer: d, harvester: h, tracker: t, validator: v, now: time.Now}
}

// Run performs one sweep. A file lock serializes sweeps per data directory
// so overlapping schedules cannot double-spend quota on the same corpus.
func (r *CollectionRunner) Run(ctx context.Context) (*RunSummary, error) {
	if err := os.MkdirAll(r.cfg.Storage.Path, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data directory: %w", err)
	}

	lock := flock.New(filepath.Join(r.cfg.Storage.Path, "collector.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another collection run already holds the lock")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn().Err(err).Msg("Failed to release run lock")
		}
	}()

	summary := &RunSummary{RunID: uuid.NewString(), StartedAt: r.now()}
	runLog := log.With().Str("run_id", summary.RunID).Logger()
	runLog.Info().Str("region", r.cfg.Region).Msg("Starting collection run")

	r.discover(ctx, summary)
	r.harvestAll(ctx, summary)
	r.captureSnapshots(ctx, summary)

	summary.FinishedAt = r.now()
	runLog.Info().
		Int("harvested", summary.Harvested).
		Int("quarantined", summary.Quarantined).
		Int("failed", summary.Failed).
		Int("snapshots", summary.SnapshotsCaptured).
		Int("errors", len(summary.Errors)).
		Msg("Collection run finished")

	return summary, ctx.Err()
}

func (r *CollectionRunner) discover(ctx context.Context, summary *RunSummary) {
	outcome, err := r.discoverer.Discover(ctx)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("discovery: %v", err))
	}

	now := r.now()
	for _, channel := range outcome.Accepted {
		// Relevance admits a channel; the validator still gates the record.
		if res := r.validator.ValidateChannel(channel); !res.OK {
			summary.Errors = append(summary.Errors,
				fmt.Sprintf("channel %s rejected: %s", channel.ID, strings.Join(res.Strings(), "; ")))
			continue
		}
		channel.RefreshedAt = now
		if err := r.store.SaveChannel(ctx, channel); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("save channel %s: %v", channel.ID, err))
			continue
		}
		summary.ChannelsDiscovered++
	}

	summary.ChannelsForReview = len(outcome.Review)
	for _, channel := range outcome.Review {
		log.Info().
			Str("channel_id", channel.ID).
			Float64("relevance", channel.RelevanceScore).
			Msg("Channel scored into the review band, not admitted")
	}
}

func (r *CollectionRunner) harvestAll(ctx context.Context, summary *RunSummary) {
	channels, err := r.store.ListChannels(ctx)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("list channels: %v", err))
		return
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Collection.Concurrency)

	for _, channel := range channels {
		g.Go(func() error {
			report, err := r.harvester.HarvestChannel(gctx, channel.ID)

			mu.Lock()
			defer mu.Unlock()
			summary.ChannelsHarvested++
			summary.Harvested += report.Harvested
			summary.Skipped += report.Skipped
			summary.Quarantined += report.Quarantined
			summary.Failed += report.Failed
			if err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("harvest %s: %v", channel.ID, err))
				// Quota denial cancels the remaining channels; everything
				// already harvested stays recorded.
				if errors.Is(err, model.ErrQuotaExhausted) {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, model.ErrQuotaExhausted) {
		summary.Errors = append(summary.Errors, fmt.Sprintf("harvest: %v", err))
	}
}

func (r *CollectionRunner) captureSnapshots(ctx context.Context, summary *RunSummary) {
	report, err := r.tracker.CaptureDue(ctx)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("snapshots: %v", err))
	}
	summary.SnapshotsCaptured = report.Captured
	summary.Anomalies = report.Anomalous
	summary.Retired = report.Retired
	summary.Failed += report.Failed
}
