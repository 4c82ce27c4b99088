package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/researchaccelerator-hub/viewcast/model"
)

// storeUnderTest lets the same behavioural suite run against both the SQLite
// and in-memory implementations.
func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func sampleVideo(id string) *model.Video {
	return &model.Video{
		ID:          id,
		ChannelID:   "UCchan",
		Title:       "title " + id,
		Description: "desc",
		PublishedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		DurationSec: 45,
		CategoryID:  "22",
		Tags:        []string{"news", "daily"},
		ViewCount:   1000,
		HarvestedAt: time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestVideoRoundTrip(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := s.HasVideo(ctx, "vid1")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.SaveVideo(ctx, sampleVideo("vid1")))

			ok, err = s.HasVideo(ctx, "vid1")
			require.NoError(t, err)
			assert.True(t, ok)

			got, err := s.GetVideo(ctx, "vid1")
			require.NoError(t, err)
			assert.Equal(t, "title vid1", got.Title)
			assert.Equal(t, int64(45), got.DurationSec)
			assert.Equal(t, []string{"news", "daily"}, got.Tags)

			_, err = s.GetVideo(ctx, "missing")
			assert.ErrorIs(t, err, model.ErrNotFound)
		})
	}
}

func TestQuarantinedVideoIsKeptButHidden(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			video := sampleVideo("bad1")
			require.NoError(t, s.QuarantineVideo(ctx, video, []string{"published_at in the future"}))

			// The record exists (dedupe still sees it) but is not served.
			ok, err := s.HasVideo(ctx, "bad1")
			require.NoError(t, err)
			assert.True(t, ok)

			_, err = s.GetVideo(ctx, "bad1")
			assert.ErrorIs(t, err, model.ErrNotFound)
		})
	}
}

func TestChannelRoundTrip(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			channel := &model.Channel{
				ID:              "UCchan",
				Title:           "A channel",
				Country:         "NP",
				SubscriberCount: 5000,
				VideoCount:      120,
				RelevanceScore:  0.85,
				RefreshedAt:     time.Now().UTC(),
			}
			require.NoError(t, s.SaveChannel(ctx, channel))

			got, err := s.GetChannel(ctx, "UCchan")
			require.NoError(t, err)
			assert.Equal(t, "NP", got.Country)
			assert.InDelta(t, 0.85, got.RelevanceScore, 1e-9)

			list, err := s.ListChannels(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestSnapshotsNewestFirst(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

			for i, views := range []int64{1000, 1500, 1200} {
				require.NoError(t, s.AppendSnapshot(ctx, &model.Snapshot{
					VideoID:    "vid1",
					CapturedAt: base.Add(time.Duration(i) * time.Hour),
					ViewCount:  views,
					Anomalous:  views == 1200,
				}))
			}

			snaps, err := s.ListSnapshots(ctx, "vid1", 2)
			require.NoError(t, err)
			require.Len(t, snaps, 2)
			assert.Equal(t, int64(1200), snaps[0].ViewCount)
			assert.True(t, snaps[0].Anomalous)
			assert.Equal(t, int64(1500), snaps[1].ViewCount)

			// All three records are preserved.
			all, err := s.ListSnapshots(ctx, "vid1", 0)
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestObservationScheduling(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)

			require.NoError(t, s.UpsertObservation(ctx, Observation{
				VideoID: "due", TrackedAt: now.Add(-2 * time.Hour), NextCaptureAt: now.Add(-time.Minute),
			}))
			require.NoError(t, s.UpsertObservation(ctx, Observation{
				VideoID: "later", TrackedAt: now, NextCaptureAt: now.Add(time.Hour),
			}))

			due, err := s.DueObservations(ctx, now)
			require.NoError(t, err)
			require.Len(t, due, 1)
			assert.Equal(t, "due", due[0].VideoID)

			require.NoError(t, s.RemoveObservation(ctx, "due"))
			due, err = s.DueObservations(ctx, now)
			require.NoError(t, err)
			assert.Empty(t, due)
		})
	}
}

func TestCheckpointLifecycle(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			token, err := s.LoadCheckpoint(ctx, "UCchan")
			require.NoError(t, err)
			assert.Empty(t, token)

			require.NoError(t, s.SaveCheckpoint(ctx, "UCchan", "page-2"))
			token, err = s.LoadCheckpoint(ctx, "UCchan")
			require.NoError(t, err)
			assert.Equal(t, "page-2", token)

			require.NoError(t, s.ClearCheckpoint(ctx, "UCchan"))
			token, err = s.LoadCheckpoint(ctx, "UCchan")
			require.NoError(t, err)
			assert.Empty(t, token)
		})
	}
}

func TestFailedFetchQueue(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.AddFailedFetch(ctx, "UCchan", "vid1"))
			require.NoError(t, s.AddFailedFetch(ctx, "UCchan", "vid2"))
			require.NoError(t, s.AddFailedFetch(ctx, "UCchan", "vid1")) // dedupe

			ids, err := s.TakeFailedFetches(ctx, "UCchan")
			require.NoError(t, err)
			assert.Equal(t, []string{"vid1", "vid2"}, ids)

			// Taking drains the queue.
			ids, err = s.TakeFailedFetches(ctx, "UCchan")
			require.NoError(t, err)
			assert.Empty(t, ids)
		})
	}
}
