// Package store is the persistence boundary for harvested channels, videos,
// snapshots, quarantined records, observation schedules and harvest
// checkpoints. Two backends are provided: SQLite (default) and a Dapr state
// store.
package store

import (
	"context"
	"time"

	"github.com/researchaccelerator-hub/viewcast/model"
)

// Observation schedules the next statistics capture for a video under active
// observation.
type Observation struct {
	VideoID       string    `json:"video_id"`
	TrackedAt     time.Time `json:"tracked_at"`
	NextCaptureAt time.Time `json:"next_capture_at"`
}

// Store is the persistence contract shared by all backends.
type Store interface {
	SaveChannel(ctx context.Context, channel *model.Channel) error
	GetChannel(ctx context.Context, id string) (*model.Channel, error)
	ListChannels(ctx context.Context) ([]*model.Channel, error)

	SaveVideo(ctx context.Context, video *model.Video) error
	GetVideo(ctx context.Context, id string) (*model.Video, error)
	HasVideo(ctx context.Context, id string) (bool, error)

	// QuarantineVideo keeps a record that failed validation, flagged
	// invalid, so review can later decide reprocessing vs deletion.
	QuarantineVideo(ctx context.Context, video *model.Video, issues []string) error

	// AppendSnapshot adds to a video's immutable snapshot sequence.
	AppendSnapshot(ctx context.Context, snap *model.Snapshot) error
	// ListSnapshots returns the newest snapshots first, up to limit.
	ListSnapshots(ctx context.Context, videoID string, limit int) ([]*model.Snapshot, error)

	UpsertObservation(ctx context.Context, obs Observation) error
	DueObservations(ctx context.Context, now time.Time) ([]Observation, error)
	RemoveObservation(ctx context.Context, videoID string) error

	// Harvest checkpoints make a partial run resumable.
	SaveCheckpoint(ctx context.Context, channelID, pageToken string) error
	LoadCheckpoint(ctx context.Context, channelID string) (string, error)
	ClearCheckpoint(ctx context.Context, channelID string) error

	// Failed fetches are requeued for the next scheduled run, never dropped.
	AddFailedFetch(ctx context.Context, channelID, videoID string) error
	TakeFailedFetches(ctx context.Context, channelID string) ([]string, error)

	Close() error
}
