// Package client performs rate-limited, retryable calls against the YouTube
// Data API, metered by the shared quota ledger.
package client

import (
	"context"

	"github.com/researchaccelerator-hub/viewcast/model"
)

// PlaylistPage is one page of a channel's upload list.
type PlaylistPage struct {
	VideoIDs      []string
	NextPageToken string
}

// MetadataClient defines the metered operations the collector and prediction
// paths need from the external metadata service. Every successful call
// returns data already decoded into the model entity shapes.
type MetadataClient interface {
	// FetchVideo retrieves one video with snippet, statistics and duration.
	FetchVideo(ctx context.Context, videoID string) (*model.Video, error)

	// FetchChannel retrieves one channel with snippet and statistics.
	FetchChannel(ctx context.Context, channelID string) (*model.Channel, error)

	// FetchUploadsPlaylistID resolves the uploads playlist for a channel.
	FetchUploadsPlaylistID(ctx context.Context, channelID string) (string, error)

	// FetchPlaylistPage walks one page of a playlist's video IDs.
	FetchPlaylistPage(ctx context.Context, playlistID, pageToken string, maxResults int64) (*PlaylistPage, error)

	// SearchChannels returns channel IDs matching a seed keyword.
	SearchChannels(ctx context.Context, keyword string, maxResults int64) ([]string, error)
}
