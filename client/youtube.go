package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"github.com/researchaccelerator-hub/viewcast/model"
	"github.com/researchaccelerator-hub/viewcast/quota"
)

// YouTubeClient implements MetadataClient against the YouTube Data API v3.
// Every call reserves its quota cost before touching the network; on a remote
// quota rejection it drains the active credential, rotates and retries once.
type YouTubeClient struct {
	ledger *quota.Ledger

	mu       sync.Mutex
	services map[string]*ytapi.Service

	// newService is swappable for tests.
	newService func(ctx context.Context, apiKey string) (*ytapi.Service, error)
	now        func() time.Time
}

// NewYouTubeClient creates a metered client over the given ledger.
func NewYouTubeClient(ledger *quota.Ledger) (*YouTubeClient, error) {
	if ledger == nil {
		return nil, fmt.Errorf("quota ledger is required")
	}
	return &YouTubeClient{
		ledger:   ledger,
		services: make(map[string]*ytapi.Service),
		newService: func(ctx context.Context, apiKey string) (*ytapi.Service, error) {
			httpClient := &http.Client{Timeout: 30 * time.Second}
			return ytapi.NewService(ctx, option.WithAPIKey(apiKey), option.WithHTTPClient(httpClient))
		},
		now: time.Now,
	}, nil
}

func (c *YouTubeClient) serviceFor(ctx context.Context, apiKey string) (*ytapi.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if svc, ok := c.services[apiKey]; ok {
		return svc, nil
	}
	svc, err := c.newService(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("create YouTube service: %w", err)
	}
	c.services[apiKey] = svc
	return svc, nil
}

// call reserves budget for kind, runs fn against the reserved credential's
// service and applies the retry policy: transient errors back off and retry
// up to the attempt ceiling, a remote quota rejection rotates credentials and
// retries once, permanent errors surface immediately.
func (c *YouTubeClient) call(ctx context.Context, kind quota.CallKind, fn func(svc *ytapi.Service) error) error {
	rotated := false

	for attempt := 1; attempt <= maxTransientAttempts; attempt++ {
		permit, err := c.ledger.Reserve(kind)
		if err != nil {
			return err
		}

		svc, err := c.serviceFor(ctx, permit.APIKey())
		if err != nil {
			c.ledger.Release(permit)
			return err
		}

		err = fn(svc)
		class := classify(err)

		switch class {
		case classOK:
			c.ledger.Commit(permit)
			return nil

		case classQuota:
			// The remote side disagrees with the local counter. Drain
			// this credential and retry once on the next one.
			c.ledger.Drain(permit)
			c.ledger.ForceRotate()
			if rotated {
				return wrapClass(classQuota, err)
			}
			rotated = true
			attempt--

		case classTransient:
			c.ledger.Release(permit)
			if attempt == maxTransientAttempts {
				return wrapClass(classTransient, err)
			}
			log.Warn().
				Err(err).
				Str("call", string(kind)).
				Int("attempt", attempt).
				Msg("Transient API failure, backing off")
			if serr := sleepBackoff(ctx, attempt); serr != nil {
				return serr
			}

		default:
			// The exchange completed; the remote side charged for it.
			c.ledger.Commit(permit)
			return wrapClass(class, err)
		}
	}

	return fmt.Errorf("call %s: retry budget exhausted: %w", kind, model.ErrTransientFailure)
}

// FetchVideo retrieves one video decoded into the model shape.
func (c *YouTubeClient) FetchVideo(ctx context.Context, videoID string) (*model.Video, error) {
	if videoID == "" {
		return nil, fmt.Errorf("empty video id: %w", model.ErrMalformedMetadata)
	}

	var video *model.Video
	err := c.call(ctx, quota.CallVideosList, func(svc *ytapi.Service) error {
		resp, err := svc.Videos.
			List([]string{"snippet", "statistics", "contentDetails"}).
			Id(videoID).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return fmt.Errorf("video %s: %w", videoID, model.ErrNotFound)
		}
		video, err = decodeVideo(resp.Items[0], c.now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("video_id", video.ID).
		Int64("views", video.ViewCount).
		Msg("Fetched video metadata")
	return video, nil
}

// FetchChannel retrieves one channel decoded into the model shape.
func (c *YouTubeClient) FetchChannel(ctx context.Context, channelID string) (*model.Channel, error) {
	if channelID == "" {
		return nil, fmt.Errorf("empty channel id: %w", model.ErrMalformedMetadata)
	}

	var channel *model.Channel
	err := c.call(ctx, quota.CallChannelsList, func(svc *ytapi.Service) error {
		resp, err := svc.Channels.
			List([]string{"snippet", "statistics"}).
			Id(channelID).
			MaxResults(1).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return fmt.Errorf("channel %s: %w", channelID, model.ErrNotFound)
		}
		channel, err = decodeChannel(resp.Items[0], c.now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("channel_id", channel.ID).
		Int64("subscribers", channel.SubscriberCount).
		Msg("Fetched channel metadata")
	return channel, nil
}

// FetchUploadsPlaylistID resolves the uploads playlist for a channel.
func (c *YouTubeClient) FetchUploadsPlaylistID(ctx context.Context, channelID string) (string, error) {
	var playlistID string
	err := c.call(ctx, quota.CallChannelsList, func(svc *ytapi.Service) error {
		resp, err := svc.Channels.
			List([]string{"contentDetails"}).
			Id(channelID).
			MaxResults(1).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return fmt.Errorf("channel %s: %w", channelID, model.ErrNotFound)
		}
		details := resp.Items[0].ContentDetails
		if details == nil || details.RelatedPlaylists == nil || details.RelatedPlaylists.Uploads == "" {
			return fmt.Errorf("channel %s has no uploads playlist: %w", channelID, model.ErrMalformedMetadata)
		}
		playlistID = details.RelatedPlaylists.Uploads
		return nil
	})
	return playlistID, err
}

// FetchPlaylistPage walks one page of a playlist.
func (c *YouTubeClient) FetchPlaylistPage(ctx context.Context, playlistID, pageToken string, maxResults int64) (*PlaylistPage, error) {
	if maxResults < 1 || maxResults > 50 {
		maxResults = 50
	}

	var page *PlaylistPage
	err := c.call(ctx, quota.CallPlaylistItemsList, func(svc *ytapi.Service) error {
		call := svc.PlaylistItems.
			List([]string{"contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(maxResults).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(resp.Items))
		for _, item := range resp.Items {
			if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
				ids = append(ids, item.ContentDetails.VideoId)
			}
		}
		page = &PlaylistPage{VideoIDs: ids, NextPageToken: resp.NextPageToken}
		return nil
	})
	return page, err
}

// SearchChannels returns channel IDs matching a seed keyword. Search is the
// expensive call in the cost table, so discovery batches results per seed.
func (c *YouTubeClient) SearchChannels(ctx context.Context, keyword string, maxResults int64) ([]string, error) {
	if maxResults < 1 || maxResults > 50 {
		maxResults = 25
	}

	var ids []string
	err := c.call(ctx, quota.CallSearchList, func(svc *ytapi.Service) error {
		resp, err := svc.Search.
			List([]string{"snippet"}).
			Q(keyword).
			Type("channel").
			MaxResults(maxResults).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		for _, item := range resp.Items {
			if item.Id != nil && item.Id.ChannelId != "" {
				ids = append(ids, item.Id.ChannelId)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("keyword", keyword).
		Int("channel_count", len(ids)).
		Msg("Channel search complete")
	return ids, nil
}
