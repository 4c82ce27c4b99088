package discovery

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/researchaccelerator-hub/viewcast/client"
	"github.com/researchaccelerator-hub/viewcast/config"
	"github.com/researchaccelerator-hub/viewcast/model"
)

type fakeClient struct {
	searchChannels func(ctx context.Context, keyword string, maxResults int64) ([]string, error)
	fetchChannel   func(ctx context.Context, channelID string) (*model.Channel, error)
}

func (f *fakeClient) SearchChannels(ctx context.Context, keyword string, maxResults int64) ([]string, error) {
	return f.searchChannels(ctx, keyword, maxResults)
}

func (f *fakeClient) FetchChannel(ctx context.Context, channelID string) (*model.Channel, error) {
	return f.fetchChannel(ctx, channelID)
}

func (f *fakeClient) FetchVideo(context.Context, string) (*model.Video, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeClient) FetchUploadsPlaylistID(context.Context, string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (f *fakeClient) FetchPlaylistPage(context.Context, string, string, int64) (*client.PlaylistPage, error) {
	return nil, fmt.Errorf("not implemented")
}

const englishBlurb = "This channel publishes English tutorials about cooking and travel every single week."

func testConfig() config.DiscoveryConfig {
	cfg := config.Default().Discovery
	cfg.SeedKeywords = []string{"cooking", "travel"}
	return cfg
}

func TestScoreCountryAndLanguage(t *testing.T) {
	d := New(testConfig(), "US", &fakeClient{})

	ch := &model.Channel{ID: "UCa", Title: "Cooking at home", Description: englishBlurb, Country: "US"}
	assert.InDelta(t, 0.8, d.Score(ch), 1e-9)
}

func TestScoreCountryOnly(t *testing.T) {
	d := New(testConfig(), "US", &fakeClient{})

	ch := &model.Channel{ID: "UCa", Title: "料理チャンネル", Description: "毎週料理の動画を投稿しています", Country: "us"}
	assert.InDelta(t, 0.5, d.Score(ch), 1e-9)
}

func TestScoreAllowlistCompletesFullMarks(t *testing.T) {
	cfg := testConfig()
	cfg.Allowlist = []string{"UCa"}
	d := New(cfg, "US", &fakeClient{})

	ch := &model.Channel{ID: "UCa", Title: "Cooking at home", Description: englishBlurb, Country: "US"}
	assert.InDelta(t, 1.0, d.Score(ch), 1e-9)
}

func TestScoreNoSignals(t *testing.T) {
	d := New(testConfig(), "US", &fakeClient{})
	assert.Equal(t, 0.0, d.Score(&model.Channel{ID: "UCa", Country: "JP"}))
}

func TestDiscoverPartitionsByThreshold(t *testing.T) {
	channels := map[string]*model.Channel{
		// 0.8: accepted.
		"UCaccept": {ID: "UCaccept", Title: "Cooking", Description: englishBlurb, Country: "US"},
		// 0.5: review band.
		"UCreview": {ID: "UCreview", Title: "料理", Description: "毎週料理の動画を投稿しています", Country: "US"},
		// 0.0: rejected.
		"UCreject": {ID: "UCreject", Title: "料理", Description: "毎週料理の動画を投稿しています", Country: "JP"},
	}
	fc := &fakeClient{
		searchChannels: func(context.Context, string, int64) ([]string, error) {
			return []string{"UCaccept", "UCreview", "UCreject"}, nil
		},
		fetchChannel: func(_ context.Context, id string) (*model.Channel, error) {
			clone := *channels[id]
			return &clone, nil
		},
	}

	cfg := testConfig()
	cfg.SeedKeywords = []string{"cooking"}
	d := New(cfg, "US", fc)

	outcome, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, outcome.Accepted, 1)
	assert.Equal(t, "UCaccept", outcome.Accepted[0].ID)
	assert.InDelta(t, 0.8, outcome.Accepted[0].RelevanceScore, 1e-9)
	assert.False(t, outcome.Accepted[0].DiscoveredAt.IsZero())
	require.Len(t, outcome.Review, 1)
	assert.Equal(t, "UCreview", outcome.Review[0].ID)
	assert.Equal(t, 1, outcome.Rejected)
}

func TestDiscoverDeduplicatesAcrossSeeds(t *testing.T) {
	fetches := 0
	fc := &fakeClient{
		searchChannels: func(context.Context, string, int64) ([]string, error) {
			return []string{"UCa"}, nil
		},
		fetchChannel: func(_ context.Context, id string) (*model.Channel, error) {
			fetches++
			return &model.Channel{ID: id, Title: "Cooking", Description: englishBlurb, Country: "US"}, nil
		},
	}
	d := New(testConfig(), "US", fc)

	outcome, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fetches)
	assert.Len(t, outcome.Accepted, 1)
}

func TestDiscoverFailingSeedIsSkipped(t *testing.T) {
	fc := &fakeClient{
		searchChannels: func(_ context.Context, keyword string, _ int64) ([]string, error) {
			if keyword == "cooking" {
				return nil, fmt.Errorf("upstream hiccup: %w", model.ErrTransientFailure)
			}
			return []string{"UCa"}, nil
		},
		fetchChannel: func(_ context.Context, id string) (*model.Channel, error) {
			return &model.Channel{ID: id, Title: "Travel", Description: englishBlurb, Country: "US"}, nil
		},
	}
	d := New(testConfig(), "US", fc)

	outcome, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, outcome.Accepted, 1)
}

func TestDiscoverQuotaDenialStopsSweep(t *testing.T) {
	fc := &fakeClient{
		searchChannels: func(context.Context, string, int64) ([]string, error) {
			return nil, fmt.Errorf("no budget: %w", model.ErrQuotaExhausted)
		},
	}
	d := New(testConfig(), "US", fc)

	_, err := d.Discover(context.Background())
	assert.ErrorIs(t, err, model.ErrQuotaExhausted)
}
