// Package discovery finds candidate channels from seed keyword searches and
// scores them against a regional-relevance signal. Channels above the
// acceptance threshold enter the corpus; a middle band is surfaced for manual
// review instead of being silently dropped.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/rs/zerolog/log"

	"github.com/researchaccelerator-hub/viewcast/client"
	"github.com/researchaccelerator-hub/viewcast/config"
	"github.com/researchaccelerator-hub/viewcast/model"
)

// Relevance signal weights. Country match dominates; language and the
// curated allowlist refine the ordering within a region.
const (
	countryWeight   = 0.5
	languageWeight  = 0.3
	allowlistWeight = 0.2
)

// Outcome partitions scored candidates by the configured thresholds.
type Outcome struct {
	Accepted []*model.Channel
	Review   []*model.Channel
	Rejected int
}

// Discoverer searches for and scores candidate channels.
type Discoverer struct {
	cfg       config.DiscoveryConfig
	region    string
	client    client.MetadataClient
	langs     map[string]struct{}
	allowlist map[string]struct{}
	now       func() time.Time
}

// New builds a discoverer for the given region.
func New(cfg config.DiscoveryConfig, region string, c client.MetadataClient) *Discoverer {
	langs := make(map[string]struct{}, len(cfg.Languages))
	for _, code := range cfg.Languages {
		langs[strings.ToLower(code)] = struct{}{}
	}
	allow := make(map[string]struct{}, len(cfg.Allowlist))
	for _, id := range cfg.Allowlist {
		allow[id] = struct{}{}
	}
	return &Discoverer{
		cfg:       cfg,
		region:    region,
		client:    c,
		langs:     langs,
		allowlist: allow,
		now:       time.Now,
	}
}

// Discover runs every seed keyword through channel search, fetches each
// unique candidate once and scores it. A failing seed is logged and skipped;
// only quota denial or cancellation stops the sweep.
func (d *Discoverer) Discover(ctx context.Context) (Outcome, error) {
	var outcome Outcome
	seen := make(map[string]struct{})

	for _, seed := range d.cfg.SeedKeywords {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		ids, err := d.client.SearchChannels(ctx, seed, int64(d.cfg.MaxResultsPerSeed))
		if err != nil {
			if errors.Is(err, model.ErrQuotaExhausted) {
				return outcome, fmt.Errorf("search %q: %w", seed, err)
			}
			log.Warn().Err(err).Str("seed", seed).Msg("Seed search failed, continuing with remaining seeds")
			continue
		}

		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			channel, err := d.client.FetchChannel(ctx, id)
			if err != nil {
				if errors.Is(err, model.ErrQuotaExhausted) {
					return outcome, err
				}
				log.Warn().Err(err).Str("channel_id", id).Msg("Candidate channel fetch failed, skipping")
				continue
			}

			channel.RelevanceScore = d.Score(channel)
			channel.DiscoveredAt = d.now()

			switch {
			case channel.RelevanceScore >= d.cfg.Threshold:
				outcome.Accepted = append(outcome.Accepted, channel)
			case channel.RelevanceScore >= d.cfg.ReviewFloor:
				outcome.Review = append(outcome.Review, channel)
			default:
				outcome.Rejected++
			}
		}
	}

	return outcome, nil
}

// Score blends the three regional-relevance signals into [0,1].
func (d *Discoverer) Score(channel *model.Channel) float64 {
	score := 0.0

	if channel.Country != "" && strings.EqualFold(channel.Country, d.region) {
		score += countryWeight
	}

	if text := strings.TrimSpace(channel.Title + " " + channel.Description); text != "" {
		info := whatlanggo.Detect(text)
		code := strings.ToLower(whatlanggo.LangToString(info.Lang))
		if _, ok := d.langs[code]; ok {
			score += languageWeight
		}
	}

	if _, ok := d.allowlist[channel.ID]; ok {
		score += allowlistWeight
	}

	return score
}
