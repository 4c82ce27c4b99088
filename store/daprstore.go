package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	daprc "github.com/dapr/go-sdk/client"
	"github.com/rs/zerolog/log"

	"github.com/researchaccelerator-hub/viewcast/model"
)

const (
	channelKeyPrefix    = "channel::"
	videoKeyPrefix      = "video::"
	snapshotsKeyPrefix  = "snapshots::"
	checkpointKeyPrefix = "checkpoint::"
	failedKeyPrefix     = "failed::"
	channelIndexKey     = "channels::index"
	observationIndexKey = "observations::index"
)

// DaprStore implements Store on top of a Dapr state store component, so the
// persistence backend (Redis, Postgres, ...) is a deployment decision.
// Collections that need scanning (channels, observations) are kept in index
// documents alongside the per-entity keys.
type DaprStore struct {
	client    daprc.Client
	storeName string

	// Serializes read-modify-write cycles on the index documents.
	indexMu sync.Mutex
}

// NewDaprStore connects to the Dapr sidecar and wraps the named state store.
func NewDaprStore(storeName string) (*DaprStore, error) {
	client, err := daprc.NewClient()
	if err != nil {
		return nil, fmt.Errorf("create dapr client: %w", err)
	}
	log.Info().Str("state_store", storeName).Msg("Dapr store connected")
	return &DaprStore{client: client, storeName: storeName}, nil
}

func (s *DaprStore) setJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.client.SaveState(ctx, s.storeName, key, raw, nil); err != nil {
		return fmt.Errorf("save state %s: %w", key, err)
	}
	return nil
}

// getJSON returns false when the key does not exist.
func (s *DaprStore) getJSON(ctx context.Context, key string, out any) (bool, error) {
	item, err := s.client.GetState(ctx, s.storeName, key, nil)
	if err != nil {
		return false, fmt.Errorf("get state %s: %w", key, err)
	}
	if len(item.Value) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(item.Value, out); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *DaprStore) SaveChannel(ctx context.Context, channel *model.Channel) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	if err := s.setJSON(ctx, channelKeyPrefix+channel.ID, channel); err != nil {
		return err
	}

	var index []string
	if _, err := s.getJSON(ctx, channelIndexKey, &index); err != nil {
		return err
	}
	for _, id := range index {
		if id == channel.ID {
			return nil
		}
	}
	return s.setJSON(ctx, channelIndexKey, append(index, channel.ID))
}

func (s *DaprStore) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	var channel model.Channel
	found, err := s.getJSON(ctx, channelKeyPrefix+id, &channel)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, model.ErrNotFound
	}
	return &channel, nil
}

func (s *DaprStore) ListChannels(ctx context.Context) ([]*model.Channel, error) {
	var index []string
	if _, err := s.getJSON(ctx, channelIndexKey, &index); err != nil {
		return nil, err
	}

	channels := make([]*model.Channel, 0, len(index))
	for _, id := range index {
		channel, err := s.GetChannel(ctx, id)
		if err == model.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	}
	return channels, nil
}

// videoDoc wraps a video with its quarantine flag so both live in one key.
type videoDoc struct {
	Video   *model.Video `json:"video"`
	Invalid bool         `json:"invalid"`
	Issues  []string     `json:"issues,omitempty"`
}

func (s *DaprStore) SaveVideo(ctx context.Context, video *model.Video) error {
	return s.setJSON(ctx, videoKeyPrefix+video.ID, videoDoc{Video: video})
}

func (s *DaprStore) QuarantineVideo(ctx context.Context, video *model.Video, issues []string) error {
	return s.setJSON(ctx, videoKeyPrefix+video.ID, videoDoc{Video: video, Invalid: true, Issues: issues})
}

func (s *DaprStore) GetVideo(ctx context.Context, id string) (*model.Video, error) {
	var doc videoDoc
	found, err := s.getJSON(ctx, videoKeyPrefix+id, &doc)
	if err != nil {
		return nil, err
	}
	if !found || doc.Invalid {
		return nil, model.ErrNotFound
	}
	return doc.Video, nil
}

func (s *DaprStore) HasVideo(ctx context.Context, id string) (bool, error) {
	var doc videoDoc
	return s.getJSON(ctx, videoKeyPrefix+id, &doc)
}

func (s *DaprStore) AppendSnapshot(ctx context.Context, snap *model.Snapshot) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	key := snapshotsKeyPrefix + snap.VideoID
	var snaps []*model.Snapshot
	if _, err := s.getJSON(ctx, key, &snaps); err != nil {
		return err
	}
	return s.setJSON(ctx, key, append(snaps, snap))
}

func (s *DaprStore) ListSnapshots(ctx context.Context, videoID string, limit int) ([]*model.Snapshot, error) {
	var snaps []*model.Snapshot
	if _, err := s.getJSON(ctx, snapshotsKeyPrefix+videoID, &snaps); err != nil {
		return nil, err
	}

	out := make([]*model.Snapshot, 0, len(snaps))
	for i := len(snaps) - 1; i >= 0; i-- {
		out = append(out, snaps[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *DaprStore) UpsertObservation(ctx context.Context, obs Observation) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	index := make(map[string]Observation)
	if _, err := s.getJSON(ctx, observationIndexKey, &index); err != nil {
		return err
	}
	index[obs.VideoID] = obs
	return s.setJSON(ctx, observationIndexKey, index)
}

func (s *DaprStore) DueObservations(ctx context.Context, now time.Time) ([]Observation, error) {
	index := make(map[string]Observation)
	if _, err := s.getJSON(ctx, observationIndexKey, &index); err != nil {
		return nil, err
	}

	var due []Observation
	for _, obs := range index {
		if !obs.NextCaptureAt.After(now) {
			due = append(due, obs)
		}
	}
	return due, nil
}

func (s *DaprStore) RemoveObservation(ctx context.Context, videoID string) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	index := make(map[string]Observation)
	if _, err := s.getJSON(ctx, observationIndexKey, &index); err != nil {
		return err
	}
	delete(index, videoID)
	return s.setJSON(ctx, observationIndexKey, index)
}

func (s *DaprStore) SaveCheckpoint(ctx context.Context, channelID, pageToken string) error {
	return s.setJSON(ctx, checkpointKeyPrefix+channelID, pageToken)
}

func (s *DaprStore) LoadCheckpoint(ctx context.Context, channelID string) (string, error) {
	var token string
	if _, err := s.getJSON(ctx, checkpointKeyPrefix+channelID, &token); err != nil {
		return "", err
	}
	return token, nil
}

func (s *DaprStore) ClearCheckpoint(ctx context.Context, channelID string) error {
	if err := s.client.DeleteState(ctx, s.storeName, checkpointKeyPrefix+channelID, nil); err != nil {
		return fmt.Errorf("clear checkpoint for %s: %w", channelID, err)
	}
	return nil
}

func (s *DaprStore) AddFailedFetch(ctx context.Context, channelID, videoID string) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	key := failedKeyPrefix + channelID
	var ids []string
	if _, err := s.getJSON(ctx, key, &ids); err != nil {
		return err
	}
	for _, id := range ids {
		if id == videoID {
			return nil
		}
	}
	return s.setJSON(ctx, key, append(ids, videoID))
}

func (s *DaprStore) TakeFailedFetches(ctx context.Context, channelID string) ([]string, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	key := failedKeyPrefix + channelID
	var ids []string
	if _, err := s.getJSON(ctx, key, &ids); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if err := s.client.DeleteState(ctx, s.storeName, key, nil); err != nil {
		return nil, fmt.Errorf("clear failed fetches for %s: %w", channelID, err)
	}
	return ids, nil
}

func (s *DaprStore) Close() error {
	s.client.Close()
	return nil
}
