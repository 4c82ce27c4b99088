package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/researchaccelerator-hub/viewcast/model"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and
// short-lived dry runs; nothing survives the process.
type MemoryStore struct {
	mu sync.RWMutex

	channels     map[string]*model.Channel
	videos       map[string]*model.Video
	quarantined  map[string][]string
	snapshots    map[string][]*model.Snapshot
	observations map[string]Observation
	checkpoints  map[string]string
	failed       map[string][]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		channels:     make(map[string]*model.Channel),
		videos:       make(map[string]*model.Video),
		quarantined:  make(map[string][]string),
		snapshots:    make(map[string][]*model.Snapshot),
		observations: make(map[string]Observation),
		checkpoints:  make(map[string]string),
		failed:       make(map[string][]string),
	}
}

func (s *MemoryStore) SaveChannel(_ context.Context, channel *model.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *channel
	s.channels[channel.ID] = &clone
	return nil
}

func (s *MemoryStore) GetChannel(_ context.Context, id string) (*model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	channel, ok := s.channels[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	clone := *channel
	return &clone, nil
}

func (s *MemoryStore) ListChannels(_ context.Context) ([]*model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Channel, 0, len(s.channels))
	for _, channel := range s.channels {
		clone := *channel
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelevanceScore > out[j].RelevanceScore })
	return out, nil
}

func (s *MemoryStore) SaveVideo(_ context.Context, video *model.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *video
	s.videos[video.ID] = &clone
	delete(s.quarantined, video.ID)
	return nil
}

func (s *MemoryStore) QuarantineVideo(_ context.Context, video *model.Video, issues []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *video
	s.videos[video.ID] = &clone
	s.quarantined[video.ID] = append([]string(nil), issues...)
	return nil
}

// QuarantinedIssues exposes quarantine reasons for assertions in tests.
func (s *MemoryStore) QuarantinedIssues(videoID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quarantined[videoID]
}

func (s *MemoryStore) GetVideo(_ context.Context, id string) (*model.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	video, ok := s.videos[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	if _, bad := s.quarantined[id]; bad {
		return nil, model.ErrNotFound
	}
	clone := *video
	return &clone, nil
}

func (s *MemoryStore) HasVideo(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.videos[id]
	return ok, nil
}

func (s *MemoryStore) AppendSnapshot(_ context.Context, snap *model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *snap
	s.snapshots[snap.VideoID] = append(s.snapshots[snap.VideoID], &clone)
	return nil
}

func (s *MemoryStore) ListSnapshots(_ context.Context, videoID string, limit int) ([]*model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := s.snapshots[videoID]
	out := make([]*model.Snapshot, 0, len(snaps))
	for i := len(snaps) - 1; i >= 0; i-- {
		clone := *snaps[i]
		out = append(out, &clone)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertObservation(_ context.Context, obs Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observations[obs.VideoID] = obs
	return nil
}

func (s *MemoryStore) DueObservations(_ context.Context, now time.Time) ([]Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []Observation
	for _, obs := range s.observations {
		if !obs.NextCaptureAt.After(now) {
			due = append(due, obs)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextCaptureAt.Before(due[j].NextCaptureAt) })
	return due, nil
}

func (s *MemoryStore) RemoveObservation(_ context.Context, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.observations, videoID)
	return nil
}

func (s *MemoryStore) SaveCheckpoint(_ context.Context, channelID, pageToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[channelID] = pageToken
	return nil
}

func (s *MemoryStore) LoadCheckpoint(_ context.Context, channelID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoints[channelID], nil
}

func (s *MemoryStore) ClearCheckpoint(_ context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, channelID)
	return nil
}

func (s *MemoryStore) AddFailedFetch(_ context.Context, channelID, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.failed[channelID] {
		if id == videoID {
			return nil
		}
	}
	s.failed[channelID] = append(s.failed[channelID], videoID)
	return nil
}

func (s *MemoryStore) TakeFailedFetches(_ context.Context, channelID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.failed[channelID]
	delete(s.failed, channelID)
	return ids, nil
}

func (s *MemoryStore) Close() error { return nil }
