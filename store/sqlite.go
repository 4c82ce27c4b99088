package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/researchaccelerator-hub/viewcast/model"
)

// SQLiteStore persists forecaster data in a single SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite initializes or connects to the database under dataDir and
// applies migrations.
func OpenSQLite(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "viewcast.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLiteStore{db: db, path: dbPath}
	if err := s.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info().Str("path", dbPath).Msg("SQLite store opened")
	return s, nil
}

func (s *SQLiteStore) applyMigrations(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS channels (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			subscriber_count INTEGER NOT NULL DEFAULT 0,
			video_count INTEGER NOT NULL DEFAULT 0,
			relevance_score REAL NOT NULL DEFAULT 0,
			discovered_at TEXT NOT NULL,
			refreshed_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS videos (
			id TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			published_at TEXT NOT NULL,
			duration_sec INTEGER NOT NULL DEFAULT 0,
			category_id TEXT NOT NULL DEFAULT '',
			tags_json TEXT,
			view_count INTEGER NOT NULL DEFAULT 0,
			like_count INTEGER NOT NULL DEFAULT 0,
			comment_count INTEGER NOT NULL DEFAULT 0,
			harvested_at TEXT NOT NULL,
			invalid INTEGER NOT NULL DEFAULT 0,
			issues_json TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			video_id TEXT NOT NULL,
			captured_at TEXT NOT NULL,
			view_count INTEGER NOT NULL,
			like_count INTEGER NOT NULL,
			comment_count INTEGER NOT NULL,
			anomalous INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_video ON snapshots (video_id, captured_at)`,
		`CREATE TABLE IF NOT EXISTS observations (
			video_id TEXT PRIMARY KEY,
			tracked_at TEXT NOT NULL,
			next_capture_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			channel_id TEXT PRIMARY KEY,
			page_token TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS failed_fetches (
			channel_id TEXT NOT NULL,
			video_id TEXT NOT NULL,
			queued_at TEXT NOT NULL,
			PRIMARY KEY (channel_id, video_id)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) SaveChannel(ctx context.Context, channel *model.Channel) error {
	discovered := channel.DiscoveredAt
	if discovered.IsZero() {
		discovered = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (id, title, description, country, subscriber_count, video_count, relevance_score, discovered_at, refreshed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, description=excluded.description, country=excluded.country,
			subscriber_count=excluded.subscriber_count, video_count=excluded.video_count,
			relevance_score=excluded.relevance_score, refreshed_at=excluded.refreshed_at`,
		channel.ID, channel.Title, channel.Description, channel.Country,
		channel.SubscriberCount, channel.VideoCount, channel.RelevanceScore,
		discovered.Format(time.RFC3339Nano), channel.RefreshedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save channel %s: %w", channel.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, country, subscriber_count, video_count, relevance_score, discovered_at, refreshed_at
		 FROM channels WHERE id = ?`, id)
	return scanChannel(row)
}

func (s *SQLiteStore) ListChannels(ctx context.Context) ([]*model.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, country, subscriber_count, video_count, relevance_score, discovered_at, refreshed_at
		 FROM channels ORDER BY relevance_score DESC`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var channels []*model.Channel
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	}
	return channels, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (*model.Channel, error) {
	var channel model.Channel
	var discovered, refreshed string
	err := row.Scan(&channel.ID, &channel.Title, &channel.Description, &channel.Country,
		&channel.SubscriberCount, &channel.VideoCount, &channel.RelevanceScore,
		&discovered, &refreshed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan channel: %w", err)
	}
	channel.DiscoveredAt, _ = time.Parse(time.RFC3339Nano, discovered)
	channel.RefreshedAt, _ = time.Parse(time.RFC3339Nano, refreshed)
	return &channel, nil
}

func (s *SQLiteStore) SaveVideo(ctx context.Context, video *model.Video) error {
	return s.saveVideo(ctx, video, false, nil)
}

func (s *SQLiteStore) QuarantineVideo(ctx context.Context, video *model.Video, issues []string) error {
	return s.saveVideo(ctx, video, true, issues)
}

func (s *SQLiteStore) saveVideo(ctx context.Context, video *model.Video, invalid bool, issues []string) error {
	tagsJSON, err := json.Marshal(video.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	var issuesJSON []byte
	if len(issues) > 0 {
		if issuesJSON, err = json.Marshal(issues); err != nil {
			return fmt.Errorf("marshal issues: %w", err)
		}
	}

	invalidFlag := 0
	if invalid {
		invalidFlag = 1
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO videos (id, channel_id, title, description, published_at, duration_sec, category_id, tags_json,
			view_count, like_count, comment_count, harvested_at, invalid, issues_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, description=excluded.description,
			view_count=excluded.view_count, like_count=excluded.like_count,
			comment_count=excluded.comment_count, invalid=excluded.invalid,
			issues_json=excluded.issues_json`,
		video.ID, video.ChannelID, video.Title, video.Description,
		video.PublishedAt.Format(time.RFC3339Nano), video.DurationSec, video.CategoryID, string(tagsJSON),
		video.ViewCount, video.LikeCount, video.CommentCount,
		video.HarvestedAt.Format(time.RFC3339Nano), invalidFlag, nullableString(string(issuesJSON)),
	)
	if err != nil {
		return fmt.Errorf("save video %s: %w", video.ID, err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// GetVideo returns a valid (non-quarantined) video by ID.
func (s *SQLiteStore) GetVideo(ctx context.Context, id string) (*model.Video, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, channel_id, title, description, published_at, duration_sec, category_id, tags_json,
			view_count, like_count, comment_count, harvested_at
		 FROM videos WHERE id = ? AND invalid = 0`, id)

	var video model.Video
	var published, harvested string
	var tagsJSON sql.NullString
	err := row.Scan(&video.ID, &video.ChannelID, &video.Title, &video.Description,
		&published, &video.DurationSec, &video.CategoryID, &tagsJSON,
		&video.ViewCount, &video.LikeCount, &video.CommentCount, &harvested)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan video: %w", err)
	}

	video.PublishedAt, _ = time.Parse(time.RFC3339Nano, published)
	video.HarvestedAt, _ = time.Parse(time.RFC3339Nano, harvested)
	if tagsJSON.Valid && tagsJSON.String != "" && tagsJSON.String != "null" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &video.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags for %s: %w", id, err)
		}
	}
	return &video, nil
}

// HasVideo reports whether the video is already known, quarantined or not.
func (s *SQLiteStore) HasVideo(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM videos WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check video %s: %w", id, err)
	}
	return true, nil
}

func (s *SQLiteStore) AppendSnapshot(ctx context.Context, snap *model.Snapshot) error {
	anomalous := 0
	if snap.Anomalous {
		anomalous = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (video_id, captured_at, view_count, like_count, comment_count, anomalous)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.VideoID, snap.CapturedAt.Format(time.RFC3339Nano),
		snap.ViewCount, snap.LikeCount, snap.CommentCount, anomalous)
	if err != nil {
		return fmt.Errorf("append snapshot for %s: %w", snap.VideoID, err)
	}
	return nil
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, videoID string, limit int) ([]*model.Snapshot, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT video_id, captured_at, view_count, like_count, comment_count, anomalous
		 FROM snapshots WHERE video_id = ? ORDER BY captured_at DESC LIMIT ?`, videoID, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots for %s: %w", videoID, err)
	}
	defer rows.Close()

	var snaps []*model.Snapshot
	for rows.Next() {
		var snap model.Snapshot
		var captured string
		var anomalous int
		if err := rows.Scan(&snap.VideoID, &captured, &snap.ViewCount, &snap.LikeCount, &snap.CommentCount, &anomalous); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.CapturedAt, _ = time.Parse(time.RFC3339Nano, captured)
		snap.Anomalous = anomalous == 1
		snaps = append(snaps, &snap)
	}
	return snaps, rows.Err()
}

func (s *SQLiteStore) UpsertObservation(ctx context.Context, obs Observation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO observations (video_id, tracked_at, next_capture_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(video_id) DO UPDATE SET next_capture_at=excluded.next_capture_at`,
		obs.VideoID, obs.TrackedAt.Format(time.RFC3339Nano), obs.NextCaptureAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert observation for %s: %w", obs.VideoID, err)
	}
	return nil
}

func (s *SQLiteStore) DueObservations(ctx context.Context, now time.Time) ([]Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT video_id, tracked_at, next_capture_at FROM observations
		 WHERE next_capture_at <= ? ORDER BY next_capture_at`, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("due observations: %w", err)
	}
	defer rows.Close()

	var due []Observation
	for rows.Next() {
		var obs Observation
		var tracked, next string
		if err := rows.Scan(&obs.VideoID, &tracked, &next); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		obs.TrackedAt, _ = time.Parse(time.RFC3339Nano, tracked)
		obs.NextCaptureAt, _ = time.Parse(time.RFC3339Nano, next)
		due = append(due, obs)
	}
	return due, rows.Err()
}

func (s *SQLiteStore) RemoveObservation(ctx context.Context, videoID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM observations WHERE video_id = ?`, videoID)
	if err != nil {
		return fmt.Errorf("remove observation for %s: %w", videoID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, channelID, pageToken string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (channel_id, page_token, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(channel_id) DO UPDATE SET page_token=excluded.page_token, updated_at=excluded.updated_at`,
		channelID, pageToken, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save checkpoint for %s: %w", channelID, err)
	}
	return nil
}

func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, channelID string) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		`SELECT page_token FROM checkpoints WHERE channel_id = ?`, channelID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load checkpoint for %s: %w", channelID, err)
	}
	return token, nil
}

func (s *SQLiteStore) ClearCheckpoint(ctx context.Context, channelID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE channel_id = ?`, channelID)
	if err != nil {
		return fmt.Errorf("clear checkpoint for %s: %w", channelID, err)
	}
	return nil
}

func (s *SQLiteStore) AddFailedFetch(ctx context.Context, channelID, videoID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO failed_fetches (channel_id, video_id, queued_at) VALUES (?, ?, ?)`,
		channelID, videoID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("queue failed fetch %s: %w", videoID, err)
	}
	return nil
}

func (s *SQLiteStore) TakeFailedFetches(ctx context.Context, channelID string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin take failed fetches: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT video_id FROM failed_fetches WHERE channel_id = ? ORDER BY queued_at`, channelID)
	if err != nil {
		return nil, fmt.Errorf("list failed fetches: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan failed fetch: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM failed_fetches WHERE channel_id = ?`, channelID); err != nil {
		return nil, fmt.Errorf("clear failed fetches: %w", err)
	}
	return ids, tx.Commit()
}
