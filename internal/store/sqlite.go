package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/creatrr/trendwatch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for local
// development and the test suite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS channels (
	channel_id       TEXT PRIMARY KEY,
	channel_name     TEXT NOT NULL,
	subscriber_count INTEGER NOT NULL DEFAULT 0,
	total_videos     INTEGER NOT NULL DEFAULT 0,
	is_active        INTEGER NOT NULL DEFAULT 1,
	created_at       DATETIME NOT NULL,
	last_checked_at  DATETIME
);

CREATE TABLE IF NOT EXISTS videos (
	video_id         TEXT PRIMARY KEY,
	channel_id       TEXT NOT NULL REFERENCES channels(channel_id),
	title            TEXT NOT NULL DEFAULT '',
	published_at     DATETIME NOT NULL,
	discovered_at    DATETIME NOT NULL,
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	is_short         INTEGER NOT NULL DEFAULT 0,
	tracking_status  TEXT NOT NULL DEFAULT 'active'
);

CREATE INDEX IF NOT EXISTS idx_videos_channel ON videos(channel_id);
CREATE INDEX IF NOT EXISTS idx_videos_status ON videos(tracking_status);
CREATE INDEX IF NOT EXISTS idx_videos_published ON videos(published_at);

CREATE TABLE IF NOT EXISTS scheduled_measurements (
	id          TEXT PRIMARY KEY,
	video_id    TEXT NOT NULL REFERENCES videos(video_id),
	window_type TEXT NOT NULL,
	due_at      DATETIME NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	attempts    INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT NOT NULL DEFAULT '',
	UNIQUE (video_id, window_type)
);

CREATE INDEX IF NOT EXISTS idx_measurements_due ON scheduled_measurements(status, due_at);

CREATE TABLE IF NOT EXISTS snapshots (
	id          TEXT PRIMARY KEY,
	video_id    TEXT NOT NULL REFERENCES videos(video_id),
	window_type TEXT NOT NULL,
	views       INTEGER NOT NULL,
	likes       INTEGER NOT NULL,
	comments    INTEGER NOT NULL,
	captured_at DATETIME NOT NULL,
	UNIQUE (video_id, window_type)
);

CREATE TABLE IF NOT EXISTS channel_baselines (
	channel_id      TEXT NOT NULL,
	is_short        INTEGER NOT NULL,
	window_type     TEXT NOT NULL,
	median_views    INTEGER NOT NULL,
	median_likes    INTEGER NOT NULL,
	median_comments INTEGER NOT NULL,
	sample_size     INTEGER NOT NULL,
	source          TEXT NOT NULL DEFAULT 'calculated',
	updated_at      DATETIME NOT NULL,
	PRIMARY KEY (channel_id, is_short, window_type)
);

CREATE TABLE IF NOT EXISTS video_topics (
	id           TEXT PRIMARY KEY,
	video_id     TEXT NOT NULL REFERENCES videos(video_id),
	topic        TEXT NOT NULL,
	extracted_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_video_topics_video ON video_topics(video_id);

CREATE TABLE IF NOT EXISTS topic_clusters (
	id              TEXT PRIMARY KEY,
	bucket_id       TEXT NOT NULL DEFAULT '',
	normalized_name TEXT NOT NULL,
	updated_at      DATETIME NOT NULL,
	UNIQUE (bucket_id, normalized_name)
);

CREATE TABLE IF NOT EXISTS cluster_topics (
	cluster_id TEXT NOT NULL REFERENCES topic_clusters(id),
	topic      TEXT NOT NULL,
	UNIQUE (cluster_id, topic)
);

CREATE TABLE IF NOT EXISTS trending_topics (
	id              TEXT PRIMARY KEY,
	cluster_id      TEXT NOT NULL REFERENCES topic_clusters(id),
	bucket_id       TEXT NOT NULL DEFAULT '',
	channel_count   INTEGER NOT NULL,
	video_count     INTEGER NOT NULL,
	avg_performance REAL,
	video_ids       TEXT NOT NULL,
	detected_at     DATETIME NOT NULL,
	period_start    DATETIME NOT NULL,
	period_end      DATETIME NOT NULL,
	UNIQUE (bucket_id, cluster_id)
);

CREATE INDEX IF NOT EXISTS idx_trending_detected ON trending_topics(bucket_id, detected_at);

CREATE TABLE IF NOT EXISTS buckets (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS bucket_channels (
	bucket_id  TEXT NOT NULL REFERENCES buckets(id),
	channel_id TEXT NOT NULL REFERENCES channels(channel_id),
	UNIQUE (bucket_id, channel_id)
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- Channels ---

func (s *SQLiteStore) UpsertChannel(ctx context.Context, ch model.Channel) error {
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (channel_id, channel_name, subscriber_count, total_videos, is_active, created_at, last_checked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (channel_id) DO UPDATE SET
		   channel_name = excluded.channel_name,
		   subscriber_count = excluded.subscriber_count,
		   total_videos = excluded.total_videos,
		   is_active = excluded.is_active`,
		ch.ID, ch.Name, ch.SubscriberCount, ch.TotalVideos, ch.IsActive, ch.CreatedAt, ch.LastCheckedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert channel %s", ch.ID)
}

func (s *SQLiteStore) GetChannel(ctx context.Context, channelID string) (*model.Channel, error) {
	var ch model.Channel
	var lastChecked sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_id, channel_name, subscriber_count, total_videos, is_active, created_at, last_checked_at
		 FROM channels WHERE channel_id = ?`,
		channelID,
	).Scan(&ch.ID, &ch.Name, &ch.SubscriberCount, &ch.TotalVideos, &ch.IsActive, &ch.CreatedAt, &lastChecked)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get channel %s", channelID)
	}
	if lastChecked.Valid {
		ch.LastCheckedAt = &lastChecked.Time
	}
	return &ch, nil
}

func (s *SQLiteStore) ListChannels(ctx context.Context, activeOnly bool) ([]model.Channel, error) {
	query := `SELECT channel_id, channel_name, subscriber_count, total_videos, is_active, created_at, last_checked_at FROM channels`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list channels")
	}
	defer rows.Close()

	var channels []model.Channel
	for rows.Next() {
		var ch model.Channel
		var lastChecked sql.NullTime
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.SubscriberCount, &ch.TotalVideos, &ch.IsActive, &ch.CreatedAt, &lastChecked); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan channel")
		}
		if lastChecked.Valid {
			ch.LastCheckedAt = &lastChecked.Time
		}
		channels = append(channels, ch)
	}
	return channels, eris.Wrap(rows.Err(), "sqlite: list channels iterate")
}

func (s *SQLiteStore) SetChannelActive(ctx context.Context, channelID string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE channels SET is_active = ? WHERE channel_id = ?`,
		active, channelID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set channel active %s", channelID)
	}
	return checkSQLRowsAffected(res, "channel", channelID)
}

func (s *SQLiteStore) TouchChannelChecked(ctx context.Context, channelID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE channels SET last_checked_at = ? WHERE channel_id = ?`,
		at.UTC(), channelID,
	)
	return eris.Wrapf(err, "sqlite: touch channel %s", channelID)
}

// --- Videos ---

func (s *SQLiteStore) CreateVideoWithSchedule(ctx context.Context, v model.Video) ([]model.ScheduledMeasurement, error) {
	if v.DiscoveredAt.IsZero() {
		v.DiscoveredAt = time.Now().UTC()
	}
	if v.TrackingStatus == "" {
		v.TrackingStatus = model.TrackingActive
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO videos (video_id, channel_id, title, published_at, discovered_at, duration_seconds, is_short, tracking_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.ChannelID, v.Title, v.PublishedAt.UTC(), v.DiscoveredAt.UTC(), v.DurationSeconds, v.IsShort, string(v.TrackingStatus),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, ErrDuplicateItem
		}
		return nil, eris.Wrapf(err, "sqlite: insert video %s", v.ID)
	}

	measurements := make([]model.ScheduledMeasurement, 0, len(model.Windows()))
	for _, w := range model.Windows() {
		m := model.ScheduledMeasurement{
			ID:      uuid.New().String(),
			VideoID: v.ID,
			Window:  w,
			DueAt:   v.PublishedAt.Add(w.Offset()).UTC(),
			Status:  model.MeasurementPending,
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO scheduled_measurements (id, video_id, window_type, due_at, status, attempts, last_error)
			 VALUES (?, ?, ?, ?, ?, 0, '')`,
			m.ID, m.VideoID, string(m.Window), m.DueAt, string(m.Status),
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert measurement %s/%s", v.ID, w)
		}
		measurements = append(measurements, m)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit video schedule")
	}
	return measurements, nil
}

func (s *SQLiteStore) GetVideo(ctx context.Context, videoID string) (*model.Video, error) {
	var v model.Video
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT video_id, channel_id, title, published_at, discovered_at, duration_seconds, is_short, tracking_status
		 FROM videos WHERE video_id = ?`,
		videoID,
	).Scan(&v.ID, &v.ChannelID, &v.Title, &v.PublishedAt, &v.DiscoveredAt, &v.DurationSeconds, &v.IsShort, &status)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get video %s", videoID)
	}
	v.TrackingStatus = model.TrackingStatus(status)
	return &v, nil
}

func (s *SQLiteStore) RecentVideos(ctx context.Context, since time.Time, channelIDs []string) ([]model.Video, error) {
	query := `SELECT video_id, channel_id, title, published_at, discovered_at, duration_seconds, is_short, tracking_status
	          FROM videos WHERE published_at >= ? AND tracking_status != 'removed'`
	args := []any{since.UTC()}

	if len(channelIDs) > 0 {
		query += ` AND channel_id IN (` + placeholders(len(channelIDs)) + `)`
		for _, id := range channelIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY published_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent videos")
	}
	defer rows.Close()

	var videos []model.Video
	for rows.Next() {
		var v model.Video
		var status string
		if err := rows.Scan(&v.ID, &v.ChannelID, &v.Title, &v.PublishedAt, &v.DiscoveredAt, &v.DurationSeconds, &v.IsShort, &status); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan video")
		}
		v.TrackingStatus = model.TrackingStatus(status)
		videos = append(videos, v)
	}
	return videos, eris.Wrap(rows.Err(), "sqlite: recent videos iterate")
}

func (s *SQLiteStore) UpdateVideoStatus(ctx context.Context, videoID string, status model.TrackingStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE videos SET tracking_status = ? WHERE video_id = ?`,
		string(status), videoID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update video status %s", videoID)
	}
	return checkSQLRowsAffected(res, "video", videoID)
}

func (s *SQLiteStore) CompleteFinishedVideos(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE videos SET tracking_status = 'completed'
		 WHERE tracking_status = 'active' AND video_id IN (
		   SELECT video_id FROM scheduled_measurements
		   WHERE window_type = ? AND status != 'pending'
		 )`,
		string(model.FinalWindow),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: complete finished videos")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: complete finished videos rows")
}

// --- Scheduled measurements ---

func (s *SQLiteStore) DueMeasurements(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMeasurement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, video_id, window_type, due_at, status, attempts, last_error
		 FROM scheduled_measurements
		 WHERE status = 'pending' AND due_at <= ?
		 ORDER BY due_at ASC LIMIT ?`,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: due measurements")
	}
	defer rows.Close()
	return scanMeasurements(rows)
}

func (s *SQLiteStore) MeasurementsForVideo(ctx context.Context, videoID string) ([]model.ScheduledMeasurement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, video_id, window_type, due_at, status, attempts, last_error
		 FROM scheduled_measurements WHERE video_id = ? ORDER BY due_at ASC`,
		videoID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: measurements for video %s", videoID)
	}
	defer rows.Close()
	return scanMeasurements(rows)
}

func scanMeasurements(rows *sql.Rows) ([]model.ScheduledMeasurement, error) {
	var out []model.ScheduledMeasurement
	for rows.Next() {
		var m model.ScheduledMeasurement
		var window, status string
		if err := rows.Scan(&m.ID, &m.VideoID, &window, &m.DueAt, &status, &m.Attempts, &m.LastError); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan measurement")
		}
		m.Window = model.Window(window)
		m.Status = model.MeasurementStatus(status)
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: measurements iterate")
}

func (s *SQLiteStore) CompleteMeasurement(ctx context.Context, measurementID string, snap model.Snapshot) (bool, error) {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE scheduled_measurements SET status = 'completed', last_error = ''
		 WHERE id = ? AND status = 'pending'`,
		measurementID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: complete measurement %s", measurementID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: complete measurement rows")
	}
	if n == 0 {
		// Another worker already resolved this row.
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, video_id, window_type, views, likes, comments, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.VideoID, string(snap.Window), snap.Views, snap.Likes, snap.Comments, snap.CapturedAt.UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert snapshot %s/%s", snap.VideoID, snap.Window)
	}

	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "sqlite: commit measurement")
	}
	return true, nil
}

func (s *SQLiteStore) FailMeasurement(ctx context.Context, measurementID string, lastErr string, maxAttempts int) (model.MeasurementStatus, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_measurements
		 SET attempts = attempts + 1,
		     last_error = ?,
		     status = CASE WHEN attempts + 1 >= ? THEN 'failed' ELSE 'pending' END
		 WHERE id = ? AND status = 'pending'`,
		lastErr, maxAttempts, measurementID,
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: fail measurement %s", measurementID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", eris.Wrap(err, "sqlite: fail measurement rows")
	}
	if n == 0 {
		return "", nil
	}

	var status string
	err = s.db.QueryRowContext(ctx,
		`SELECT status FROM scheduled_measurements WHERE id = ?`, measurementID,
	).Scan(&status)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: fail measurement status %s", measurementID)
	}
	return model.MeasurementStatus(status), nil
}

func (s *SQLiteStore) SkipMeasurement(ctx context.Context, measurementID string, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_measurements SET status = 'skipped', last_error = ?
		 WHERE id = ? AND status = 'pending'`,
		reason, measurementID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: skip measurement %s", measurementID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: skip measurement rows")
	}
	return n > 0, nil
}

func (s *SQLiteStore) SnapshotCoverage(ctx context.Context, videoID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scheduled_measurements WHERE video_id = ? AND status = 'completed'`,
		videoID,
	).Scan(&count)
	return count, eris.Wrapf(err, "sqlite: snapshot coverage %s", videoID)
}

// --- Snapshots and baselines ---

func (s *SQLiteStore) SnapshotAt(ctx context.Context, videoID string, window model.Window) (*model.Snapshot, error) {
	var snap model.Snapshot
	var w string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, video_id, window_type, views, likes, comments, captured_at
		 FROM snapshots WHERE video_id = ? AND window_type = ?`,
		videoID, string(window),
	).Scan(&snap.ID, &snap.VideoID, &w, &snap.Views, &snap.Likes, &snap.Comments, &snap.CapturedAt)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: snapshot at %s/%s", videoID, window)
	}
	snap.Window = model.Window(w)
	return &snap, nil
}

func (s *SQLiteStore) BaselineSamples(ctx context.Context, channelID string, isShort bool, window model.Window, limit int) ([]model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.video_id, s.window_type, s.views, s.likes, s.comments, s.captured_at
		 FROM snapshots s
		 JOIN videos v ON v.video_id = s.video_id
		 WHERE v.channel_id = ? AND v.is_short = ? AND s.window_type = ?
		 ORDER BY v.published_at DESC LIMIT ?`,
		channelID, isShort, string(window), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: baseline samples")
	}
	defer rows.Close()

	var out []model.Snapshot
	for rows.Next() {
		var snap model.Snapshot
		var w string
		if err := rows.Scan(&snap.ID, &snap.VideoID, &w, &snap.Views, &snap.Likes, &snap.Comments, &snap.CapturedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan baseline sample")
		}
		snap.Window = model.Window(w)
		out = append(out, snap)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: baseline samples iterate")
}

func (s *SQLiteStore) UpsertBaseline(ctx context.Context, b model.ChannelBaseline) error {
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_baselines (channel_id, is_short, window_type, median_views, median_likes, median_comments, sample_size, source, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (channel_id, is_short, window_type) DO UPDATE SET
		   median_views = excluded.median_views,
		   median_likes = excluded.median_likes,
		   median_comments = excluded.median_comments,
		   sample_size = excluded.sample_size,
		   source = excluded.source,
		   updated_at = excluded.updated_at`,
		b.ChannelID, b.IsShort, string(b.Window), b.MedianViews, b.MedianLikes, b.MedianComments, b.SampleSize, string(b.Source), b.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert baseline %s/%s", b.ChannelID, b.Window)
}

func (s *SQLiteStore) GetBaseline(ctx context.Context, channelID string, isShort bool, window model.Window) (*model.ChannelBaseline, error) {
	var b model.ChannelBaseline
	var w, source string
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_id, is_short, window_type, median_views, median_likes, median_comments, sample_size, source, updated_at
		 FROM channel_baselines WHERE channel_id = ? AND is_short = ? AND window_type = ?`,
		channelID, isShort, string(window),
	).Scan(&b.ChannelID, &b.IsShort, &w, &b.MedianViews, &b.MedianLikes, &b.MedianComments, &b.SampleSize, &source, &b.UpdatedAt)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get baseline %s/%s", channelID, window)
	}
	b.Window = model.Window(w)
	b.Source = model.BaselineSource(source)
	return &b, nil
}

func (s *SQLiteStore) SeedManualBaselines(ctx context.Context, baselines []model.ChannelBaseline) (int64, error) {
	var seeded int64
	now := time.Now().UTC()
	for _, b := range baselines {
		existing, err := s.GetBaseline(ctx, b.ChannelID, b.IsShort, b.Window)
		if err != nil {
			return seeded, err
		}
		if existing != nil && existing.Source == model.BaselineCalculated {
			continue
		}
		b.Source = model.BaselineManual
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = now
		}
		if err := s.UpsertBaseline(ctx, b); err != nil {
			return seeded, err
		}
		seeded++
	}
	return seeded, nil
}

// --- Topics and trends ---

func (s *SQLiteStore) AddVideoTopics(ctx context.Context, videoID string, topics []string) error {
	if len(topics) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, topic := range topics {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO video_topics (id, video_id, topic, extracted_at) VALUES (?, ?, ?, ?)`,
			uuid.New().String(), videoID, topic, now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: add topic for %s", videoID)
		}
	}
	return nil
}

func (s *SQLiteStore) VideoHasTopics(ctx context.Context, videoID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM video_topics WHERE video_id = ? LIMIT 1`, videoID,
	).Scan(&one)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, eris.Wrapf(err, "sqlite: video has topics %s", videoID)
	}
	return true, nil
}

func (s *SQLiteStore) TopicsForVideos(ctx context.Context, videoIDs []string) (map[string][]string, error) {
	out := make(map[string][]string)
	if len(videoIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(videoIDs))
	for i, id := range videoIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT video_id, topic FROM video_topics WHERE video_id IN (`+placeholders(len(videoIDs))+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: topics for videos")
	}
	defer rows.Close()

	for rows.Next() {
		var videoID, topic string
		if err := rows.Scan(&videoID, &topic); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan topic")
		}
		out[videoID] = append(out[videoID], topic)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: topics for videos iterate")
}

func (s *SQLiteStore) SaveCluster(ctx context.Context, bucketID *string, name string, topics []string) (string, error) {
	bucket := bucketKey(bucketID)
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	var clusterID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM topic_clusters WHERE bucket_id = ? AND normalized_name = ?`,
		bucket, name,
	).Scan(&clusterID)
	switch {
	case eris.Is(err, sql.ErrNoRows):
		clusterID = uuid.New().String()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO topic_clusters (id, bucket_id, normalized_name, updated_at) VALUES (?, ?, ?, ?)`,
			clusterID, bucket, name, now,
		)
		if err != nil {
			return "", eris.Wrapf(err, "sqlite: insert cluster %s", name)
		}
	case err != nil:
		return "", eris.Wrapf(err, "sqlite: lookup cluster %s", name)
	default:
		if _, err = tx.ExecContext(ctx,
			`UPDATE topic_clusters SET updated_at = ? WHERE id = ?`, now, clusterID,
		); err != nil {
			return "", eris.Wrapf(err, "sqlite: touch cluster %s", name)
		}
	}

	// Membership is replaced wholesale each run.
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM cluster_topics WHERE cluster_id = ?`, clusterID,
	); err != nil {
		return "", eris.Wrapf(err, "sqlite: clear cluster topics %s", name)
	}
	for _, topic := range topics {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO cluster_topics (cluster_id, topic) VALUES (?, ?)
			 ON CONFLICT (cluster_id, topic) DO NOTHING`,
			clusterID, topic,
		); err != nil {
			return "", eris.Wrapf(err, "sqlite: insert cluster topic %s", name)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "sqlite: commit cluster")
	}
	return clusterID, nil
}

func (s *SQLiteStore) UpsertTrendingTopic(ctx context.Context, t model.TrendingTopic) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	videoIDsJSON, err := json.Marshal(t.VideoIDs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal trend video ids")
	}
	var avg any
	if t.AvgPerformance != nil {
		avg = *t.AvgPerformance
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trending_topics (id, cluster_id, bucket_id, channel_count, video_count, avg_performance, video_ids, detected_at, period_start, period_end)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (bucket_id, cluster_id) DO UPDATE SET
		   channel_count = excluded.channel_count,
		   video_count = excluded.video_count,
		   avg_performance = excluded.avg_performance,
		   video_ids = excluded.video_ids,
		   detected_at = excluded.detected_at,
		   period_start = excluded.period_start,
		   period_end = excluded.period_end`,
		t.ID, t.ClusterID, bucketKey(t.BucketID), t.ChannelCount, t.VideoCount, avg,
		string(videoIDsJSON), t.DetectedAt.UTC(), t.PeriodStart.UTC(), t.PeriodEnd.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert trending topic %s", t.ClusterID)
}

func (s *SQLiteStore) LatestTrends(ctx context.Context, bucketID *string, limit int) ([]model.TrendingTopic, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.cluster_id, c.normalized_name, t.bucket_id, t.channel_count, t.video_count,
		        t.avg_performance, t.video_ids, t.detected_at, t.period_start, t.period_end
		 FROM trending_topics t
		 JOIN topic_clusters c ON c.id = t.cluster_id
		 WHERE t.bucket_id = ? AND t.detected_at = (
		   SELECT MAX(detected_at) FROM trending_topics WHERE bucket_id = ?
		 )
		 ORDER BY t.channel_count DESC, t.video_count DESC
		 LIMIT ?`,
		bucketKey(bucketID), bucketKey(bucketID), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest trends")
	}
	defer rows.Close()
	return scanTrends(rows)
}

func scanTrends(rows *sql.Rows) ([]model.TrendingTopic, error) {
	var out []model.TrendingTopic
	for rows.Next() {
		var t model.TrendingTopic
		var bucket, videoIDsJSON string
		var avg sql.NullFloat64
		if err := rows.Scan(&t.ID, &t.ClusterID, &t.ClusterName, &bucket, &t.ChannelCount, &t.VideoCount,
			&avg, &videoIDsJSON, &t.DetectedAt, &t.PeriodStart, &t.PeriodEnd); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan trend")
		}
		t.BucketID = bucketPtr(bucket)
		if avg.Valid {
			t.AvgPerformance = &avg.Float64
		}
		if err := json.Unmarshal([]byte(videoIDsJSON), &t.VideoIDs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal trend video ids")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: trends iterate")
}

// --- Buckets ---

func (s *SQLiteStore) CreateBucket(ctx context.Context, name string) (*model.Bucket, error) {
	b := model.Bucket{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO buckets (id, name, created_at) VALUES (?, ?, ?)`,
		b.ID, b.Name, b.CreatedAt,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, ErrDuplicateItem
		}
		return nil, eris.Wrapf(err, "sqlite: create bucket %s", name)
	}
	return &b, nil
}

func (s *SQLiteStore) AddChannelToBucket(ctx context.Context, bucketID, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bucket_channels (bucket_id, channel_id) VALUES (?, ?)
		 ON CONFLICT (bucket_id, channel_id) DO NOTHING`,
		bucketID, channelID,
	)
	return eris.Wrapf(err, "sqlite: add channel %s to bucket %s", channelID, bucketID)
}

func (s *SQLiteStore) ListBuckets(ctx context.Context) ([]model.Bucket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM buckets ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list buckets")
	}
	defer rows.Close()

	var buckets []model.Bucket
	for rows.Next() {
		var b model.Bucket
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bucket")
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list buckets iterate")
	}

	for i := range buckets {
		chRows, err := s.db.QueryContext(ctx,
			`SELECT channel_id FROM bucket_channels WHERE bucket_id = ?`, buckets[i].ID,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: bucket channels")
		}
		for chRows.Next() {
			var channelID string
			if err := chRows.Scan(&channelID); err != nil {
				chRows.Close()
				return nil, eris.Wrap(err, "sqlite: scan bucket channel")
			}
			buckets[i].ChannelIDs = append(buckets[i].ChannelIDs, channelID)
		}
		if err := chRows.Err(); err != nil {
			chRows.Close()
			return nil, eris.Wrap(err, "sqlite: bucket channels iterate")
		}
		chRows.Close()
	}
	return buckets, nil
}

func (s *SQLiteStore) PipelineStats(ctx context.Context, since time.Time, grace time.Duration) (model.PipelineStats, error) {
	var st model.PipelineStats
	overdueBefore := time.Now().UTC().Add(-grace)

	err := s.db.QueryRowContext(ctx,
		`SELECT
		   COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN status = 'pending' AND due_at < ? THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN status = 'completed' AND due_at >= ? THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN status = 'failed' AND due_at >= ? THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN status = 'skipped' AND due_at >= ? THEN 1 ELSE 0 END), 0)
		 FROM scheduled_measurements`,
		overdueBefore, since, since, since,
	).Scan(&st.PendingMeasurements, &st.OverdueMeasurements,
		&st.CompletedMeasurements, &st.FailedMeasurements, &st.SkippedMeasurements)
	if err != nil {
		return st, eris.Wrap(err, "sqlite: measurement stats")
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM videos WHERE tracking_status = 'active'`,
	).Scan(&st.TrackingVideos)
	if err != nil {
		return st, eris.Wrap(err, "sqlite: video stats")
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM channels WHERE is_active = 1`,
	).Scan(&st.ActiveChannels)
	if err != nil {
		return st, eris.Wrap(err, "sqlite: channel stats")
	}

	// MAX(detected_at) strips the column's DATETIME decltype, so the driver
	// would hand back a raw string; select the column directly instead.
	var lastTrend sql.NullTime
	err = s.db.QueryRowContext(ctx,
		`SELECT detected_at FROM trending_topics ORDER BY detected_at DESC LIMIT 1`,
	).Scan(&lastTrend)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return st, eris.Wrap(err, "sqlite: trend stats")
	}
	if lastTrend.Valid {
		st.LastTrendRun = &lastTrend.Time
	}
	return st, nil
}

// --- helpers ---

func checkSQLRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
