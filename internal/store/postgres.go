package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/creatrr/trendwatch/internal/db"
	"github.com/creatrr/trendwatch/internal/model"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to Postgres and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Tests pass a pgxmock pool here.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS channels (
	channel_id       TEXT PRIMARY KEY,
	channel_name     TEXT NOT NULL,
	subscriber_count BIGINT NOT NULL DEFAULT 0,
	total_videos     BIGINT NOT NULL DEFAULT 0,
	is_active        BOOLEAN NOT NULL DEFAULT TRUE,
	created_at       TIMESTAMPTZ NOT NULL,
	last_checked_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS videos (
	video_id         TEXT PRIMARY KEY,
	channel_id       TEXT NOT NULL REFERENCES channels(channel_id),
	title            TEXT NOT NULL DEFAULT '',
	published_at     TIMESTAMPTZ NOT NULL,
	discovered_at    TIMESTAMPTZ NOT NULL,
	duration_seconds BIGINT NOT NULL DEFAULT 0,
	is_short         BOOLEAN NOT NULL DEFAULT FALSE,
	tracking_status  TEXT NOT NULL DEFAULT 'active'
);

CREATE INDEX IF NOT EXISTS idx_videos_channel ON videos(channel_id);
CREATE INDEX IF NOT EXISTS idx_videos_status ON videos(tracking_status);
CREATE INDEX IF NOT EXISTS idx_videos_published ON videos(published_at);

CREATE TABLE IF NOT EXISTS scheduled_measurements (
	id          UUID PRIMARY KEY,
	video_id    TEXT NOT NULL REFERENCES videos(video_id),
	window_type TEXT NOT NULL,
	due_at      TIMESTAMPTZ NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	attempts    INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT NOT NULL DEFAULT '',
	UNIQUE (video_id, window_type)
);

CREATE INDEX IF NOT EXISTS idx_measurements_due ON scheduled_measurements(status, due_at);

CREATE TABLE IF NOT EXISTS snapshots (
	id          UUID PRIMARY KEY,
	video_id    TEXT NOT NULL REFERENCES videos(video_id),
	window_type TEXT NOT NULL,
	views       BIGINT NOT NULL,
	likes       BIGINT NOT NULL,
	comments    BIGINT NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL,
	UNIQUE (video_id, window_type)
);

CREATE TABLE IF NOT EXISTS channel_baselines (
	channel_id      TEXT NOT NULL,
	is_short        BOOLEAN NOT NULL,
	window_type     TEXT NOT NULL,
	median_views    BIGINT NOT NULL,
	median_likes    BIGINT NOT NULL,
	median_comments BIGINT NOT NULL,
	sample_size     INTEGER NOT NULL,
	source          TEXT NOT NULL DEFAULT 'calculated',
	updated_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (channel_id, is_short, window_type)
);

CREATE TABLE IF NOT EXISTS video_topics (
	id           UUID PRIMARY KEY,
	video_id     TEXT NOT NULL REFERENCES videos(video_id),
	topic        TEXT NOT NULL,
	extracted_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_video_topics_video ON video_topics(video_id);

CREATE TABLE IF NOT EXISTS topic_clusters (
	id              UUID PRIMARY KEY,
	bucket_id       TEXT NOT NULL DEFAULT '',
	normalized_name TEXT NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	UNIQUE (bucket_id, normalized_name)
);

CREATE TABLE IF NOT EXISTS cluster_topics (
	cluster_id UUID NOT NULL REFERENCES topic_clusters(id),
	topic      TEXT NOT NULL,
	UNIQUE (cluster_id, topic)
);

CREATE TABLE IF NOT EXISTS trending_topics (
	id              UUID PRIMARY KEY,
	cluster_id      UUID NOT NULL REFERENCES topic_clusters(id),
	bucket_id       TEXT NOT NULL DEFAULT '',
	channel_count   INTEGER NOT NULL,
	video_count     INTEGER NOT NULL,
	avg_performance DOUBLE PRECISION,
	video_ids       JSONB NOT NULL,
	detected_at     TIMESTAMPTZ NOT NULL,
	period_start    TIMESTAMPTZ NOT NULL,
	period_end      TIMESTAMPTZ NOT NULL,
	UNIQUE (bucket_id, cluster_id)
);

CREATE INDEX IF NOT EXISTS idx_trending_detected ON trending_topics(bucket_id, detected_at);

CREATE TABLE IF NOT EXISTS buckets (
	id         UUID PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS bucket_channels (
	bucket_id  UUID NOT NULL REFERENCES buckets(id),
	channel_id TEXT NOT NULL REFERENCES channels(channel_id),
	UNIQUE (bucket_id, channel_id)
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if p, ok := s.pool.(*pgxpool.Pool); ok {
		p.Close()
	}
	return nil
}

func isPGUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Channels ---

func (s *PostgresStore) UpsertChannel(ctx context.Context, ch model.Channel) error {
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO channels (channel_id, channel_name, subscriber_count, total_videos, is_active, created_at, last_checked_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (channel_id) DO UPDATE SET
		   channel_name = EXCLUDED.channel_name,
		   subscriber_count = EXCLUDED.subscriber_count,
		   total_videos = EXCLUDED.total_videos,
		   is_active = EXCLUDED.is_active`,
		ch.ID, ch.Name, ch.SubscriberCount, ch.TotalVideos, ch.IsActive, ch.CreatedAt, ch.LastCheckedAt,
	)
	return eris.Wrapf(err, "postgres: upsert channel %s", ch.ID)
}

func (s *PostgresStore) GetChannel(ctx context.Context, channelID string) (*model.Channel, error) {
	var ch model.Channel
	err := s.pool.QueryRow(ctx,
		`SELECT channel_id, channel_name, subscriber_count, total_videos, is_active, created_at, last_checked_at
		 FROM channels WHERE channel_id = $1`,
		channelID,
	).Scan(&ch.ID, &ch.Name, &ch.SubscriberCount, &ch.TotalVideos, &ch.IsActive, &ch.CreatedAt, &ch.LastCheckedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get channel %s", channelID)
	}
	return &ch, nil
}

func (s *PostgresStore) ListChannels(ctx context.Context, activeOnly bool) ([]model.Channel, error) {
	query := `SELECT channel_id, channel_name, subscriber_count, total_videos, is_active, created_at, last_checked_at FROM channels`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list channels")
	}
	defer rows.Close()

	var channels []model.Channel
	for rows.Next() {
		var ch model.Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.SubscriberCount, &ch.TotalVideos, &ch.IsActive, &ch.CreatedAt, &ch.LastCheckedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan channel")
		}
		channels = append(channels, ch)
	}
	return channels, eris.Wrap(rows.Err(), "postgres: list channels iterate")
}

func (s *PostgresStore) SetChannelActive(ctx context.Context, channelID string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE channels SET is_active = $1 WHERE channel_id = $2`,
		active, channelID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set channel active %s", channelID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("channel not found: %s", channelID)
	}
	return nil
}

func (s *PostgresStore) TouchChannelChecked(ctx context.Context, channelID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE channels SET last_checked_at = $1 WHERE channel_id = $2`,
		at.UTC(), channelID,
	)
	return eris.Wrapf(err, "postgres: touch channel %s", channelID)
}

// --- Videos ---

func (s *PostgresStore) CreateVideoWithSchedule(ctx context.Context, v model.Video) ([]model.ScheduledMeasurement, error) {
	if v.DiscoveredAt.IsZero() {
		v.DiscoveredAt = time.Now().UTC()
	}
	if v.TrackingStatus == "" {
		v.TrackingStatus = model.TrackingActive
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO videos (video_id, channel_id, title, published_at, discovered_at, duration_seconds, is_short, tracking_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		v.ID, v.ChannelID, v.Title, v.PublishedAt.UTC(), v.DiscoveredAt.UTC(), v.DurationSeconds, v.IsShort, string(v.TrackingStatus),
	)
	if err != nil {
		if isPGUniqueViolation(err) {
			return nil, ErrDuplicateItem
		}
		return nil, eris.Wrapf(err, "postgres: insert video %s", v.ID)
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
		_, err = tx.Exec(ctx,
			`INSERT INTO scheduled_measurements (id, video_id, window_type, due_at, status, attempts, last_error)
			 VALUES ($1, $2, $3, $4, $5, 0, '')`,
			m.ID, m.VideoID, string(m.Window), m.DueAt, string(m.Status),
		)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: insert measurement %s/%s", v.ID, w)
		}
		measurements = append(measurements, m)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit video schedule")
	}
	return measurements, nil
}

func (s *PostgresStore) GetVideo(ctx context.Context, videoID string) (*model.Video, error) {
	var v model.Video
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT video_id, channel_id, title, published_at, discovered_at, duration_seconds, is_short, tracking_status
		 FROM videos WHERE video_id = $1`,
		videoID,
	).Scan(&v.ID, &v.ChannelID, &v.Title, &v.PublishedAt, &v.DiscoveredAt, &v.DurationSeconds, &v.IsShort, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get video %s", videoID)
	}
	v.TrackingStatus = model.TrackingStatus(status)
	return &v, nil
}

func (s *PostgresStore) RecentVideos(ctx context.Context, since time.Time, channelIDs []string) ([]model.Video, error) {
	query := `SELECT video_id, channel_id, title, published_at, discovered_at, duration_seconds, is_short, tracking_status
	          FROM videos WHERE published_at >= $1 AND tracking_status != 'removed'`
	args := []any{since.UTC()}

	if len(channelIDs) > 0 {
		query += fmt.Sprintf(` AND channel_id = ANY($%d)`, len(args)+1)
		args = append(args, channelIDs)
	}
	query += ` ORDER BY published_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent videos")
	}
	defer rows.Close()

	var videos []model.Video
	for rows.Next() {
		var v model.Video
		var status string
		if err := rows.Scan(&v.ID, &v.ChannelID, &v.Title, &v.PublishedAt, &v.DiscoveredAt, &v.DurationSeconds, &v.IsShort, &status); err != nil {
			return nil, eris.Wrap(err, "postgres: scan video")
		}
		v.TrackingStatus = model.TrackingStatus(status)
		videos = append(videos, v)
	}
	return videos, eris.Wrap(rows.Err(), "postgres: recent videos iterate")
}

func (s *PostgresStore) UpdateVideoStatus(ctx context.Context, videoID string, status model.TrackingStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE videos SET tracking_status = $1 WHERE video_id = $2`,
		string(status), videoID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update video status %s", videoID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("video not found: %s", videoID)
	}
	return nil
}

func (s *PostgresStore) CompleteFinishedVideos(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE videos SET tracking_status = 'completed'
		 WHERE tracking_status = 'active' AND video_id IN (
		   SELECT video_id FROM scheduled_measurements
		   WHERE window_type = $1 AND status != 'pending'
		 )`,
		string(model.FinalWindow),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: complete finished videos")
	}
	return int(tag.RowsAffected()), nil
}

// --- Scheduled measurements ---

func (s *PostgresStore) DueMeasurements(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMeasurement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, video_id, window_type, due_at, status, attempts, last_error
		 FROM scheduled_measurements
		 WHERE status = 'pending' AND due_at <= $1
		 ORDER BY due_at ASC LIMIT $2`,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: due measurements")
	}
	defer rows.Close()
	return scanPGMeasurements(rows)
}

func (s *PostgresStore) MeasurementsForVideo(ctx context.Context, videoID string) ([]model.ScheduledMeasurement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, video_id, window_type, due_at, status, attempts, last_error
		 FROM scheduled_measurements WHERE video_id = $1 ORDER BY due_at ASC`,
		videoID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: measurements for video %s", videoID)
	}
	defer rows.Close()
	return scanPGMeasurements(rows)
}

func scanPGMeasurements(rows pgx.Rows) ([]model.ScheduledMeasurement, error) {
	var out []model.ScheduledMeasurement
	for rows.Next() {
		var m model.ScheduledMeasurement
		var window, status string
		if err := rows.Scan(&m.ID, &m.VideoID, &window, &m.DueAt, &status, &m.Attempts, &m.LastError); err != nil {
			return nil, eris.Wrap(err, "postgres: scan measurement")
		}
		m.Window = model.Window(window)
		m.Status = model.MeasurementStatus(status)
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: measurements iterate")
}

func (s *PostgresStore) CompleteMeasurement(ctx context.Context, measurementID string, snap model.Snapshot) (bool, error) {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE scheduled_measurements SET status = 'completed', last_error = ''
		 WHERE id = $1 AND status = 'pending'`,
		measurementID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: complete measurement %s", measurementID)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO snapshots (id, video_id, window_type, views, likes, comments, captured_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		snap.ID, snap.VideoID, string(snap.Window), snap.Views, snap.Likes, snap.Comments, snap.CapturedAt.UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert snapshot %s/%s", snap.VideoID, snap.Window)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, eris.Wrap(err, "postgres: commit measurement")
	}
	return true, nil
}

func (s *PostgresStore) FailMeasurement(ctx context.Context, measurementID string, lastErr string, maxAttempts int) (model.MeasurementStatus, error) {
	var status string
	err := s.pool.QueryRow(ctx,
		`UPDATE scheduled_measurements
		 SET attempts = attempts + 1,
		     last_error = $1,
		     status = CASE WHEN attempts + 1 >= $2 THEN 'failed' ELSE 'pending' END
		 WHERE id = $3 AND status = 'pending'
		 RETURNING status`,
		lastErr, maxAttempts, measurementID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", eris.Wrapf(err, "postgres: fail measurement %s", measurementID)
	}
	return model.MeasurementStatus(status), nil
}

func (s *PostgresStore) SkipMeasurement(ctx context.Context, measurementID string, reason string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scheduled_measurements SET status = 'skipped', last_error = $1
		 WHERE id = $2 AND status = 'pending'`,
		reason, measurementID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: skip measurement %s", measurementID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SnapshotCoverage(ctx context.Context, videoID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM scheduled_measurements WHERE video_id = $1 AND status = 'completed'`,
		videoID,
	).Scan(&count)
	return count, eris.Wrapf(err, "postgres: snapshot coverage %s", videoID)
}

// --- Snapshots and baselines ---

func (s *PostgresStore) SnapshotAt(ctx context.Context, videoID string, window model.Window) (*model.Snapshot, error) {
	var snap model.Snapshot
	var w string
	err := s.pool.QueryRow(ctx,
		`SELECT id, video_id, window_type, views, likes, comments, captured_at
		 FROM snapshots WHERE video_id = $1 AND window_type = $2`,
		videoID, string(window),
	).Scan(&snap.ID, &snap.VideoID, &w, &snap.Views, &snap.Likes, &snap.Comments, &snap.CapturedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: snapshot at %s/%s", videoID, window)
	}
	snap.Window = model.Window(w)
	return &snap, nil
}

func (s *PostgresStore) BaselineSamples(ctx context.Context, channelID string, isShort bool, window model.Window, limit int) ([]model.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT s.id, s.video_id, s.window_type, s.views, s.likes, s.comments, s.captured_at
		 FROM snapshots s
		 JOIN videos v ON v.video_id = s.video_id
		 WHERE v.channel_id = $1 AND v.is_short = $2 AND s.window_type = $3
		 ORDER BY v.published_at DESC LIMIT $4`,
		channelID, isShort, string(window), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: baseline samples")
	}
	defer rows.Close()

	var out []model.Snapshot
	for rows.Next() {
		var snap model.Snapshot
		var w string
		if err := rows.Scan(&snap.ID, &snap.VideoID, &w, &snap.Views, &snap.Likes, &snap.Comments, &snap.CapturedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan baseline sample")
		}
		snap.Window = model.Window(w)
		out = append(out, snap)
	}
	return out, eris.Wrap(rows.Err(), "postgres: baseline samples iterate")
}

func (s *PostgresStore) UpsertBaseline(ctx context.Context, b model.ChannelBaseline) error {
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO channel_baselines (channel_id, is_short, window_type, median_views, median_likes, median_comments, sample_size, source, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (channel_id, is_short, window_type) DO UPDATE SET
		   median_views = EXCLUDED.median_views,
		   median_likes = EXCLUDED.median_likes,
		   median_comments = EXCLUDED.median_comments,
		   sample_size = EXCLUDED.sample_size,
		   source = EXCLUDED.source,
		   updated_at = EXCLUDED.updated_at`,
		b.ChannelID, b.IsShort, string(b.Window), b.MedianViews, b.MedianLikes, b.MedianComments, b.SampleSize, string(b.Source), b.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert baseline %s/%s", b.ChannelID, b.Window)
}

func (s *PostgresStore) GetBaseline(ctx context.Context, channelID string, isShort bool, window model.Window) (*model.ChannelBaseline, error) {
	var b model.ChannelBaseline
	var w, source string
	err := s.pool.QueryRow(ctx,
		`SELECT channel_id, is_short, window_type, median_views, median_likes, median_comments, sample_size, source, updated_at
		 FROM channel_baselines WHERE channel_id = $1 AND is_short = $2 AND window_type = $3`,
		channelID, isShort, string(window),
	).Scan(&b.ChannelID, &b.IsShort, &w, &b.MedianViews, &b.MedianLikes, &b.MedianComments, &b.SampleSize, &source, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get baseline %s/%s", channelID, window)
	}
	b.Window = model.Window(w)
	b.Source = model.BaselineSource(source)
	return &b, nil
}

func (s *PostgresStore) SeedManualBaselines(ctx context.Context, baselines []model.ChannelBaseline) (int64, error) {
	if len(baselines) == 0 {
		return 0, nil
	}

	// Keys holding a calculated baseline are filtered out before the bulk
	// write; a manual seed never displaces computed medians.
	calculated := make(map[string]bool)
	rows, err := s.pool.Query(ctx,
		`SELECT channel_id, is_short, window_type FROM channel_baselines WHERE source = 'calculated'`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: seed baselines lookup")
	}
	for rows.Next() {
		var channelID, window string
		var isShort bool
		if err := rows.Scan(&channelID, &isShort, &window); err != nil {
			rows.Close()
			return 0, eris.Wrap(err, "postgres: scan baseline key")
		}
		calculated[baselineKey(channelID, isShort, window)] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, eris.Wrap(err, "postgres: seed baselines lookup iterate")
	}

	now := time.Now().UTC()
	var upsertRows [][]any
	for _, b := range baselines {
		if calculated[baselineKey(b.ChannelID, b.IsShort, string(b.Window))] {
			continue
		}
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = now
		}
		upsertRows = append(upsertRows, []any{
			b.ChannelID, b.IsShort, string(b.Window),
			b.MedianViews, b.MedianLikes, b.MedianComments,
			b.SampleSize, string(model.BaselineManual), b.UpdatedAt.UTC(),
		})
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "channel_baselines",
		Columns:      []string{"channel_id", "is_short", "window_type", "median_views", "median_likes", "median_comments", "sample_size", "source", "updated_at"},
		ConflictKeys: []string{"channel_id", "is_short", "window_type"},
	}, upsertRows)
}

func baselineKey(channelID string, isShort bool, window string) string {
	return fmt.Sprintf("%s|%t|%s", channelID, isShort, window)
}

// --- Topics and trends ---

func (s *PostgresStore) AddVideoTopics(ctx context.Context, videoID string, topics []string) error {
	if len(topics) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, topic := range topics {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO video_topics (id, video_id, topic, extracted_at) VALUES ($1, $2, $3, $4)`,
			uuid.New().String(), videoID, topic, now,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: add topic for %s", videoID)
		}
	}
	return nil
}

func (s *PostgresStore) VideoHasTopics(ctx context.Context, videoID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM video_topics WHERE video_id = $1)`, videoID,
	).Scan(&exists)
	return exists, eris.Wrapf(err, "postgres: video has topics %s", videoID)
}

func (s *PostgresStore) TopicsForVideos(ctx context.Context, videoIDs []string) (map[string][]string, error) {
	out := make(map[string][]string)
	if len(videoIDs) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT video_id, topic FROM video_topics WHERE video_id = ANY($1)`,
		videoIDs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: topics for videos")
	}
	defer rows.Close()

	for rows.Next() {
		var videoID, topic string
		if err := rows.Scan(&videoID, &topic); err != nil {
			return nil, eris.Wrap(err, "postgres: scan topic")
		}
		out[videoID] = append(out[videoID], topic)
	}
	return out, eris.Wrap(rows.Err(), "postgres: topics for videos iterate")
}

func (s *PostgresStore) SaveCluster(ctx context.Context, bucketID *string, name string, topics []string) (string, error) {
	bucket := bucketKey(bucketID)
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx)

	var clusterID string
	err = tx.QueryRow(ctx,
		`INSERT INTO topic_clusters (id, bucket_id, normalized_name, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (bucket_id, normalized_name) DO UPDATE SET updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		uuid.New().String(), bucket, name, now,
	).Scan(&clusterID)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: upsert cluster %s", name)
	}

	if _, err = tx.Exec(ctx,
		`DELETE FROM cluster_topics WHERE cluster_id = $1`, clusterID,
	); err != nil {
		return "", eris.Wrapf(err, "postgres: clear cluster topics %s", name)
	}
	for _, topic := range topics {
		if _, err = tx.Exec(ctx,
			`INSERT INTO cluster_topics (cluster_id, topic) VALUES ($1, $2)
			 ON CONFLICT (cluster_id, topic) DO NOTHING`,
			clusterID, topic,
		); err != nil {
			return "", eris.Wrapf(err, "postgres: insert cluster topic %s", name)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", eris.Wrap(err, "postgres: commit cluster")
	}
	return clusterID, nil
}

func (s *PostgresStore) UpsertTrendingTopic(ctx context.Context, t model.TrendingTopic) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	videoIDsJSON, err := json.Marshal(t.VideoIDs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal trend video ids")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO trending_topics (id, cluster_id, bucket_id, channel_count, video_count, avg_performance, video_ids, detected_at, period_start, period_end)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (bucket_id, cluster_id) DO UPDATE SET
		   channel_count = EXCLUDED.channel_count,
		   video_count = EXCLUDED.video_count,
		   avg_performance = EXCLUDED.avg_performance,
		   video_ids = EXCLUDED.video_ids,
		   detected_at = EXCLUDED.detected_at,
		   period_start = EXCLUDED.period_start,
		   period_end = EXCLUDED.period_end`,
		t.ID, t.ClusterID, bucketKey(t.BucketID), t.ChannelCount, t.VideoCount, t.AvgPerformance,
		videoIDsJSON, t.DetectedAt.UTC(), t.PeriodStart.UTC(), t.PeriodEnd.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert trending topic %s", t.ClusterID)
}

func (s *PostgresStore) LatestTrends(ctx context.Context, bucketID *string, limit int) ([]model.TrendingTopic, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT t.id, t.cluster_id, c.normalized_name, t.bucket_id, t.channel_count, t.video_count,
		        t.avg_performance, t.video_ids, t.detected_at, t.period_start, t.period_end
		 FROM trending_topics t
		 JOIN topic_clusters c ON c.id = t.cluster_id
		 WHERE t.bucket_id = $1 AND t.detected_at = (
		   SELECT MAX(detected_at) FROM trending_topics WHERE bucket_id = $1
		 )
		 ORDER BY t.channel_count DESC, t.video_count DESC
		 LIMIT $2`,
		bucketKey(bucketID), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest trends")
	}
	defer rows.Close()

	var out []model.TrendingTopic
	for rows.Next() {
		var t model.TrendingTopic
		var bucket string
		var videoIDsJSON []byte
		if err := rows.Scan(&t.ID, &t.ClusterID, &t.ClusterName, &bucket, &t.ChannelCount, &t.VideoCount,
			&t.AvgPerformance, &videoIDsJSON, &t.DetectedAt, &t.PeriodStart, &t.PeriodEnd); err != nil {
			return nil, eris.Wrap(err, "postgres: scan trend")
		}
		t.BucketID = bucketPtr(bucket)
		if err := json.Unmarshal(videoIDsJSON, &t.VideoIDs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal trend video ids")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: trends iterate")
}

// --- Buckets ---

func (s *PostgresStore) CreateBucket(ctx context.Context, name string) (*model.Bucket, error) {
	b := model.Bucket{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO buckets (id, name, created_at) VALUES ($1, $2, $3)`,
		b.ID, b.Name, b.CreatedAt,
	)
	if err != nil {
		if isPGUniqueViolation(err) {
			return nil, ErrDuplicateItem
		}
		return nil, eris.Wrapf(err, "postgres: create bucket %s", name)
	}
	return &b, nil
}

func (s *PostgresStore) AddChannelToBucket(ctx context.Context, bucketID, channelID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bucket_channels (bucket_id, channel_id) VALUES ($1, $2)
		 ON CONFLICT (bucket_id, channel_id) DO NOTHING`,
		bucketID, channelID,
	)
	return eris.Wrapf(err, "postgres: add channel %s to bucket %s", channelID, bucketID)
}

func (s *PostgresStore) ListBuckets(ctx context.Context) ([]model.Bucket, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT b.id, b.name, b.created_at, COALESCE(array_agg(bc.channel_id) FILTER (WHERE bc.channel_id IS NOT NULL), '{}')
		 FROM buckets b
		 LEFT JOIN bucket_channels bc ON bc.bucket_id = b.id
		 GROUP BY b.id, b.name, b.created_at
		 ORDER BY b.created_at ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list buckets")
	}
	defer rows.Close()

	var buckets []model.Bucket
	for rows.Next() {
		var b model.Bucket
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt, &b.ChannelIDs); err != nil {
			return nil, eris.Wrap(err, "postgres: scan bucket")
		}
		buckets = append(buckets, b)
	}
	return buckets, eris.Wrap(rows.Err(), "postgres: list buckets iterate")
}

func (s *PostgresStore) PipelineStats(ctx context.Context, since time.Time, grace time.Duration) (model.PipelineStats, error) {
	var st model.PipelineStats
	overdueBefore := time.Now().UTC().Add(-grace)

	err := s.pool.QueryRow(ctx,
		`SELECT
		   COUNT(*) FILTER (WHERE status = 'pending'),
		   COUNT(*) FILTER (WHERE status = 'pending' AND due_at < $1),
		   COUNT(*) FILTER (WHERE status = 'completed' AND due_at >= $2),
		   COUNT(*) FILTER (WHERE status = 'failed' AND due_at >= $2),
		   COUNT(*) FILTER (WHERE status = 'skipped' AND due_at >= $2)
		 FROM scheduled_measurements`,
		overdueBefore, since,
	).Scan(&st.PendingMeasurements, &st.OverdueMeasurements,
		&st.CompletedMeasurements, &st.FailedMeasurements, &st.SkippedMeasurements)
	if err != nil {
		return st, eris.Wrap(err, "postgres: measurement stats")
	}

	err = s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM videos WHERE tracking_status = 'active'),
		   (SELECT COUNT(*) FROM channels WHERE is_active),
		   (SELECT MAX(detected_at) FROM trending_topics)`,
	).Scan(&st.TrackingVideos, &st.ActiveChannels, &st.LastTrendRun)
	if err != nil {
		return st, eris.Wrap(err, "postgres: pipeline stats")
	}
	return st, nil
}

var _ Store = (*PostgresStore)(nil)
var _ Store = (*SQLiteStore)(nil)
