package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/creatrr/trendwatch/internal/model"
)

// ErrDuplicateItem is returned when a video is already tracked. Benign:
// discovery events arrive at-least-once and ingestion swallows it.
var ErrDuplicateItem = eris.New("store: item already tracked")

// Store defines the persistence interface for the tracking pipeline.
//
// Get* methods return (nil, nil) when the row does not exist.
type Store interface {
	// Channels
	UpsertChannel(ctx context.Context, ch model.Channel) error
	GetChannel(ctx context.Context, channelID string) (*model.Channel, error)
	ListChannels(ctx context.Context, activeOnly bool) ([]model.Channel, error)
	SetChannelActive(ctx context.Context, channelID string, active bool) error
	TouchChannelChecked(ctx context.Context, channelID string, at time.Time) error

	// Videos. CreateVideoWithSchedule inserts the video and its eight
	// scheduled measurements in one transaction; it returns
	// ErrDuplicateItem when the video already exists.
	CreateVideoWithSchedule(ctx context.Context, v model.Video) ([]model.ScheduledMeasurement, error)
	GetVideo(ctx context.Context, videoID string) (*model.Video, error)
	RecentVideos(ctx context.Context, since time.Time, channelIDs []string) ([]model.Video, error)
	UpdateVideoStatus(ctx context.Context, videoID string, status model.TrackingStatus) error
	// CompleteFinishedVideos marks active videos whose final-window
	// measurement reached a terminal status as completed. Returns the
	// number of videos retired.
	CompleteFinishedVideos(ctx context.Context) (int, error)

	// Scheduled measurements. CompleteMeasurement and SkipMeasurement
	// transition a row out of pending with a conditional update and report
	// whether this caller won the transition; overlapping worker runs see
	// claimed=false. CompleteMeasurement writes the snapshot in the same
	// transaction, so a snapshot exists iff the measurement completed.
	DueMeasurements(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMeasurement, error)
	MeasurementsForVideo(ctx context.Context, videoID string) ([]model.ScheduledMeasurement, error)
	CompleteMeasurement(ctx context.Context, measurementID string, snap model.Snapshot) (bool, error)
	// FailMeasurement increments the attempt counter and flips the row to
	// failed once maxAttempts is reached. Returns the resulting status, or
	// "" when the row was already terminal.
	FailMeasurement(ctx context.Context, measurementID string, lastErr string, maxAttempts int) (model.MeasurementStatus, error)
	SkipMeasurement(ctx context.Context, measurementID string, reason string) (bool, error)
	// SnapshotCoverage returns the number of completed measurements for a
	// video (out of the eight scheduled).
	SnapshotCoverage(ctx context.Context, videoID string) (int, error)

	// Snapshots and baselines
	SnapshotAt(ctx context.Context, videoID string, window model.Window) (*model.Snapshot, error)
	// BaselineSamples returns snapshots at the given window for the most
	// recently published videos of the channel and category, newest first.
	BaselineSamples(ctx context.Context, channelID string, isShort bool, window model.Window, limit int) ([]model.Snapshot, error)
	UpsertBaseline(ctx context.Context, b model.ChannelBaseline) error
	GetBaseline(ctx context.Context, channelID string, isShort bool, window model.Window) (*model.ChannelBaseline, error)
	// SeedManualBaselines inserts operator-provided placeholder baselines.
	// Keys that already have a calculated baseline are left untouched.
	SeedManualBaselines(ctx context.Context, baselines []model.ChannelBaseline) (int64, error)

	// Topics and trends
	AddVideoTopics(ctx context.Context, videoID string, topics []string) error
	VideoHasTopics(ctx context.Context, videoID string) (bool, error)
	TopicsForVideos(ctx context.Context, videoIDs []string) (map[string][]string, error)
	// SaveCluster upserts a cluster keyed by (bucket, normalized name) and
	// replaces its raw-phrase membership wholesale.
	SaveCluster(ctx context.Context, bucketID *string, name string, topics []string) (string, error)
	UpsertTrendingTopic(ctx context.Context, t model.TrendingTopic) error
	// LatestTrends returns the qualifying trends of the bucket's most
	// recent aggregation run. All rows written by one run share the same
	// detection stamp.
	LatestTrends(ctx context.Context, bucketID *string, limit int) ([]model.TrendingTopic, error)

	// PipelineStats aggregates measurement, video, and channel counts for
	// health monitoring. Terminal measurement counts cover rows due after
	// since; overdue counts pending rows whose due time is more than grace
	// in the past.
	PipelineStats(ctx context.Context, since time.Time, grace time.Duration) (model.PipelineStats, error)

	// Buckets
	CreateBucket(ctx context.Context, name string) (*model.Bucket, error)
	AddChannelToBucket(ctx context.Context, bucketID, channelID string) error
	ListBuckets(ctx context.Context) ([]model.Bucket, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// bucketKey maps the optional bucket id to the empty-string sentinel used in
// unique keys, so global (bucket-less) rows conflict with each other.
func bucketKey(bucketID *string) string {
	if bucketID == nil {
		return ""
	}
	return *bucketID
}

// bucketPtr is the inverse of bucketKey.
func bucketPtr(key string) *string {
	if key == "" {
		return nil
	}
	return &key
}
