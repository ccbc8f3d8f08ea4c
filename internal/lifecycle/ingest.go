// Package lifecycle handles video ingestion: a discovered upload becomes a
// tracked video with its full measurement schedule, and the publish-time
// reading is captured immediately.
package lifecycle

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/creatrr/trendwatch/internal/model"
	"github.com/creatrr/trendwatch/internal/resilience"
	"github.com/creatrr/trendwatch/internal/store"
	"github.com/creatrr/trendwatch/pkg/youtube"
)

// maxIngestAge is how far back an upload may be published and still enter
// tracking. Older uploads would start with most of their schedule overdue.
const maxIngestAge = 48 * time.Hour

// Ingestor turns discovered uploads into tracked videos.
type Ingestor struct {
	store store.Store
	yt    youtube.Client
	log   *zap.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(s store.Store, yt youtube.Client, log *zap.Logger) *Ingestor {
	return &Ingestor{store: s, yt: yt, log: log.Named("ingest")}
}

// Ingest tracks a newly discovered video. It classifies the video as Short
// or regular, creates the eight-window schedule atomically, and completes
// the publish-time measurement from the details already in hand. Duplicate
// discoveries are benign no-ops. Returns true when the video entered
// tracking.
func (in *Ingestor) Ingest(ctx context.Context, videoID string) (bool, error) {
	ch, details, err := in.prepare(ctx, videoID)
	if err != nil || ch == nil {
		return false, err
	}

	video := model.Video{
		ID:              details.VideoID,
		ChannelID:       details.ChannelID,
		Title:           details.Title,
		PublishedAt:     details.PublishedAt.UTC(),
		DiscoveredAt:    time.Now().UTC(),
		DurationSeconds: details.DurationSeconds,
		IsShort:         in.yt.IsShort(ctx, details),
	}

	measurements, err := in.store.CreateVideoWithSchedule(ctx, video)
	if err != nil {
		if eris.Is(err, store.ErrDuplicateItem) {
			in.log.Debug("video already tracked", zap.String("video_id", videoID))
			return false, nil
		}
		return false, err
	}

	// The publish-time reading needs no second API call: the stats on the
	// details response are the freshest we will ever see for T+0.
	initial := measurements[0]
	if initial.Window == model.Window0h {
		claimed, err := in.store.CompleteMeasurement(ctx, initial.ID, model.Snapshot{
			VideoID:  video.ID,
			Window:   model.Window0h,
			Views:    details.Stats.Views,
			Likes:    details.Stats.Likes,
			Comments: details.Stats.Comments,
		})
		if err != nil {
			return true, err
		}
		if !claimed {
			in.log.Debug("initial measurement already claimed", zap.String("video_id", videoID))
		}
	}

	in.log.Info("video entered tracking",
		zap.String("video_id", video.ID),
		zap.String("channel_id", video.ChannelID),
		zap.Bool("is_short", video.IsShort),
		zap.Time("published_at", video.PublishedAt),
	)
	return true, nil
}

// prepare fetches video details and vets the owning channel. A nil channel
// with nil error means the video should be ignored.
func (in *Ingestor) prepare(ctx context.Context, videoID string) (*model.Channel, *youtube.VideoDetails, error) {
	details, err := in.yt.VideoDetails(ctx, videoID)
	if err != nil {
		if resilience.IsNotFound(err) {
			in.log.Debug("discovered video already gone", zap.String("video_id", videoID))
			return nil, nil, nil
		}
		return nil, nil, err
	}

	if age := time.Since(details.PublishedAt); age > maxIngestAge {
		in.log.Debug("ignoring stale upload",
			zap.String("video_id", videoID),
			zap.Duration("age", age),
		)
		return nil, nil, nil
	}

	ch, err := in.store.GetChannel(ctx, details.ChannelID)
	if err != nil {
		return nil, nil, err
	}
	if ch == nil || !ch.IsActive {
		in.log.Debug("video from untracked channel",
			zap.String("video_id", videoID),
			zap.String("channel_id", details.ChannelID),
		)
		return nil, nil, nil
	}
	return ch, details, nil
}
