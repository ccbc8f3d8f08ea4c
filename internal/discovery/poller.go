// Package discovery finds new uploads on tracked channels, either by
// polling channel RSS feeds or by receiving WebSub push notifications.
// Both paths deliver at-least-once; ingestion deduplicates.
package discovery

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/creatrr/trendwatch/internal/store"
	"github.com/creatrr/trendwatch/pkg/youtube"
)

// Sink receives discovered video IDs. Implemented by lifecycle.Ingestor.
type Sink interface {
	Ingest(ctx context.Context, videoID string) (bool, error)
}

// Poller discovers uploads by reading channel RSS feeds. Feed reads cost no
// API quota, so polling every few minutes is cheap.
type Poller struct {
	store       store.Store
	yt          youtube.Client
	sink        Sink
	concurrency int
	log         *zap.Logger
}

// NewPoller creates a Poller.
func NewPoller(s store.Store, yt youtube.Client, sink Sink, concurrency int, log *zap.Logger) *Poller {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Poller{
		store:       s,
		yt:          yt,
		sink:        sink,
		concurrency: concurrency,
		log:         log.Named("poller"),
	}
}

// Poll checks every active channel's feed once and ingests new uploads.
// Returns the number of videos that entered tracking. Per-channel failures
// are logged and skipped; one broken feed must not stall the rest.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	channels, err := p.store.ListChannels(ctx, true)
	if err != nil {
		return 0, err
	}

	var tracked int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	results := make(chan int, len(channels))
	for _, ch := range channels {
		g.Go(func() error {
			n, err := p.pollChannel(gctx, ch.ID)
			if err != nil {
				p.log.Warn("channel poll failed",
					zap.String("channel_id", ch.ID),
					zap.Error(err),
				)
				return nil
			}
			results <- n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(tracked), err
	}
	close(results)
	for n := range results {
		tracked += int64(n)
	}

	if tracked > 0 {
		p.log.Info("poll cycle complete",
			zap.Int("channels", len(channels)),
			zap.Int64("new_videos", tracked),
		)
	}
	return int(tracked), nil
}

func (p *Poller) pollChannel(ctx context.Context, channelID string) (int, error) {
	entries, err := p.yt.ChannelFeed(ctx, channelID)
	if err != nil {
		return 0, err
	}

	var tracked int
	for _, e := range entries {
		ok, err := p.sink.Ingest(ctx, e.VideoID)
		if err != nil {
			p.log.Warn("ingest failed",
				zap.String("video_id", e.VideoID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			tracked++
		}
	}

	if err := p.store.TouchChannelChecked(ctx, channelID, time.Now().UTC()); err != nil {
		p.log.Warn("touch channel failed", zap.String("channel_id", channelID), zap.Error(err))
	}
	return tracked, nil
}
