// Package snapshot executes due measurements: it reads current video stats
// and turns each pending row into a completed, failed, or skipped one.
package snapshot

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/creatrr/trendwatch/internal/model"
	"github.com/creatrr/trendwatch/internal/resilience"
	"github.com/creatrr/trendwatch/internal/store"
	"github.com/creatrr/trendwatch/pkg/youtube"
)

// Options configures the worker.
type Options struct {
	// MaxAttempts bounds stat-fetch attempts per measurement across runs.
	MaxAttempts int
	// Concurrency is the number of measurements processed in parallel.
	Concurrency int
	// BatchSize caps the due rows claimed per run.
	BatchSize int
}

// RunStats summarizes one worker run.
type RunStats struct {
	Due       int
	Completed int
	Failed    int
	Skipped   int
	Retried   int
	Retired   int // videos whose tracking finished this run
}

// Worker processes due measurements.
type Worker struct {
	store store.Store
	yt    youtube.Client
	opts  Options
	log   *zap.Logger

	// now is swapped in tests.
	now func() time.Time
}

// NewWorker creates a Worker.
func NewWorker(s store.Store, yt youtube.Client, opts Options, log *zap.Logger) *Worker {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	return &Worker{
		store: s,
		yt:    yt,
		opts:  opts,
		log:   log.Named("snapshot"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Run processes one batch of due measurements and then retires videos whose
// final window resolved. Safe to run from overlapping schedulers: the
// conditional store transitions make each measurement resolve at most once.
func (w *Worker) Run(ctx context.Context) (RunStats, error) {
	due, err := w.store.DueMeasurements(ctx, w.now(), w.opts.BatchSize)
	if err != nil {
		return RunStats{}, err
	}

	var stats RunStats
	stats.Due = len(due)
	if len(due) == 0 {
		return w.retire(ctx, stats)
	}

	results := make(chan outcome, len(due))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Concurrency)
	for _, m := range due {
		g.Go(func() error {
			results <- w.process(gctx, m)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	close(results)
	for o := range results {
		switch o {
		case outcomeCompleted:
			stats.Completed++
		case outcomeFailed:
			stats.Failed++
		case outcomeSkipped:
			stats.Skipped++
		case outcomeRetried:
			stats.Retried++
		}
	}

	w.log.Info("snapshot run complete",
		zap.Int("due", stats.Due),
		zap.Int("completed", stats.Completed),
		zap.Int("retried", stats.Retried),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
	)
	return w.retire(ctx, stats)
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeCompleted
	outcomeFailed
	outcomeSkipped
	outcomeRetried
)

func (w *Worker) process(ctx context.Context, m model.ScheduledMeasurement) outcome {
	vstats, err := resilience.DoVal(ctx, resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.25,
	}, func(ctx context.Context) (*youtube.VideoStats, error) {
		return w.yt.VideoStats(ctx, m.VideoID)
	})

	switch {
	case err == nil:
		claimed, err := w.store.CompleteMeasurement(ctx, m.ID, model.Snapshot{
			VideoID:    m.VideoID,
			Window:     m.Window,
			Views:      vstats.Views,
			Likes:      vstats.Likes,
			Comments:   vstats.Comments,
			CapturedAt: w.now(),
		})
		if err != nil {
			w.log.Error("complete measurement failed",
				zap.String("measurement_id", m.ID),
				zap.Error(err),
			)
			return outcomeNone
		}
		if !claimed {
			return outcomeNone
		}
		return outcomeCompleted

	case resilience.IsNotFound(err):
		return w.videoGone(ctx, m)

	default:
		status, ferr := w.store.FailMeasurement(ctx, m.ID, err.Error(), w.opts.MaxAttempts)
		if ferr != nil {
			w.log.Error("fail measurement failed",
				zap.String("measurement_id", m.ID),
				zap.Error(ferr),
			)
			return outcomeNone
		}
		switch status {
		case model.MeasurementFailed:
			w.log.Warn("measurement exhausted attempts",
				zap.String("video_id", m.VideoID),
				zap.String("window", string(m.Window)),
				zap.String("last_error", err.Error()),
			)
			return outcomeFailed
		case model.MeasurementPending:
			return outcomeRetried
		default:
			return outcomeNone
		}
	}
}

// videoGone skips every still-pending measurement of a removed video and
// marks the video itself, keeping historical snapshots intact.
func (w *Worker) videoGone(ctx context.Context, m model.ScheduledMeasurement) outcome {
	const reason = "video removed upstream"

	skipped, err := w.store.SkipMeasurement(ctx, m.ID, reason)
	if err != nil {
		w.log.Error("skip measurement failed", zap.String("measurement_id", m.ID), zap.Error(err))
		return outcomeNone
	}

	siblings, err := w.store.MeasurementsForVideo(ctx, m.VideoID)
	if err == nil {
		for _, sib := range siblings {
			if sib.ID != m.ID && sib.Status == model.MeasurementPending {
				if _, err := w.store.SkipMeasurement(ctx, sib.ID, reason); err != nil {
					w.log.Warn("skip sibling failed", zap.String("measurement_id", sib.ID), zap.Error(err))
				}
			}
		}
	}

	if err := w.store.UpdateVideoStatus(ctx, m.VideoID, model.TrackingRemoved); err != nil {
		w.log.Warn("mark removed failed", zap.String("video_id", m.VideoID), zap.Error(err))
	}
	w.log.Info("video removed upstream", zap.String("video_id", m.VideoID))

	if !skipped {
		return outcomeNone
	}
	return outcomeSkipped
}

func (w *Worker) retire(ctx context.Context, stats RunStats) (RunStats, error) {
	n, err := w.store.CompleteFinishedVideos(ctx)
	if err != nil {
		return stats, err
	}
	stats.Retired = n
	if n > 0 {
		w.log.Info("videos finished tracking", zap.Int("count", n))
	}
	return stats, nil
}
