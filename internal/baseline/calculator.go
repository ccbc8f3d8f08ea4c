package baseline

import (
	"context"

	"go.uber.org/zap"

	"github.com/creatrr/trendwatch/internal/model"
	"github.com/creatrr/trendwatch/internal/store"
)

// Options configures baseline calculation.
type Options struct {
	// SampleSize is the number of recent videos a baseline draws from.
	SampleSize int
	// MinSample is the minimum sample count below which no baseline is
	// written; existing baselines (manual seeds included) stay in place.
	MinSample int
}

// Calculator recomputes calculated baselines for all channels.
type Calculator struct {
	store store.Store
	opts  Options
	log   *zap.Logger
}

// NewCalculator creates a Calculator.
func NewCalculator(s store.Store, opts Options, log *zap.Logger) *Calculator {
	if opts.SampleSize <= 0 {
		opts.SampleSize = 30
	}
	if opts.MinSample <= 0 {
		opts.MinSample = 5
	}
	return &Calculator{store: s, opts: opts, log: log.Named("baseline")}
}

// Run recomputes baselines for every channel (active or not; historical
// channels keep comparable baselines), both content categories, and every
// window. Returns the number of baselines written. Recomputation is
// idempotent: identical samples produce identical medians.
func (c *Calculator) Run(ctx context.Context) (int, error) {
	channels, err := c.store.ListChannels(ctx, false)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, ch := range channels {
		for _, isShort := range []bool{false, true} {
			for _, window := range model.Windows() {
				n, err := c.calculate(ctx, ch.ID, isShort, window)
				if err != nil {
					return written, err
				}
				written += n
			}
		}
	}

	c.log.Info("baseline run complete",
		zap.Int("channels", len(channels)),
		zap.Int("written", written),
	)
	return written, nil
}

func (c *Calculator) calculate(ctx context.Context, channelID string, isShort bool, window model.Window) (int, error) {
	samples, err := c.store.BaselineSamples(ctx, channelID, isShort, window, c.opts.SampleSize)
	if err != nil {
		return 0, err
	}
	if len(samples) < c.opts.MinSample {
		return 0, nil
	}

	if err := c.store.UpsertBaseline(ctx, FromSamples(channelID, isShort, window, samples)); err != nil {
		return 0, err
	}
	return 1, nil
}

// PerformanceRatio returns the video's view ratio at the given window
// against its channel baseline. nil when no snapshot or no usable baseline
// exists.
func PerformanceRatio(ctx context.Context, s store.Store, v model.Video, window model.Window) (*float64, error) {
	snap, err := s.SnapshotAt(ctx, v.ID, window)
	if err != nil || snap == nil {
		return nil, err
	}
	b, err := s.GetBaseline(ctx, v.ChannelID, v.IsShort, window)
	if err != nil || b == nil {
		return nil, err
	}
	return Ratio(snap.Views, b.MedianViews), nil
}
