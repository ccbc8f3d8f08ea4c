// Package jobs schedules the recurring pipeline work: discovery polls,
// snapshot runs, baseline recalculation, and trend aggregation.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/creatrr/trendwatch/internal/model"
	"github.com/creatrr/trendwatch/internal/store"
)

// Job is one recurring unit of work. Errors are logged and the schedule
// continues; a failing cycle must not stop future cycles.
type Job struct {
	Name     string
	Interval time.Duration
	// Immediate runs the job once at startup before the first tick.
	Immediate bool
	Run       func(ctx context.Context) error
}

// Runner drives a set of jobs until the context is cancelled.
type Runner struct {
	jobs []Job
	log  *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(log *zap.Logger) *Runner {
	return &Runner{log: log.Named("jobs")}
}

// Add registers a job.
func (r *Runner) Add(j Job) {
	r.jobs = append(r.jobs, j)
}

// Run blocks until ctx is cancelled, driving every registered job on its
// own ticker.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, j := range r.jobs {
		g.Go(func() error {
			return r.drive(gctx, j)
		})
	}
	return g.Wait()
}

func (r *Runner) drive(ctx context.Context, j Job) error {
	log := r.log.With(zap.String("job", j.Name))
	run := func() {
		start := time.Now()
		if err := j.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("job cycle failed", zap.Error(err))
			return
		}
		log.Debug("job cycle done", zap.Duration("elapsed", time.Since(start)))
	}

	if j.Immediate {
		run()
	}

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			run()
		}
	}
}

// TrendCycle runs one aggregation over the global scope and then over every
// bucket. Used both by the scheduler and the one-shot CLI command.
func TrendCycle(ctx context.Context, s store.Store, run func(ctx context.Context, bucket *model.Bucket) error) error {
	if err := run(ctx, nil); err != nil {
		return err
	}
	buckets, err := s.ListBuckets(ctx)
	if err != nil {
		return err
	}
	for i := range buckets {
		if err := run(ctx, &buckets[i]); err != nil {
			return err
		}
	}
	return nil
}
