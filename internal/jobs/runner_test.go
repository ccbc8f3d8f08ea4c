package jobs

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/creatrr/trendwatch/internal/model"
	"github.com/creatrr/trendwatch/internal/store"
)

func TestRunnerImmediateAndTicks(t *testing.T) {
	var immediate, ticking atomic.Int32
	r := NewRunner(zap.NewNop())
	r.Add(Job{
		Name:      "immediate",
		Interval:  time.Hour,
		Immediate: true,
		Run: func(ctx context.Context) error {
			immediate.Add(1)
			return nil
		},
	})
	r.Add(Job{
		Name:     "ticking",
		Interval: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			ticking.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err := r.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.EqualValues(t, 1, immediate.Load())
	assert.GreaterOrEqual(t, ticking.Load(), int32(2))
}

func TestRunnerSurvivesFailingCycles(t *testing.T) {
	var runs atomic.Int32
	r := NewRunner(zap.NewNop())
	r.Add(Job{
		Name:     "flaky",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return assert.AnError
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	_ = r.Run(ctx)

	// A failing cycle does not stop the schedule.
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestTrendCycleCoversGlobalAndBuckets(t *testing.T) {
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	_, err = s.CreateBucket(ctx, "coffee")
	require.NoError(t, err)
	_, err = s.CreateBucket(ctx, "woodworking")
	require.NoError(t, err)

	var scopes []string
	err = TrendCycle(ctx, s, func(ctx context.Context, bucket *model.Bucket) error {
		if bucket == nil {
			scopes = append(scopes, "global")
		} else {
			scopes = append(scopes, bucket.Name)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"global", "coffee", "woodworking"}, scopes)
}
