package baseline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/creatrr/trendwatch/internal/model"
	"github.com/creatrr/trendwatch/internal/store"
)

func TestMedian(t *testing.T) {
	cases := []struct {
		name string
		in   []int64
		want int64
	}{
		{"empty", nil, 0},
		{"single", []int64{7}, 7},
		{"odd", []int64{5, 1, 3}, 3},
		{"even averages middle pair", []int64{1, 2, 3, 4}, 2},
		{"unsorted input", []int64{100, 10, 50, 20, 30}, 30},
		{"outlier resistant", []int64{10, 11, 12, 13, 1000000}, 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Median(tc.in))
		})
	}
}

func TestMedianDoesNotMutateInput(t *testing.T) {
	in := []int64{3, 1, 2}
	Median(in)
	assert.Equal(t, []int64{3, 1, 2}, in)
}

func TestRatio(t *testing.T) {
	r := Ratio(3000, 1000)
	require.NotNil(t, r)
	assert.InDelta(t, 3.0, *r, 1e-9)

	// Zero or missing baseline yields no ratio, not a zero ratio.
	assert.Nil(t, Ratio(500, 0))
	assert.Nil(t, Ratio(500, -1))

	r = Ratio(0, 1000)
	require.NotNil(t, r)
	assert.Zero(t, *r)
}

func newCalcFixture(t *testing.T) (store.Store, *Calculator) {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s, NewCalculator(s, Options{SampleSize: 30, MinSample: 5}, zap.NewNop())
}

func seedSnapshots(t *testing.T, s store.Store, channelID string, views []int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertChannel(ctx, model.Channel{ID: channelID, Name: "c", IsActive: true}))
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range views {
		videoID := channelID + "-v" + string(rune('a'+i))
		ms, err := s.CreateVideoWithSchedule(ctx, model.Video{
			ID: videoID, ChannelID: channelID,
			PublishedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		})
		require.NoError(t, err)
		for _, m := range ms {
			if m.Window == model.Window24h {
				_, err := s.CompleteMeasurement(ctx, m.ID, model.Snapshot{
					VideoID: videoID, Window: model.Window24h, Views: v, Likes: v / 10,
				})
				require.NoError(t, err)
			}
		}
	}
}

func TestCalculatorWritesMedians(t *testing.T) {
	s, calc := newCalcFixture(t)
	ctx := context.Background()
	seedSnapshots(t, s, "UC1", []int64{100, 300, 200, 500, 400})

	written, err := calc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	b, err := s.GetBaseline(ctx, "UC1", false, model.Window24h)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.EqualValues(t, 300, b.MedianViews)
	assert.EqualValues(t, 30, b.MedianLikes)
	assert.Equal(t, 5, b.SampleSize)
	assert.Equal(t, model.BaselineCalculated, b.Source)

	// No shorts snapshots: no shorts baseline.
	b, err = s.GetBaseline(ctx, "UC1", true, model.Window24h)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestCalculatorRespectsMinSample(t *testing.T) {
	s, calc := newCalcFixture(t)
	ctx := context.Background()
	seedSnapshots(t, s, "UC1", []int64{100, 200, 300})

	// A manual seed for the same key must survive an undersampled run.
	_, err := s.SeedManualBaselines(ctx, []model.ChannelBaseline{
		{ChannelID: "UC1", IsShort: false, Window: model.Window24h, MedianViews: 5000},
	})
	require.NoError(t, err)

	written, err := calc.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, written)

	b, err := s.GetBaseline(ctx, "UC1", false, model.Window24h)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, model.BaselineManual, b.Source)
	assert.EqualValues(t, 5000, b.MedianViews)
}

func TestCalculatorIdempotent(t *testing.T) {
	s, calc := newCalcFixture(t)
	ctx := context.Background()
	seedSnapshots(t, s, "UC1", []int64{100, 200, 300, 400, 500, 600})

	_, err := calc.Run(ctx)
	require.NoError(t, err)
	first, err := s.GetBaseline(ctx, "UC1", false, model.Window24h)
	require.NoError(t, err)

	_, err = calc.Run(ctx)
	require.NoError(t, err)
	second, err := s.GetBaseline(ctx, "UC1", false, model.Window24h)
	require.NoError(t, err)

	assert.Equal(t, first.MedianViews, second.MedianViews)
	assert.Equal(t, first.SampleSize, second.SampleSize)
}

func TestPerformanceRatio(t *testing.T) {
	s, calc := newCalcFixture(t)
	ctx := context.Background()
	seedSnapshots(t, s, "UC1", []int64{100, 200, 300, 400, 500})
	_, err := calc.Run(ctx)
	require.NoError(t, err)

	v, err := s.GetVideo(ctx, "UC1-ve") // the 500-view video
	require.NoError(t, err)
	require.NotNil(t, v)

	r, err := PerformanceRatio(ctx, s, *v, model.Window24h)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.InDelta(t, 500.0/300.0, *r, 1e-9)

	// No snapshot at that window yet: no ratio.
	r, err = PerformanceRatio(ctx, s, *v, model.Window48h)
	require.NoError(t, err)
	assert.Nil(t, r)
}
