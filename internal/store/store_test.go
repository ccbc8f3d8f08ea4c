package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatrr/trendwatch/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "trendwatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedChannel(t *testing.T, s *SQLiteStore, id string) {
	t.Helper()
	require.NoError(t, s.UpsertChannel(context.Background(), model.Channel{
		ID:       id,
		Name:     "Channel " + id,
		IsActive: true,
	}))
}

func seedVideo(t *testing.T, s *SQLiteStore, videoID, channelID string, publishedAt time.Time, isShort bool) []model.ScheduledMeasurement {
	t.Helper()
	ms, err := s.CreateVideoWithSchedule(context.Background(), model.Video{
		ID:          videoID,
		ChannelID:   channelID,
		Title:       "Video " + videoID,
		PublishedAt: publishedAt,
		IsShort:     isShort,
	})
	require.NoError(t, err)
	return ms
}

func TestChannelLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetChannel(ctx, "UCnope")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.UpsertChannel(ctx, model.Channel{
		ID: "UC1", Name: "First", SubscriberCount: 1000, IsActive: true,
	}))
	require.NoError(t, s.UpsertChannel(ctx, model.Channel{
		ID: "UC1", Name: "First Renamed", SubscriberCount: 2000, IsActive: true,
	}))

	got, err = s.GetChannel(ctx, "UC1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "First Renamed", got.Name)
	assert.EqualValues(t, 2000, got.SubscriberCount)
	assert.True(t, got.IsActive)
	assert.Nil(t, got.LastCheckedAt)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.TouchChannelChecked(ctx, "UC1", now))
	got, err = s.GetChannel(ctx, "UC1")
	require.NoError(t, err)
	require.NotNil(t, got.LastCheckedAt)
	assert.WithinDuration(t, now, *got.LastCheckedAt, time.Second)

	require.NoError(t, s.SetChannelActive(ctx, "UC1", false))
	active, err := s.ListChannels(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := s.ListChannels(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.Error(t, s.SetChannelActive(ctx, "UCnope", false))
}

func TestCreateVideoSchedulesAllWindows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, s, "UC1")

	published := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ms := seedVideo(t, s, "vid1", "UC1", published, false)

	require.Len(t, ms, 8)
	for i, w := range model.Windows() {
		assert.Equal(t, w, ms[i].Window)
		assert.Equal(t, published.Add(w.Offset()), ms[i].DueAt)
		assert.Equal(t, model.MeasurementPending, ms[i].Status)
		assert.Zero(t, ms[i].Attempts)
	}

	stored, err := s.MeasurementsForVideo(ctx, "vid1")
	require.NoError(t, err)
	assert.Len(t, stored, 8)

	_, err = s.CreateVideoWithSchedule(ctx, model.Video{
		ID: "vid1", ChannelID: "UC1", PublishedAt: published,
	})
	assert.ErrorIs(t, err, ErrDuplicateItem)

	// The failed duplicate insert must not leave partial schedule rows.
	stored, err = s.MeasurementsForVideo(ctx, "vid1")
	require.NoError(t, err)
	assert.Len(t, stored, 8)
}

func TestDueMeasurements(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, s, "UC1")

	published := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedVideo(t, s, "vid1", "UC1", published, false)

	// At publish+7h the 0h, 1h and 6h rows are due.
	due, err := s.DueMeasurements(ctx, published.Add(7*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, model.Window0h, due[0].Window)
	assert.Equal(t, model.Window1h, due[1].Window)
	assert.Equal(t, model.Window6h, due[2].Window)

	due, err = s.DueMeasurements(ctx, published.Add(7*time.Hour), 2)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestCompleteMeasurementWritesSnapshotOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, s, "UC1")
	published := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	ms := seedVideo(t, s, "vid1", "UC1", published, false)

	snap := model.Snapshot{
		VideoID: "vid1", Window: model.Window0h,
		Views: 100, Likes: 10, Comments: 2,
	}
	claimed, err := s.CompleteMeasurement(ctx, ms[0].ID, snap)
	require.NoError(t, err)
	assert.True(t, claimed)

	got, err := s.SnapshotAt(ctx, "vid1", model.Window0h)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 100, got.Views)

	// An overlapping worker loses the claim and writes nothing.
	claimed, err = s.CompleteMeasurement(ctx, ms[0].ID, model.Snapshot{
		VideoID: "vid1", Window: model.Window0h, Views: 999,
	})
	require.NoError(t, err)
	assert.False(t, claimed)

	got, err = s.SnapshotAt(ctx, "vid1", model.Window0h)
	require.NoError(t, err)
	assert.EqualValues(t, 100, got.Views)

	n, err := s.SnapshotCoverage(ctx, "vid1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFailMeasurementRetryBound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, s, "UC1")
	published := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	ms := seedVideo(t, s, "vid1", "UC1", published, false)

	const maxAttempts = 5
	for i := 1; i < maxAttempts; i++ {
		status, err := s.FailMeasurement(ctx, ms[0].ID, "api timeout", maxAttempts)
		require.NoError(t, err)
		assert.Equal(t, model.MeasurementPending, status, "attempt %d", i)
	}

	status, err := s.FailMeasurement(ctx, ms[0].ID, "api timeout", maxAttempts)
	require.NoError(t, err)
	assert.Equal(t, model.MeasurementFailed, status)

	// Terminal rows never accumulate further attempts.
	status, err = s.FailMeasurement(ctx, ms[0].ID, "late retry", maxAttempts)
	require.NoError(t, err)
	assert.Empty(t, status)

	rows, err := s.MeasurementsForVideo(ctx, "vid1")
	require.NoError(t, err)
	assert.Equal(t, maxAttempts, rows[0].Attempts)
	assert.Equal(t, "api timeout", rows[0].LastError)

	// No snapshot exists for a failed measurement.
	snap, err := s.SnapshotAt(ctx, "vid1", model.Window0h)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSkipMeasurement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, s, "UC1")
	ms := seedVideo(t, s, "vid1", "UC1", time.Now().UTC().Add(-time.Hour), false)

	skipped, err := s.SkipMeasurement(ctx, ms[0].ID, "video removed")
	require.NoError(t, err)
	assert.True(t, skipped)

	skipped, err = s.SkipMeasurement(ctx, ms[0].ID, "video removed")
	require.NoError(t, err)
	assert.False(t, skipped)

	rows, err := s.MeasurementsForVideo(ctx, "vid1")
	require.NoError(t, err)
	assert.Equal(t, model.MeasurementSkipped, rows[0].Status)
	assert.Equal(t, "video removed", rows[0].LastError)
}

func TestCompleteFinishedVideos(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, s, "UC1")
	published := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	ms1 := seedVideo(t, s, "vid1", "UC1", published, false)
	seedVideo(t, s, "vid2", "UC1", published, false)

	n, err := s.CompleteFinishedVideos(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Resolve vid1's final window; vid2 stays active.
	final := ms1[len(ms1)-1]
	require.Equal(t, model.FinalWindow, final.Window)
	_, err = s.CompleteMeasurement(ctx, final.ID, model.Snapshot{
		VideoID: "vid1", Window: model.FinalWindow, Views: 500,
	})
	require.NoError(t, err)

	n, err = s.CompleteFinishedVideos(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v1, err := s.GetVideo(ctx, "vid1")
	require.NoError(t, err)
	assert.Equal(t, model.TrackingCompleted, v1.TrackingStatus)
	v2, err := s.GetVideo(ctx, "vid2")
	require.NoError(t, err)
	assert.Equal(t, model.TrackingActive, v2.TrackingStatus)

	// Idempotent on a second sweep.
	n, err = s.CompleteFinishedVideos(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecentVideosFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, s, "UC1")
	seedChannel(t, s, "UC2")

	now := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	seedVideo(t, s, "old", "UC1", now.AddDate(0, 0, -30), false)
	seedVideo(t, s, "fresh1", "UC1", now.AddDate(0, 0, -2), false)
	seedVideo(t, s, "fresh2", "UC2", now.AddDate(0, 0, -1), true)
	seedVideo(t, s, "gone", "UC2", now.AddDate(0, 0, -1), false)
	require.NoError(t, s.UpdateVideoStatus(ctx, "gone", model.TrackingRemoved))

	vids, err := s.RecentVideos(ctx, now.AddDate(0, 0, -14), nil)
	require.NoError(t, err)
	require.Len(t, vids, 2)
	assert.Equal(t, "fresh2", vids[0].ID)
	assert.Equal(t, "fresh1", vids[1].ID)

	vids, err = s.RecentVideos(ctx, now.AddDate(0, 0, -14), []string{"UC2"})
	require.NoError(t, err)
	require.Len(t, vids, 1)
	assert.Equal(t, "fresh2", vids[0].ID)
}

func TestBaselineSamplesCategoryAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, s, "UC1")

	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	for i, tc := range []struct {
		id      string
		isShort bool
		views   int64
	}{
		{"v1", false, 100},
		{"v2", false, 200},
		{"v3", true, 5000},
		{"v4", false, 300},
	} {
		ms := seedVideo(t, s, tc.id, "UC1", base.Add(time.Duration(i)*24*time.Hour), tc.isShort)
		var m24 model.ScheduledMeasurement
		for _, m := range ms {
			if m.Window == model.Window24h {
				m24 = m
			}
		}
		_, err := s.CompleteMeasurement(ctx, m24.ID, model.Snapshot{
			VideoID: tc.id, Window: model.Window24h, Views: tc.views,
		})
		require.NoError(t, err)
	}

	samples, err := s.BaselineSamples(ctx, "UC1", false, model.Window24h, 30)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	// Newest published first.
	assert.EqualValues(t, 300, samples[0].Views)
	assert.EqualValues(t, 200, samples[1].Views)
	assert.EqualValues(t, 100, samples[2].Views)

	samples, err = s.BaselineSamples(ctx, "UC1", true, model.Window24h, 30)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.EqualValues(t, 5000, samples[0].Views)

	samples, err = s.BaselineSamples(ctx, "UC1", false, model.Window24h, 2)
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}

func TestBaselineUpsertAndManualSeeding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetBaseline(ctx, "UC1", false, model.Window24h)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.UpsertBaseline(ctx, model.ChannelBaseline{
		ChannelID: "UC1", IsShort: false, Window: model.Window24h,
		MedianViews: 1000, SampleSize: 10, Source: model.BaselineCalculated,
	}))

	seeded, err := s.SeedManualBaselines(ctx, []model.ChannelBaseline{
		// Calculated baseline already present: seed is a no-op.
		{ChannelID: "UC1", IsShort: false, Window: model.Window24h, MedianViews: 9999},
		// New key: seed lands as manual.
		{ChannelID: "UC1", IsShort: true, Window: model.Window24h, MedianViews: 400},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, seeded)

	got, err = s.GetBaseline(ctx, "UC1", false, model.Window24h)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, got.MedianViews)
	assert.Equal(t, model.BaselineCalculated, got.Source)

	got, err = s.GetBaseline(ctx, "UC1", true, model.Window24h)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 400, got.MedianViews)
	assert.Equal(t, model.BaselineManual, got.Source)

	// A recalculation overwrites the manual placeholder.
	require.NoError(t, s.UpsertBaseline(ctx, model.ChannelBaseline{
		ChannelID: "UC1", IsShort: true, Window: model.Window24h,
		MedianViews: 450, SampleSize: 6, Source: model.BaselineCalculated,
	}))
	got, err = s.GetBaseline(ctx, "UC1", true, model.Window24h)
	require.NoError(t, err)
	assert.Equal(t, model.BaselineCalculated, got.Source)
	assert.EqualValues(t, 450, got.MedianViews)
}

func TestVideoTopics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, s, "UC1")
	seedVideo(t, s, "vid1", "UC1", time.Now().UTC(), false)
	seedVideo(t, s, "vid2", "UC1", time.Now().UTC(), false)

	has, err := s.VideoHasTopics(ctx, "vid1")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.AddVideoTopics(ctx, "vid1", []string{"ai coding agents", "prompt engineering"}))
	require.NoError(t, s.AddVideoTopics(ctx, "vid2", []string{"home espresso setups"}))

	has, err = s.VideoHasTopics(ctx, "vid1")
	require.NoError(t, err)
	assert.True(t, has)

	topics, err := s.TopicsForVideos(ctx, []string{"vid1", "vid2", "vid3"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ai coding agents", "prompt engineering"}, topics["vid1"])
	assert.ElementsMatch(t, []string{"home espresso setups"}, topics["vid2"])
	assert.NotContains(t, topics, "vid3")
}

func TestSaveClusterPinsIdentityByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.SaveCluster(ctx, nil, "ai coding tools", []string{"cursor tips", "claude workflows"})
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	// Same normalized name in the same bucket resolves to the same cluster,
	// with membership replaced wholesale.
	id2, err := s.SaveCluster(ctx, nil, "ai coding tools", []string{"agentic coding"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	// Same name in a different bucket is a different cluster.
	bucket := "b-123"
	id3, err := s.SaveCluster(ctx, &bucket, "ai coding tools", []string{"cursor tips"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestTrendingTopicsLatestRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	clusterA, err := s.SaveCluster(ctx, nil, "ai coding tools", []string{"cursor tips"})
	require.NoError(t, err)
	clusterB, err := s.SaveCluster(ctx, nil, "home espresso", []string{"espresso setups"})
	require.NoError(t, err)

	run1 := time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC)
	perf := 2.4
	require.NoError(t, s.UpsertTrendingTopic(ctx, model.TrendingTopic{
		ClusterID: clusterA, ChannelCount: 3, VideoCount: 5,
		AvgPerformance: &perf, VideoIDs: []string{"v1", "v2"},
		DetectedAt: run1, PeriodStart: run1.AddDate(0, 0, -14), PeriodEnd: run1,
	}))
	require.NoError(t, s.UpsertTrendingTopic(ctx, model.TrendingTopic{
		ClusterID: clusterB, ChannelCount: 2, VideoCount: 2,
		VideoIDs: []string{"v3"},
		DetectedAt: run1, PeriodStart: run1.AddDate(0, 0, -14), PeriodEnd: run1,
	}))

	trends, err := s.LatestTrends(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, trends, 2)
	assert.Equal(t, "ai coding tools", trends[0].ClusterName)
	require.NotNil(t, trends[0].AvgPerformance)
	assert.InDelta(t, 2.4, *trends[0].AvgPerformance, 1e-9)
	assert.Equal(t, []string{"v1", "v2"}, trends[0].VideoIDs)
	// No baseline data for the second cluster: ratio stays unknown.
	assert.Nil(t, trends[1].AvgPerformance)

	// A later run only re-qualifies cluster A; readers see just that run.
	run2 := run1.Add(24 * time.Hour)
	require.NoError(t, s.UpsertTrendingTopic(ctx, model.TrendingTopic{
		ClusterID: clusterA, ChannelCount: 4, VideoCount: 7,
		VideoIDs: []string{"v1", "v2", "v4"},
		DetectedAt: run2, PeriodStart: run2.AddDate(0, 0, -14), PeriodEnd: run2,
	}))

	trends, err = s.LatestTrends(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, trends, 1)
	assert.Equal(t, clusterA, trends[0].ClusterID)
	assert.Equal(t, 4, trends[0].ChannelCount)
}

func TestBuckets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, s, "UC1")
	seedChannel(t, s, "UC2")

	b, err := s.CreateBucket(ctx, "coffee")
	require.NoError(t, err)
	require.NotEmpty(t, b.ID)

	_, err = s.CreateBucket(ctx, "coffee")
	assert.ErrorIs(t, err, ErrDuplicateItem)

	require.NoError(t, s.AddChannelToBucket(ctx, b.ID, "UC1"))
	require.NoError(t, s.AddChannelToBucket(ctx, b.ID, "UC2"))
	require.NoError(t, s.AddChannelToBucket(ctx, b.ID, "UC1"))

	buckets, err := s.ListBuckets(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, "coffee", buckets[0].Name)
	assert.ElementsMatch(t, []string{"UC1", "UC2"}, buckets[0].ChannelIDs)
}

func TestPipelineStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChannel(t, s, "UC1")
	seedChannel(t, s, "UC2")
	require.NoError(t, s.SetChannelActive(ctx, "UC2", false))

	// Published two hours ago: 0h and 1h windows are past due, the rest
	// pending in the future.
	ms := seedVideo(t, s, "v1", "UC1", time.Now().UTC().Add(-2*time.Hour), false)

	claimed, err := s.CompleteMeasurement(ctx, ms[0].ID, model.Snapshot{
		VideoID: "v1", Window: model.Window0h, Views: 100,
	})
	require.NoError(t, err)
	require.True(t, claimed)
	_, err = s.FailMeasurement(ctx, ms[1].ID, "boom", 1)
	require.NoError(t, err)

	st, err := s.PipelineStats(ctx, time.Now().UTC().Add(-24*time.Hour), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 6, st.PendingMeasurements)
	assert.Zero(t, st.OverdueMeasurements)
	assert.Equal(t, 1, st.CompletedMeasurements)
	assert.Equal(t, 1, st.FailedMeasurements)
	assert.Equal(t, 1, st.TrackingVideos)
	assert.Equal(t, 1, st.ActiveChannels)
	assert.Nil(t, st.LastTrendRun)

	// Pending rows left past due beyond the grace period are overdue: for a
	// video published 48h ago those are the 0h through 24h windows. The 48h
	// window is due right now, inside the grace period.
	seedVideo(t, s, "v2", "UC1", time.Now().UTC().Add(-48*time.Hour), false)
	st, err = s.PipelineStats(ctx, time.Now().UTC().Add(-24*time.Hour), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 5, st.OverdueMeasurements)

	require.NoError(t, s.UpsertTrendingTopic(ctx, model.TrendingTopic{
		ClusterID:    mustSaveCluster(t, s, "coffee gear"),
		ClusterName:  "coffee gear",
		ChannelCount: 2, VideoCount: 3,
		VideoIDs:   []string{"v1", "v2"},
		DetectedAt: time.Now().UTC(),
		PeriodEnd:  time.Now().UTC(),
	}))
	st, err = s.PipelineStats(ctx, time.Now().UTC().Add(-24*time.Hour), 30*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, st.LastTrendRun)
}

func mustSaveCluster(t *testing.T, s *SQLiteStore, name string) string {
	t.Helper()
	id, err := s.SaveCluster(context.Background(), nil, name, []string{name})
	require.NoError(t, err)
	return id
}
