package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatrr/trendwatch/internal/config"
	"github.com/creatrr/trendwatch/internal/cost"
	"github.com/creatrr/trendwatch/internal/model"
	"github.com/creatrr/trendwatch/internal/store"
)

func newMonitoringStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestCollectorGathersPipelineHealth(t *testing.T) {
	s := newMonitoringStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertChannel(ctx, model.Channel{ID: "UC1", Name: "a", IsActive: true}))

	ms, err := s.CreateVideoWithSchedule(ctx, model.Video{
		ID: "v1", ChannelID: "UC1", Title: "t",
		PublishedAt: time.Now().UTC().Add(-2 * time.Hour),
	})
	require.NoError(t, err)

	claimed, err := s.CompleteMeasurement(ctx, ms[0].ID, model.Snapshot{
		VideoID: "v1", Window: model.Window0h, Views: 10,
	})
	require.NoError(t, err)
	require.True(t, claimed)
	_, err = s.FailMeasurement(ctx, ms[1].ID, "gone", 1)
	require.NoError(t, err)

	usage := cost.NewTracker()
	usage.AddTokens(1_000_000, 100_000)
	usage.AddQuota(2500)

	calc := cost.NewCalculator(cost.Rates{
		Anthropic: map[string]cost.ModelRate{"haiku": {Input: 0.80, Output: 4.00}},
		YouTube:   cost.QuotaRate{DailyUnits: 10000},
	})

	c := NewCollector(s, usage, calc, "haiku")
	snap, err := c.Collect(ctx, 24)
	require.NoError(t, err)

	assert.Equal(t, 6, snap.PendingMeasurements)
	assert.Equal(t, 1, snap.CompletedMeasurements)
	assert.Equal(t, 1, snap.FailedMeasurements)
	assert.InDelta(t, 0.5, snap.MeasurementFailRate, 1e-9)
	assert.Equal(t, 1, snap.TrackingVideos)
	assert.Equal(t, 1, snap.ActiveChannels)
	assert.Nil(t, snap.LastTrendRun)
	assert.InDelta(t, 1.20, snap.AICostUSD, 1e-9)
	assert.InDelta(t, 0.25, snap.QuotaFraction, 1e-9)
	assert.Equal(t, int64(1), snap.AICalls)
}

func TestCollectorWithoutUsageTracker(t *testing.T) {
	s := newMonitoringStore(t)
	c := NewCollector(s, nil, nil, "")
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.AICostUSD)
	assert.Zero(t, snap.QuotaUnits)
}

func testMonitoringConfig() config.MonitoringConfig {
	return config.MonitoringConfig{
		LookbackWindowHours:  24,
		FailureRateThreshold: 0.25,
		OverdueThreshold:     50,
		StaleTrendsHours:     48,
		CostThresholdUSD:     10,
		QuotaThreshold:       0.8,
	}
}

func TestAlerterEvaluate(t *testing.T) {
	t.Parallel()
	a := NewAlerter(testMonitoringConfig())
	old := time.Now().UTC().Add(-72 * time.Hour)

	tests := []struct {
		name string
		snap MetricsSnapshot
		want []AlertType
	}{
		{
			name: "healthy",
			snap: MetricsSnapshot{CompletedMeasurements: 100, FailedMeasurements: 2},
		},
		{
			name: "failure rate above threshold",
			snap: MetricsSnapshot{CompletedMeasurements: 10, FailedMeasurements: 10},
			want: []AlertType{AlertMeasurementFailureRate},
		},
		{
			name: "failure rate ignored on tiny sample",
			snap: MetricsSnapshot{CompletedMeasurements: 1, FailedMeasurements: 3},
		},
		{
			name: "worker backlog",
			snap: MetricsSnapshot{OverdueMeasurements: 51, PendingMeasurements: 60},
			want: []AlertType{AlertMeasurementBacklog},
		},
		{
			name: "stale trends",
			snap: MetricsSnapshot{LastTrendRun: &old, TrackingVideos: 5},
			want: []AlertType{AlertStaleTrends},
		},
		{
			name: "stale trends ignored with nothing tracked",
			snap: MetricsSnapshot{LastTrendRun: &old},
		},
		{
			name: "cost overrun",
			snap: MetricsSnapshot{AICostUSD: 12.5},
			want: []AlertType{AlertCostOverrun},
		},
		{
			name: "quota budget",
			snap: MetricsSnapshot{QuotaFraction: 0.92, QuotaUnits: 9200},
			want: []AlertType{AlertQuotaBudget},
		},
		{
			name: "multiple at once",
			snap: MetricsSnapshot{
				CompletedMeasurements: 5, FailedMeasurements: 10,
				OverdueMeasurements: 200, AICostUSD: 99,
			},
			want: []AlertType{AlertMeasurementFailureRate, AlertMeasurementBacklog, AlertCostOverrun},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := tt.snap
			snap.LookbackHours = 24
			alerts := a.Evaluate(&snap)
			var got []AlertType
			for _, al := range alerts {
				got = append(got, al.Type)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestSendAlertsPostsWebhook(t *testing.T) {
	var mu sync.Mutex
	var received []Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var al Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&al))
		mu.Lock()
		received = append(received, al)
		mu.Unlock()
	}))
	t.Cleanup(srv.Close)

	cfg := testMonitoringConfig()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	alerts := []Alert{
		{Type: AlertCostOverrun, Severity: "high", Message: "spend"},
		{Type: AlertQuotaBudget, Severity: "high", Message: "quota"},
	}
	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	require.Len(t, received, 2)
	assert.Equal(t, AlertCostOverrun, received[0].Type)
}

func TestSendAlertsWithoutWebhook(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertCostOverrun}})
	assert.Zero(t, sent)
}

func TestCheckerRunStopsOnCancel(t *testing.T) {
	s := newMonitoringStore(t)
	cfg := testMonitoringConfig()
	cfg.CheckIntervalSecs = 1

	c := NewChecker(NewCollector(s, nil, nil, ""), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("checker did not stop on context cancel")
	}
}
