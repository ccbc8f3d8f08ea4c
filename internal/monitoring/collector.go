// Package monitoring collects pipeline health metrics, evaluates them
// against configured thresholds, and delivers alerts via webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/creatrr/trendwatch/internal/cost"
	"github.com/creatrr/trendwatch/internal/store"
)

// overdueGrace is how far past due a pending measurement may be before it
// counts as backlog. The worker runs every few minutes; half an hour of lag
// means it is wedged or drowning.
const overdueGrace = 30 * time.Minute

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Measurement metrics. Terminal counts are within the lookback window.
	PendingMeasurements   int     `json:"pending_measurements"`
	OverdueMeasurements   int     `json:"overdue_measurements"`
	CompletedMeasurements int     `json:"completed_measurements"`
	FailedMeasurements    int     `json:"failed_measurements"`
	SkippedMeasurements   int     `json:"skipped_measurements"`
	MeasurementFailRate   float64 `json:"measurement_fail_rate"`

	// Tracking scope.
	TrackingVideos int `json:"tracking_videos"`
	ActiveChannels int `json:"active_channels"`

	// Trend detection freshness.
	LastTrendRun *time.Time `json:"last_trend_run,omitempty"`

	// API spend since process start.
	AICostUSD     float64 `json:"ai_cost_usd"`
	AICalls       int64   `json:"ai_calls"`
	AITokens      int64   `json:"ai_tokens"`
	QuotaUnits    int64   `json:"quota_units"`
	QuotaFraction float64 `json:"quota_fraction"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store and the usage tracker.
type Collector struct {
	store store.Store
	usage *cost.Tracker
	calc  *cost.Calculator
	model string
}

// NewCollector creates a metrics collector. usage may be nil when API spend
// is not tracked.
func NewCollector(st store.Store, usage *cost.Tracker, calc *cost.Calculator, model string) *Collector {
	return &Collector{store: st, usage: usage, calc: calc, model: model}
}

// Collect gathers a snapshot of pipeline health over the given lookback
// window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	since := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)
	stats, err := c.store.PipelineStats(ctx, since, overdueGrace)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: pipeline stats")
	}

	snap.PendingMeasurements = stats.PendingMeasurements
	snap.OverdueMeasurements = stats.OverdueMeasurements
	snap.CompletedMeasurements = stats.CompletedMeasurements
	snap.FailedMeasurements = stats.FailedMeasurements
	snap.SkippedMeasurements = stats.SkippedMeasurements
	snap.TrackingVideos = stats.TrackingVideos
	snap.ActiveChannels = stats.ActiveChannels
	snap.LastTrendRun = stats.LastTrendRun

	finished := stats.CompletedMeasurements + stats.FailedMeasurements
	if finished > 0 {
		snap.MeasurementFailRate = float64(stats.FailedMeasurements) / float64(finished)
	}

	if c.usage != nil {
		u := c.usage.Usage()
		snap.AICalls = u.AICalls
		snap.AITokens = u.InputTokens + u.OutputTokens
		snap.QuotaUnits = u.QuotaUnits
		if c.calc != nil {
			snap.AICostUSD = c.calc.Claude(c.model, u)
			snap.QuotaFraction = c.calc.QuotaFraction(u)
		}
	}

	return snap, nil
}
