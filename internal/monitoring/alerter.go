package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/creatrr/trendwatch/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertMeasurementFailureRate AlertType = "measurement_failure_rate"
	AlertMeasurementBacklog     AlertType = "measurement_backlog"
	AlertStaleTrends            AlertType = "stale_trends"
	AlertCostOverrun            AlertType = "cost_overrun"
	AlertQuotaBudget            AlertType = "quota_budget"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Measurement failure rate. A handful of failures is normal (deleted
	// videos, API blips); a high rate over many rows means something broke.
	finished := snap.CompletedMeasurements + snap.FailedMeasurements
	if finished >= 10 && snap.MeasurementFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertMeasurementFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Measurement failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.MeasurementFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.FailedMeasurements, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.MeasurementFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.FailedMeasurements,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	// Worker backlog.
	if a.cfg.OverdueThreshold > 0 && snap.OverdueMeasurements > a.cfg.OverdueThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertMeasurementBacklog,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d measurements overdue (threshold %d); the snapshot worker is falling behind",
				snap.OverdueMeasurements, a.cfg.OverdueThreshold,
			),
			Details: map[string]any{
				"overdue":   snap.OverdueMeasurements,
				"pending":   snap.PendingMeasurements,
				"threshold": a.cfg.OverdueThreshold,
			},
			Timestamp: now,
		})
	}

	// Trend detection freshness. Only meaningful once a run has happened
	// and there is something to aggregate.
	if a.cfg.StaleTrendsHours > 0 && snap.LastTrendRun != nil && snap.TrackingVideos > 0 {
		age := now.Sub(*snap.LastTrendRun)
		if age > time.Duration(a.cfg.StaleTrendsHours)*time.Hour {
			alerts = append(alerts, Alert{
				Type:     AlertStaleTrends,
				Severity: "medium",
				Message: fmt.Sprintf(
					"No trend aggregation run in %.0fh (threshold %dh)",
					age.Hours(), a.cfg.StaleTrendsHours,
				),
				Details: map[string]any{
					"last_run_at": snap.LastTrendRun,
					"age_hours":   age.Hours(),
				},
				Timestamp: now,
			})
		}
	}

	// AI cost overrun.
	if a.cfg.CostThresholdUSD > 0 && snap.AICostUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"AI spend $%.2f exceeds threshold $%.2f since process start",
				snap.AICostUSD, a.cfg.CostThresholdUSD,
			),
			Details: map[string]any{
				"cost_usd":      snap.AICostUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
				"ai_calls":      snap.AICalls,
				"ai_tokens":     snap.AITokens,
			},
			Timestamp: now,
		})
	}

	// YouTube quota budget.
	if a.cfg.QuotaThreshold > 0 && snap.QuotaFraction > a.cfg.QuotaThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertQuotaBudget,
			Severity: "high",
			Message: fmt.Sprintf(
				"YouTube quota usage at %.0f%% of daily budget (threshold %.0f%%)",
				snap.QuotaFraction*100, a.cfg.QuotaThreshold*100,
			),
			Details: map[string]any{
				"quota_units":    snap.QuotaUnits,
				"quota_fraction": snap.QuotaFraction,
				"threshold":      a.cfg.QuotaThreshold,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
