package model

import "time"

// PipelineStats is an aggregate health view of the tracking pipeline,
// collected for monitoring. Terminal measurement counts cover rows that
// came due inside the monitoring lookback window; pending and overdue
// counts are absolute.
type PipelineStats struct {
	PendingMeasurements   int        `json:"pending_measurements"`
	OverdueMeasurements   int        `json:"overdue_measurements"`
	CompletedMeasurements int        `json:"completed_measurements"`
	FailedMeasurements    int        `json:"failed_measurements"`
	SkippedMeasurements   int        `json:"skipped_measurements"`
	TrackingVideos        int        `json:"tracking_videos"`
	ActiveChannels        int        `json:"active_channels"`
	LastTrendRun          *time.Time `json:"last_trend_run,omitempty"`
}
