package model

import "time"

// TrendingTopic is one qualifying cluster from an aggregation run. Each run
// upserts the row for its (bucket, cluster) key; readers pick the rows with
// the latest DetectedAt.
type TrendingTopic struct {
	ID             string    `json:"id"`
	ClusterID      string    `json:"cluster_id"`
	ClusterName    string    `json:"cluster_name"`
	BucketID       *string   `json:"bucket_id,omitempty"`
	ChannelCount   int       `json:"channel_count"`
	VideoCount     int       `json:"video_count"`
	AvgPerformance *float64  `json:"avg_performance,omitempty"`
	VideoIDs       []string  `json:"video_ids"`
	DetectedAt     time.Time `json:"detected_at"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
}
