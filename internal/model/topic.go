package model

import "time"

// VideoTopic is one raw AI-extracted topic phrase for a video. Append-only,
// one to three per video.
type VideoTopic struct {
	ID          string    `json:"id"`
	VideoID     string    `json:"video_id"`
	Topic       string    `json:"topic"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// TopicCluster groups semantically similar raw topic phrases under a
// normalized name. Cluster identity is pinned by (bucket, name); membership
// is replaced wholesale on each aggregation run.
type TopicCluster struct {
	ID        string    `json:"id"`
	BucketID  *string   `json:"bucket_id,omitempty"`
	Name      string    `json:"normalized_name"`
	Topics    []string  `json:"topics"`
	UpdatedAt time.Time `json:"updated_at"`
}
