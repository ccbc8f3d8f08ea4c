package model

import "time"

// Channel is a tracked content channel. Deactivating a channel stops new
// video discovery but keeps its history.
type Channel struct {
	ID              string     `json:"channel_id"`
	Name            string     `json:"channel_name"`
	SubscriberCount int64      `json:"subscriber_count"`
	TotalVideos     int64      `json:"total_videos"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	LastCheckedAt   *time.Time `json:"last_checked_at,omitempty"`
}
