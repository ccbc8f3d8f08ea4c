package model

import "time"

// TrackingStatus is the lifecycle state of a tracked video.
type TrackingStatus string

const (
	// TrackingActive means measurements are still being collected.
	TrackingActive TrackingStatus = "active"
	// TrackingCompleted means the final measurement window has resolved.
	TrackingCompleted TrackingStatus = "completed"
	// TrackingRemoved means the video disappeared upstream. Historical
	// snapshots remain valid.
	TrackingRemoved TrackingStatus = "removed"
)

// Video is a tracked published item. IsShort is classified once at discovery
// and never changes; it selects which baseline bucket the video compares
// against.
type Video struct {
	ID              string         `json:"video_id"`
	ChannelID       string         `json:"channel_id"`
	Title           string         `json:"title"`
	PublishedAt     time.Time      `json:"published_at"`
	DiscoveredAt    time.Time      `json:"discovered_at"`
	DurationSeconds int64          `json:"duration_seconds"`
	IsShort         bool           `json:"is_short"`
	TrackingStatus  TrackingStatus `json:"tracking_status"`
}
