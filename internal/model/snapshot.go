package model

import "time"

// Snapshot is an immutable point-in-time stat capture for a video at one
// window. Written exactly once, when the matching scheduled measurement
// completes.
type Snapshot struct {
	ID         string    `json:"id"`
	VideoID    string    `json:"video_id"`
	Window     Window    `json:"window"`
	Views      int64     `json:"views"`
	Likes      int64     `json:"likes"`
	Comments   int64     `json:"comments"`
	CapturedAt time.Time `json:"captured_at"`
}
