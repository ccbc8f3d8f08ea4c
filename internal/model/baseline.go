package model

import "time"

// BaselineSource distinguishes operator-seeded baselines from computed ones.
type BaselineSource string

const (
	// BaselineCalculated is derived from snapshot medians.
	BaselineCalculated BaselineSource = "calculated"
	// BaselineManual is an operator-seeded placeholder, superseded once a
	// calculated baseline exists for the same key.
	BaselineManual BaselineSource = "manual"
)

// ChannelBaseline holds the median metrics for one
// (channel, content-category, window) key. It is the comparison denominator
// for performance ratios everywhere else.
type ChannelBaseline struct {
	ChannelID      string         `json:"channel_id"`
	IsShort        bool           `json:"is_short"`
	Window         Window         `json:"window"`
	MedianViews    int64          `json:"median_views"`
	MedianLikes    int64          `json:"median_likes"`
	MedianComments int64          `json:"median_comments"`
	SampleSize     int            `json:"sample_size"`
	Source         BaselineSource `json:"source"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
