package model

import "time"

// Bucket is a named grouping of channels. Trend aggregation runs per bucket,
// and the qualification threshold scales with the bucket's channel count.
type Bucket struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ChannelIDs []string  `json:"channel_ids"`
	CreatedAt  time.Time `json:"created_at"`
}
