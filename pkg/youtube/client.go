// Package youtube wraps the YouTube Data API v3 and channel RSS feeds
// behind a small interface covering the operations the tracking pipeline
// needs.
package youtube

import (
	"context"
	"time"
)

// Client defines the YouTube operations used by the pipeline.
type Client interface {
	// VideoStats returns current view/like/comment counts for a video.
	// Returns a resilience.NotFoundError when the video is gone.
	VideoStats(ctx context.Context, videoID string) (*VideoStats, error)
	// VideoDetails returns full metadata plus current stats for a video.
	VideoDetails(ctx context.Context, videoID string) (*VideoDetails, error)
	// ChannelInfo returns channel metadata by channel ID.
	ChannelInfo(ctx context.Context, channelID string) (*ChannelInfo, error)
	// ResolveChannel resolves a channel reference (ID, @handle, URL, or
	// plain name) to a channel ID.
	ResolveChannel(ctx context.Context, ref string) (string, error)
	// ChannelFeed returns the channel's recent uploads from its RSS feed.
	// Feed reads cost no API quota.
	ChannelFeed(ctx context.Context, channelID string) ([]FeedEntry, error)
	// IsShort classifies a video as a Short. Classification happens once
	// at discovery and is never revisited.
	IsShort(ctx context.Context, d *VideoDetails) bool
}

// VideoStats is a point-in-time stat reading for a video.
type VideoStats struct {
	VideoID  string
	Views    int64
	Likes    int64
	Comments int64
}

// VideoDetails is full video metadata with current stats.
type VideoDetails struct {
	VideoID         string
	ChannelID       string
	Title           string
	Description     string
	PublishedAt     time.Time
	DurationSeconds int64
	Stats           VideoStats
}

// ChannelInfo is channel metadata.
type ChannelInfo struct {
	ID              string
	Title           string
	SubscriberCount int64
	VideoCount      int64
}

// FeedEntry is one upload from a channel RSS feed.
type FeedEntry struct {
	VideoID     string
	ChannelID   string
	Title       string
	PublishedAt time.Time
}
