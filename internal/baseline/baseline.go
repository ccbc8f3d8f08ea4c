// Package baseline maintains per-channel median baselines and computes
// performance ratios against them.
package baseline

import (
	"sort"

	"github.com/creatrr/trendwatch/internal/model"
)

// Median returns the median of values: the middle element for odd counts,
// the mean of the two middle elements for even counts. Returns 0 for an
// empty slice.
func Median(values []int64) int64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Ratio computes observed/baseline. A nil result means "no comparison
// possible" (zero or missing baseline) and must never be conflated with a
// ratio of zero.
func Ratio(observed, baseline int64) *float64 {
	if baseline <= 0 {
		return nil
	}
	r := float64(observed) / float64(baseline)
	return &r
}

// FromSamples builds a calculated baseline from snapshot samples. The
// caller enforces the minimum sample size.
func FromSamples(channelID string, isShort bool, window model.Window, samples []model.Snapshot) model.ChannelBaseline {
	views := make([]int64, len(samples))
	likes := make([]int64, len(samples))
	comments := make([]int64, len(samples))
	for i, s := range samples {
		views[i] = s.Views
		likes[i] = s.Likes
		comments[i] = s.Comments
	}
	return model.ChannelBaseline{
		ChannelID:      channelID,
		IsShort:        isShort,
		Window:         window,
		MedianViews:    Median(views),
		MedianLikes:    Median(likes),
		MedianComments: Median(comments),
		SampleSize:     len(samples),
		Source:         model.BaselineCalculated,
	}
}
