// Package trends detects cross-channel trending topics: it extracts topics
// from high-performing videos, clusters them with AI, and persists the
// clusters that enough distinct channels participate in.
package trends

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/creatrr/trendwatch/internal/baseline"
	"github.com/creatrr/trendwatch/internal/model"
	"github.com/creatrr/trendwatch/internal/store"
	"github.com/creatrr/trendwatch/pkg/topicai"
)

// Options configures trend aggregation.
type Options struct {
	// WindowDays is the trailing candidate window.
	WindowDays int
	// MinPerformance is the 24h performance ratio a video needs to become
	// a trend candidate. Videos without a usable baseline never qualify.
	MinPerformance float64
	// MinChannels is the configured channel participation threshold; the
	// effective threshold also scales down for small buckets.
	MinChannels int
}

// QualifyThreshold is the effective distinct-channel count a cluster needs:
// the configured minimum, scaled down to half the bucket size for small
// buckets, but never below 2. One channel alone is never a cross-channel
// trend.
func QualifyThreshold(minChannels, bucketSize int) int {
	t := minChannels
	if half := bucketSize / 2; half < t {
		t = half
	}
	if t < 2 {
		t = 2
	}
	return t
}

// ContentFunc returns the text used for topic extraction of a video.
type ContentFunc func(ctx context.Context, v model.Video) string

// Aggregator runs trend detection, globally or per bucket.
type Aggregator struct {
	store   store.Store
	ai      topicai.Client
	opts    Options
	content ContentFunc
	log     *zap.Logger
	now     func() time.Time
}

// NewAggregator creates an Aggregator. content may be nil, in which case
// extraction sees only the video title.
func NewAggregator(s store.Store, ai topicai.Client, opts Options, content ContentFunc, log *zap.Logger) *Aggregator {
	if opts.WindowDays <= 0 {
		opts.WindowDays = 14
	}
	if opts.MinPerformance <= 0 {
		opts.MinPerformance = 1.5
	}
	if opts.MinChannels <= 0 {
		opts.MinChannels = 3
	}
	if content == nil {
		content = func(ctx context.Context, v model.Video) string { return v.Title }
	}
	return &Aggregator{
		store:   s,
		ai:      ai,
		opts:    opts,
		content: content,
		log:     log.Named("trends"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type candidate struct {
	video model.Video
	ratio *float64
}

// Run executes one aggregation for the given bucket (nil = global scope
// over all active channels). All trends written by the run share one
// detection stamp, so readers can select exactly this run's results.
func (a *Aggregator) Run(ctx context.Context, bucket *model.Bucket) ([]model.TrendingTopic, error) {
	scopeChannels, bucketID, hint, err := a.scope(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if len(scopeChannels) == 0 {
		return nil, nil
	}

	periodEnd := a.now()
	periodStart := periodEnd.AddDate(0, 0, -a.opts.WindowDays)

	candidates, err := a.collectCandidates(ctx, periodStart, scopeChannels)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		a.log.Info("no trend candidates", zap.String("scope", hint))
		return nil, nil
	}

	topicsByVideo, err := a.ensureTopics(ctx, candidates)
	if err != nil {
		return nil, err
	}

	// Index topic phrase -> candidates carrying it.
	videosByTopic := make(map[string][]candidate)
	var allTopics []string
	for _, c := range candidates {
		for _, topic := range topicsByVideo[c.video.ID] {
			if len(videosByTopic[topic]) == 0 {
				allTopics = append(allTopics, topic)
			}
			videosByTopic[topic] = append(videosByTopic[topic], c)
		}
	}
	if len(allTopics) == 0 {
		return nil, nil
	}

	clusters, err := a.ai.ClusterTopics(ctx, allTopics, hint)
	if err != nil {
		return nil, err
	}

	threshold := QualifyThreshold(a.opts.MinChannels, len(scopeChannels))
	var trends []model.TrendingTopic
	for _, cluster := range clusters {
		trend, ok := a.qualify(cluster, videosByTopic, threshold)
		if !ok {
			continue
		}
		trend.BucketID = bucketID
		trend.DetectedAt = periodEnd
		trend.PeriodStart = periodStart
		trend.PeriodEnd = periodEnd

		clusterID, err := a.store.SaveCluster(ctx, bucketID, cluster.Name, cluster.Topics)
		if err != nil {
			return trends, err
		}
		trend.ClusterID = clusterID
		if err := a.store.UpsertTrendingTopic(ctx, trend); err != nil {
			return trends, err
		}
		trends = append(trends, trend)

		a.log.Info("trend detected",
			zap.String("cluster", cluster.Name),
			zap.Int("channels", trend.ChannelCount),
			zap.Int("videos", trend.VideoCount),
		)
	}

	a.log.Info("aggregation complete",
		zap.String("scope", hint),
		zap.Int("candidates", len(candidates)),
		zap.Int("clusters", len(clusters)),
		zap.Int("trends", len(trends)),
		zap.Int("threshold", threshold),
	)
	return trends, nil
}

func (a *Aggregator) scope(ctx context.Context, bucket *model.Bucket) ([]string, *string, string, error) {
	if bucket != nil {
		return bucket.ChannelIDs, &bucket.ID, bucket.Name, nil
	}
	channels, err := a.store.ListChannels(ctx, true)
	if err != nil {
		return nil, nil, "", err
	}
	ids := make([]string, len(channels))
	for i, ch := range channels {
		ids[i] = ch.ID
	}
	return ids, nil, "", nil
}

// collectCandidates returns recent videos beating their channel baseline at
// the 24h window.
func (a *Aggregator) collectCandidates(ctx context.Context, since time.Time, channelIDs []string) ([]candidate, error) {
	videos, err := a.store.RecentVideos(ctx, since, channelIDs)
	if err != nil {
		return nil, err
	}

	var out []candidate
	for _, v := range videos {
		ratio, err := baseline.PerformanceRatio(ctx, a.store, v, model.Window24h)
		if err != nil {
			return nil, err
		}
		if ratio == nil || *ratio < a.opts.MinPerformance {
			continue
		}
		out = append(out, candidate{video: v, ratio: ratio})
	}
	return out, nil
}

// ensureTopics extracts topics for candidates that have none yet.
// Extraction is append-only and happens at most once per video, so repeated
// runs never re-bill the same content.
func (a *Aggregator) ensureTopics(ctx context.Context, candidates []candidate) (map[string][]string, error) {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.video.ID
	}

	existing, err := a.store.TopicsForVideos(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, c := range candidates {
		if len(existing[c.video.ID]) > 0 {
			continue
		}
		topics, err := a.ai.ExtractTopics(ctx, a.content(ctx, c.video))
		if err != nil {
			// One failed extraction costs one video's topics, not the run.
			a.log.Warn("topic extraction failed",
				zap.String("video_id", c.video.ID),
				zap.Error(err),
			)
			continue
		}
		if len(topics) == 0 {
			continue
		}
		if err := a.store.AddVideoTopics(ctx, c.video.ID, topics); err != nil {
			return nil, err
		}
		existing[c.video.ID] = topics
	}
	return existing, nil
}

func (a *Aggregator) qualify(cluster topicai.Cluster, videosByTopic map[string][]candidate, threshold int) (model.TrendingTopic, bool) {
	seen := make(map[string]bool)
	channels := make(map[string]bool)
	var videoIDs []string
	var ratioSum float64
	var ratioCount int

	for _, topic := range cluster.Topics {
		for _, c := range videosByTopic[topic] {
			if seen[c.video.ID] {
				continue
			}
			seen[c.video.ID] = true
			channels[c.video.ChannelID] = true
			videoIDs = append(videoIDs, c.video.ID)
			if c.ratio != nil {
				ratioSum += *c.ratio
				ratioCount++
			}
		}
	}

	if len(channels) < threshold {
		return model.TrendingTopic{}, false
	}

	var avg *float64
	if ratioCount > 0 {
		v := ratioSum / float64(ratioCount)
		avg = &v
	}
	return model.TrendingTopic{
		ClusterName:    cluster.Name,
		ChannelCount:   len(channels),
		VideoCount:     len(videoIDs),
		AvgPerformance: avg,
		VideoIDs:       videoIDs,
	}, true
}
