package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/creatrr/trendwatch/internal/baseline"
	"github.com/creatrr/trendwatch/internal/cost"
	"github.com/creatrr/trendwatch/internal/discovery"
	"github.com/creatrr/trendwatch/internal/lifecycle"
	"github.com/creatrr/trendwatch/internal/model"
	"github.com/creatrr/trendwatch/internal/monitoring"
	"github.com/creatrr/trendwatch/internal/snapshot"
	"github.com/creatrr/trendwatch/internal/store"
	"github.com/creatrr/trendwatch/internal/trends"
	"github.com/creatrr/trendwatch/pkg/topicai"
	"github.com/creatrr/trendwatch/pkg/youtube"
)

// env bundles the wired pipeline components the commands share.
type env struct {
	store      store.Store
	yt         youtube.Client
	ai         topicai.Client
	usage      *cost.Tracker
	ingestor   *lifecycle.Ingestor
	poller     *discovery.Poller
	worker     *snapshot.Worker
	calculator *baseline.Calculator
	aggregator *trends.Aggregator
	collector  *monitoring.Collector
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "trendwatch.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initEnv(ctx context.Context) (*env, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			zap.L().Error("config error", zap.String("problem", e))
		}
		return nil, eris.New("invalid configuration")
	}

	s, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	log := zap.L()
	usage := cost.NewTracker()
	yt := youtube.NewHTTPClient(youtube.Options{
		APIKey:     cfg.YouTube.APIKey,
		Timeout:    cfg.YouTube.Timeout(),
		RateLimit:  rate.Limit(cfg.YouTube.RequestsPerSec),
		OnQuota:    usage.AddQuota,
		APIBaseURL: cfg.YouTube.BaseURL,
	}, log)

	ai := topicai.NewClient(topicai.Options{
		APIKey:  cfg.Anthropic.Key,
		Model:   cfg.Anthropic.Model,
		OnUsage: usage.AddTokens,
	}, log)

	ingestor := lifecycle.NewIngestor(s, yt, log)

	// Topic extraction sees title plus description when the API still has
	// the video; otherwise the title alone has to do.
	content := func(ctx context.Context, v model.Video) string {
		d, err := yt.VideoDetails(ctx, v.ID)
		if err != nil || d == nil {
			return v.Title
		}
		return d.Title + "\n\n" + d.Description
	}

	return &env{
		store:    s,
		yt:       yt,
		ai:       ai,
		usage:    usage,
		ingestor: ingestor,
		poller:   discovery.NewPoller(s, yt, ingestor, cfg.Snapshot.Concurrency, log),
		worker: snapshot.NewWorker(s, yt, snapshot.Options{
			MaxAttempts: cfg.Snapshot.MaxAttempts,
			Concurrency: cfg.Snapshot.Concurrency,
			BatchSize:   cfg.Snapshot.FetchLimit,
		}, log),
		calculator: baseline.NewCalculator(s, baseline.Options{
			SampleSize: cfg.Baseline.SampleSize,
			MinSample:  cfg.Baseline.MinSample,
		}, log),
		aggregator: trends.NewAggregator(s, ai, trends.Options{
			WindowDays:     cfg.Trends.WindowDays,
			MinPerformance: cfg.Trends.MinPerformanceRatio,
			MinChannels:    cfg.Trends.MinChannels,
		}, content, log),
		collector: monitoring.NewCollector(s, usage,
			cost.NewCalculator(cost.DefaultRates()), cfg.Anthropic.Model),
	}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}
