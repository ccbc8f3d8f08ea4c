package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/creatrr/trendwatch/internal/discovery"
	"github.com/creatrr/trendwatch/internal/jobs"
	"github.com/creatrr/trendwatch/internal/model"
	"github.com/creatrr/trendwatch/internal/monitoring"
)

var servePort int

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tracking pipeline and HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.store.Migrate(ctx); err != nil {
			return err
		}

		runner := jobs.NewRunner(zap.L())
		runner.Add(jobs.Job{
			Name:      "snapshots",
			Interval:  cfg.Snapshot.Interval(),
			Immediate: true,
			Run: func(ctx context.Context) error {
				_, err := e.worker.Run(ctx)
				return err
			},
		})
		runner.Add(jobs.Job{
			Name:     "baselines",
			Interval: cfg.Baseline.Interval(),
			Run: func(ctx context.Context) error {
				_, err := e.calculator.Run(ctx)
				return err
			},
		})
		runner.Add(jobs.Job{
			Name:     "trends",
			Interval: cfg.Trends.Interval(),
			Run: func(ctx context.Context) error {
				return jobs.TrendCycle(ctx, e.store, func(ctx context.Context, bucket *model.Bucket) error {
					_, err := e.aggregator.Run(ctx, bucket)
					return err
				})
			},
		})

		switch cfg.Discovery.Mode {
		case "websub":
			sub := discovery.NewSubscriber(e.store,
				cfg.Discovery.WebSubHubURL,
				cfg.Discovery.WebSubCallbackURL,
				cfg.Discovery.WebSubLeaseSecs,
				zap.L(),
			)
			// Renew well inside the lease window.
			runner.Add(jobs.Job{
				Name:      "websub-renew",
				Interval:  time.Duration(cfg.Discovery.WebSubLeaseSecs) * time.Second / 2,
				Immediate: true,
				Run:       sub.SubscribeAll,
			})
		default:
			runner.Add(jobs.Job{
				Name:      "discovery",
				Interval:  cfg.Discovery.PollInterval(),
				Immediate: true,
				Run: func(ctx context.Context) error {
					_, err := e.poller.Poll(ctx)
					return err
				},
			})
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(e),
		}

		checker := monitoring.NewChecker(e.collector,
			monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return runner.Run(gctx) })
		g.Go(func() error {
			checker.Run(gctx)
			return nil
		})
		g.Go(func() error {
			zap.L().Info("http server listening", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down")
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})

		err = g.Wait()
		if err == context.Canceled {
			return nil
		}
		return err
	},
}

func newRouter(e *env) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	websub := discovery.NewWebSubHandler(e.store, e.ingestor, zap.L())
	r.Handle("/websub", websub)

	r.Get("/api/trends", func(w http.ResponseWriter, req *http.Request) {
		var bucketID *string
		if b := req.URL.Query().Get("bucket"); b != "" {
			bucketID = &b
		}
		trends, err := e.store.LatestTrends(req.Context(), bucketID, 20)
		if err != nil {
			http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"trends": trends})
	})

	r.Get("/api/metrics", func(w http.ResponseWriter, req *http.Request) {
		snap, err := e.collector.Collect(req.Context(), cfg.Monitoring.LookbackWindowHours)
		if err != nil {
			http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap)
	})

	r.Get("/api/channels", func(w http.ResponseWriter, req *http.Request) {
		channels, err := e.store.ListChannels(req.Context(), false)
		if err != nil {
			http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"channels": channels})
	})

	return r
}
