package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/creatrr/trendwatch/internal/jobs"
	"github.com/creatrr/trendwatch/internal/model"
)

var (
	onceSkipDiscovery bool
	onceSkipTrends    bool
)

func init() {
	onceCmd.Flags().BoolVar(&onceSkipDiscovery, "skip-discovery", false, "skip feed polling")
	onceCmd.Flags().BoolVar(&onceSkipTrends, "skip-trends", false, "skip trend aggregation")
	rootCmd.AddCommand(onceCmd)
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run one full pipeline cycle and exit",
	Long:  "Polls channel feeds, processes due measurements, recalculates baselines, and runs trend aggregation a single time. Useful under cron or for backfills.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.store.Migrate(ctx); err != nil {
			return err
		}

		if !onceSkipDiscovery {
			discovered, err := e.poller.Poll(ctx)
			if err != nil {
				return err
			}
			zap.L().Info("discovery done", zap.Int("new_videos", discovered))
		}

		stats, err := e.worker.Run(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("snapshots done",
			zap.Int("due", stats.Due),
			zap.Int("completed", stats.Completed),
			zap.Int("failed", stats.Failed),
			zap.Int("skipped", stats.Skipped),
		)

		updated, err := e.calculator.Run(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("baselines done", zap.Int("updated", updated))

		if !onceSkipTrends {
			err := jobs.TrendCycle(ctx, e.store, func(ctx context.Context, bucket *model.Bucket) error {
				topics, err := e.aggregator.Run(ctx, bucket)
				if err != nil {
					return err
				}
				name := "global"
				if bucket != nil {
					name = bucket.Name
				}
				zap.L().Info("trends done", zap.String("scope", name), zap.Int("trends", len(topics)))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	},
}
