package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/creatrr/trendwatch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "trendwatch",
	Short: "Competitor channel tracking and trend detection",
	Long:  "Tracks competitor YouTube channels, snapshots video stats at fixed windows after publish, maintains per-channel baselines, and detects cross-channel trending topics.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
