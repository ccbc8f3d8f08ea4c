package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/creatrr/trendwatch/internal/model"
)

func init() {
	rootCmd.AddCommand(seedCmd)
}

var seedCmd = &cobra.Command{
	Use:   "seed <baselines.yaml>",
	Short: "Seed manual baselines from a YAML file",
	Long: `Seeds operator-provided baseline medians for channels that do not yet
have enough snapshot history. Manual baselines are placeholders: the
calculator overwrites them as soon as real data supports a calculated
baseline, and seeding never touches an existing calculated row.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		baselines, err := parseSeedFile(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.Migrate(ctx); err != nil {
			return err
		}

		seeded, err := s.SeedManualBaselines(ctx, baselines)
		if err != nil {
			return err
		}
		zap.L().Info("manual baselines seeded",
			zap.Int("requested", len(baselines)),
			zap.Int64("seeded", seeded),
		)
		fmt.Printf("seeded %d of %d baselines (existing calculated rows kept)\n",
			seeded, len(baselines))
		return nil
	},
}

type seedFile struct {
	Baselines []seedEntry `yaml:"baselines"`
}

type seedEntry struct {
	ChannelID      string `yaml:"channel_id"`
	IsShort        bool   `yaml:"is_short"`
	Window         string `yaml:"window"`
	MedianViews    int64  `yaml:"median_views"`
	MedianLikes    int64  `yaml:"median_likes"`
	MedianComments int64  `yaml:"median_comments"`
}

func parseSeedFile(raw []byte) ([]model.ChannelBaseline, error) {
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	if len(f.Baselines) == 0 {
		return nil, fmt.Errorf("no baselines in file")
	}

	out := make([]model.ChannelBaseline, 0, len(f.Baselines))
	for i, e := range f.Baselines {
		if e.ChannelID == "" {
			return nil, fmt.Errorf("baseline %d: channel_id is required", i)
		}
		w := model.Window(e.Window)
		if !w.Valid() {
			return nil, fmt.Errorf("baseline %d: unknown window %q", i, e.Window)
		}
		if e.MedianViews < 0 || e.MedianLikes < 0 || e.MedianComments < 0 {
			return nil, fmt.Errorf("baseline %d: negative median", i)
		}
		out = append(out, model.ChannelBaseline{
			ChannelID:      e.ChannelID,
			IsShort:        e.IsShort,
			Window:         w,
			MedianViews:    e.MedianViews,
			MedianLikes:    e.MedianLikes,
			MedianComments: e.MedianComments,
			Source:         model.BaselineManual,
		})
	}
	return out, nil
}
