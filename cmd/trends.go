package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	trendsBucket string
	trendsLimit  int
	trendsJSON   bool
)

func init() {
	trendsCmd.Flags().StringVar(&trendsBucket, "bucket", "", "bucket ID (default: global trends)")
	trendsCmd.Flags().IntVar(&trendsLimit, "limit", 20, "max trends to show")
	trendsCmd.Flags().BoolVar(&trendsJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(trendsCmd)
}

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show the latest detected trends",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.Migrate(ctx); err != nil {
			return err
		}

		var bucketID *string
		if trendsBucket != "" {
			bucketID = &trendsBucket
		}
		topics, err := s.LatestTrends(ctx, bucketID, trendsLimit)
		if err != nil {
			return err
		}

		if trendsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(topics)
		}

		if len(topics) == 0 {
			fmt.Println("no trends detected yet")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TREND\tCHANNELS\tVIDEOS\tAVG PERF\tDETECTED")
		for _, t := range topics {
			perf := "n/a"
			if t.AvgPerformance != nil {
				perf = fmt.Sprintf("%.2fx", *t.AvgPerformance)
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
				t.ClusterName, t.ChannelCount, t.VideoCount, perf,
				t.DetectedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}
