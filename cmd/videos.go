package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	videosDays    int
	videosChannel string
)

func init() {
	videosCmd.Flags().IntVar(&videosDays, "days", 14, "show videos published in the last N days")
	videosCmd.Flags().StringVar(&videosChannel, "channel", "", "filter by channel ID")
	rootCmd.AddCommand(videosCmd)
}

var videosCmd = &cobra.Command{
	Use:   "videos",
	Short: "List recently tracked videos and their snapshot coverage",
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

		var channelIDs []string
		if videosChannel != "" {
			channelIDs = []string{videosChannel}
		}
		since := time.Now().UTC().AddDate(0, 0, -videosDays)
		videos, err := s.RecentVideos(ctx, since, channelIDs)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VIDEO\tCHANNEL\tTITLE\tSHORT\tSTATUS\tCOVERAGE\tPUBLISHED")
		for _, v := range videos {
			coverage, err := s.SnapshotCoverage(ctx, v.ID)
			if err != nil {
				return err
			}
			title := v.Title
			if len(title) > 40 {
				title = title[:37] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%d/8\t%s\n",
				v.ID, v.ChannelID, title, v.IsShort, v.TrackingStatus,
				coverage, v.PublishedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}
