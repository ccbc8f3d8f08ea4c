package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/creatrr/trendwatch/internal/model"
)

var channelsActiveOnly bool

func init() {
	channelsListCmd.Flags().BoolVar(&channelsActiveOnly, "active", false, "only active channels")
	channelsCmd.AddCommand(channelsAddCmd, channelsListCmd, channelsRemoveCmd)
	rootCmd.AddCommand(channelsCmd)
}

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Manage tracked channels",
}

var channelsAddCmd = &cobra.Command{
	Use:   "add <channel-id|@handle|url> [...]",
	Short: "Start tracking one or more channels",
	Args:  cobra.MinimumNArgs(1),
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

		for _, ref := range args {
			id, err := e.yt.ResolveChannel(ctx, ref)
			if err != nil {
				return fmt.Errorf("resolve %q: %w", ref, err)
			}
			info, err := e.yt.ChannelInfo(ctx, id)
			if err != nil {
				return fmt.Errorf("lookup %s: %w", id, err)
			}
			ch := model.Channel{
				ID:              info.ID,
				Name:            info.Title,
				SubscriberCount: info.SubscriberCount,
				TotalVideos:     info.VideoCount,
				IsActive:        true,
			}
			if err := e.store.UpsertChannel(ctx, ch); err != nil {
				return err
			}
			zap.L().Info("channel tracked",
				zap.String("channel_id", ch.ID),
				zap.String("name", ch.Name),
				zap.Int64("subscribers", ch.SubscriberCount),
			)
			fmt.Printf("tracking %s (%s)\n", ch.Name, ch.ID)
		}
		return nil
	},
}

var channelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked channels",
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

		channels, err := s.ListChannels(ctx, channelsActiveOnly)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CHANNEL\tNAME\tSUBS\tACTIVE\tLAST CHECKED")
		for _, ch := range channels {
			checked := "never"
			if ch.LastCheckedAt != nil {
				checked = ch.LastCheckedAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\n",
				ch.ID, ch.Name, ch.SubscriberCount, ch.IsActive, checked)
		}
		return w.Flush()
	},
}

var channelsRemoveCmd = &cobra.Command{
	Use:   "remove <channel-id>",
	Short: "Stop tracking a channel (history is kept)",
	Args:  cobra.ExactArgs(1),
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

		if err := s.SetChannelActive(ctx, args[0], false); err != nil {
			return err
		}
		fmt.Printf("deactivated %s\n", args[0])
		return nil
	},
}
