package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	bucketsCmd.AddCommand(bucketsCreateCmd, bucketsAddCmd, bucketsListCmd)
	rootCmd.AddCommand(bucketsCmd)
}

var bucketsCmd = &cobra.Command{
	Use:   "buckets",
	Short: "Manage channel buckets for scoped trend detection",
}

var bucketsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a bucket",
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

		b, err := s.CreateBucket(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("created bucket %s (%s)\n", b.Name, b.ID)
		return nil
	},
}

var bucketsAddCmd = &cobra.Command{
	Use:   "add <bucket-id> <channel-id> [...]",
	Short: "Add channels to a bucket",
	Args:  cobra.MinimumNArgs(2),
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

		bucketID := args[0]
		for _, channelID := range args[1:] {
			if err := s.AddChannelToBucket(ctx, bucketID, channelID); err != nil {
				return fmt.Errorf("add %s: %w", channelID, err)
			}
		}
		fmt.Printf("added %d channel(s) to %s\n", len(args)-1, bucketID)
		return nil
	},
}

var bucketsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List buckets and their channels",
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

		buckets, err := s.ListBuckets(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCHANNELS")
		for _, b := range buckets {
			fmt.Fprintf(w, "%s\t%s\t%s\n", b.ID, b.Name, strings.Join(b.ChannelIDs, ","))
		}
		return w.Flush()
	},
}
