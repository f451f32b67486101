package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var logLimit int

var accessLogCmd = &cobra.Command{
	Use:   "access-log",
	Short: "Show the most recent access log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		events, err := store.AccessLog(ctx, logLimit)
		if err != nil {
			return fmt.Errorf("failed to read access log: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tUSER ID\tACTION\tDESCRIPTION")
		for _, ev := range events {
			uid := "-"
			if ev.UserID != nil {
				uid = fmt.Sprint(*ev.UserID)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ev.At.Local().Format(time.DateTime), uid, ev.Action, ev.Description)
		}
		return w.Flush()
	},
}

func init() {
	accessLogCmd.Flags().IntVar(&logLimit, "limit", 20, "Number of entries to show")
}
