package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// createPingCmd checks that the dataset and the history database are reachable
func createPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test dataset and history database access",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			entities, err := a.store().LoadEntities(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Dataset %s: %d canonical spots\n", a.cfg.Store.Dataset, len(entities))

			conn, tracker, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			runs, err := tracker.ListRuns(ctx, 0)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "History (%s): %d recorded runs\n", conn.Driver, len(runs))
			return nil
		},
	}
}
