package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/spotmatch/internal/audit"
	"github.com/spotmatch/internal/match"
	"github.com/spotmatch/internal/report"
)

// createRunsCmd browses the run history
func createRunsCmd(a *app) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse recorded reconciliation runs",
	}

	runsCmd.AddCommand(createRunsListCmd(a))
	runsCmd.AddCommand(createRunsShowCmd(a))

	return runsCmd
}

func createRunsListCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, tracker, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			runs, err := tracker.ListRuns(ctx, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.format == report.FormatJSON || a.format == report.FormatGeoJSON {
				return a.encodeJSON(out, runs)
			}
			return a.renderTables(out, runTable(runs))
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list (0 for all)")
	return cmd
}

func createRunsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [run-id|latest]",
		Short: "Show a recorded run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, tracker, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			runID := "latest"
			if len(args) == 1 {
				runID = args[0]
			}
			if runID == "latest" {
				if runID, err = tracker.LatestRun(ctx); err != nil {
					return err
				}
			}

			record, err := tracker.GetRun(ctx, runID)
			if err != nil {
				return err
			}
			reporter := report.NewReporter(cmd.OutOrStdout(), a.format, a.cfg.Analysis.DiscrepancyKm)
			return reporter.Write(ctx, recordToRun(record))
		},
	}
}

// recordToRun rebuilds the parts of a run that reports need.
func recordToRun(r *audit.RunRecord) *match.Run {
	return &match.Run{
		ID:             r.ID,
		Label:          r.Label,
		StartedAt:      r.StartedAt,
		ProcessingTime: r.ProcessingTime,
		Resolution: match.Resolution{
			Correlations:        r.Correlations,
			UnmatchedCandidates: r.UnmatchedCandidates,
			UnmatchedEntities:   r.UnmatchedEntities,
			Diagnostics:         r.Diagnostics,
		},
		Proposals: r.ConsensusProposals(),
		Summary:   r.Summary,
	}
}

func runTable(runs []audit.RunInfo) report.Table {
	t := report.Table{
		Title:   fmt.Sprintf("Runs (%d)", len(runs)),
		Headers: []string{"ID", "Label", "Started", "Correlations", "HIGH", "New", "Proposals", "Elapsed"},
		Aligns: []report.Align{report.AlignLeft, report.AlignLeft, report.AlignLeft,
			report.AlignRight, report.AlignRight, report.AlignRight, report.AlignRight, report.AlignRight},
	}
	for _, r := range runs {
		t.Rows = append(t.Rows, []string{
			r.ID, r.Label, r.StartedAt.Format("2006-01-02 15:04:05"),
			strconv.Itoa(r.Summary.Correlations), strconv.Itoa(r.Summary.High),
			strconv.Itoa(r.Summary.NewDiscoveries), strconv.Itoa(r.Summary.Proposals),
			r.ProcessingTime.String(),
		})
	}
	return t
}
