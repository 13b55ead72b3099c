package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spotmatch/internal/debug"
	"github.com/spotmatch/internal/geo"
	"github.com/spotmatch/internal/match"
	"github.com/spotmatch/internal/report"
)

// staleToleranceMeters is how far a stored position may drift from a
// proposal's recorded starting point before the proposal is considered stale.
const staleToleranceMeters = 1.0

// createApplyCmd writes the proposals of a recorded run into the dataset
func createApplyCmd(a *app) *cobra.Command {
	var runID string
	var includeReview bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Write consensus proposals from a recorded run into the dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			conn, tracker, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			if runID == "" || runID == "latest" {
				if runID, err = tracker.LatestRun(ctx); err != nil {
					return err
				}
			}

			stored, err := tracker.Proposals(ctx, runID)
			if err != nil {
				return err
			}

			ds := a.store().AllowReview(includeReview || a.cfg.Analysis.ApplyRequiresReview)
			entities, err := ds.LoadEntities(ctx)
			if err != nil {
				return err
			}
			current := make(map[string]geo.Position, len(entities))
			for _, e := range entities {
				current[e.ID] = e.Position
			}

			var eligible []match.ConsensusProposal
			var skippedReview, skippedApplied, skippedStale int
			for _, p := range stored {
				switch {
				case p.AppliedAt != nil:
					skippedApplied++
				case p.RequiresReview && !includeReview && !a.cfg.Analysis.ApplyRequiresReview:
					skippedReview++
				case isStale(current, p.ConsensusProposal):
					debug.Logger().Warn().Str("entity_id", p.EntityID).Msg("dataset changed since the run; skipping proposal")
					skippedStale++
				default:
					eligible = append(eligible, p.ConsensusProposal)
				}
			}

			out := cmd.OutOrStdout()
			if dryRun {
				if err := a.renderTables(out, report.ProposalTable(eligible)); err != nil {
					return err
				}
				fmt.Fprintf(out, "Dry run: %d proposals would be applied (%d need review, %d already applied, %d stale)\n",
					len(eligible), skippedReview, skippedApplied, skippedStale)
				return nil
			}

			applied, err := ds.ApplyProposals(ctx, eligible)
			if err != nil {
				return err
			}

			ids := make([]string, 0, len(eligible))
			for _, p := range eligible {
				ids = append(ids, p.EntityID)
			}
			if _, err := tracker.MarkApplied(ctx, runID, ids, time.Now()); err != nil {
				return err
			}

			fmt.Fprintf(out, "Applied %d proposals from run %s to %s (%d need review, %d already applied, %d stale)\n",
				applied, runID, ds.Path(), skippedReview, skippedApplied, skippedStale)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "latest", "Run ID whose proposals to apply")
	cmd.Flags().BoolVar(&includeReview, "include-review", false, "Also apply proposals flagged requires_review")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be applied without writing")
	return cmd
}

// isStale reports whether the entity moved, or vanished, since the proposal was made.
func isStale(current map[string]geo.Position, p match.ConsensusProposal) bool {
	pos, ok := current[p.EntityID]
	if !ok {
		return true
	}
	return geo.HaversineMeters(pos, p.Current) > staleToleranceMeters
}
