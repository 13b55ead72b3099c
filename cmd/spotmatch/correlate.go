package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/spotmatch/internal/debug"
	"github.com/spotmatch/internal/match"
	"github.com/spotmatch/internal/report"
)

func newJSONEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc
}

func defaultLabel(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, time.Now().UTC().Format("20060102-150405"))
}

// createCorrelateCmd runs a full reconciliation and reports every section
func createCorrelateCmd(a *app) *cobra.Command {
	var runLabel string
	var noHistory bool

	cmd := &cobra.Command{
		Use:   "correlate [source.json...]",
		Short: "Correlate candidate sources with the canonical dataset",
		Long:  `Match every candidate to at most one canonical surf spot, compute consensus proposals and record the run in the history database`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runLabel == "" {
				runLabel = defaultLabel("correlate")
			}
			run, err := a.execute(cmd, runLabel, args, noHistory, report.NewReporter(cmd.OutOrStdout(), a.format, a.cfg.Analysis.DiscrepancyKm))
			if err != nil {
				return err
			}
			debug.Logger().Info().
				Str("run_id", run.ID).
				Int("correlations", run.Summary.Correlations).
				Int("new_discoveries", run.Summary.NewDiscoveries).
				Int("proposals", run.Summary.Proposals).
				Dur("elapsed", run.ProcessingTime).
				Msg("correlation complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&runLabel, "label", "", "Label for this run")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the run in the history database")
	return cmd
}

// createConsensusCmd reports the consensus evaluation of every entity
func createConsensusCmd(a *app) *cobra.Command {
	var runLabel string
	var noHistory bool
	var showSkipped bool

	cmd := &cobra.Command{
		Use:   "consensus [source.json...]",
		Short: "Propose corrected coordinates where sources agree",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runLabel == "" {
				runLabel = defaultLabel("consensus")
			}
			run, err := a.execute(cmd, runLabel, args, noHistory)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch a.format {
			case report.FormatJSON:
				if showSkipped {
					return a.encodeJSON(out, run.Outcomes)
				}
				return a.encodeJSON(out, run.Proposals)
			case report.FormatGeoJSON:
				return a.encodeJSON(out, report.FeatureCollection(nil, nil, run.Proposals))
			}

			tables := []report.Table{report.ProposalTable(run.Proposals)}
			if showSkipped {
				tables = append(tables, outcomeTable(run.Outcomes))
			}
			if err := a.renderTables(out, tables...); err != nil {
				return err
			}
			fmt.Fprintf(out, "Run %s: %d proposals, %d for review. Apply with: spotmatch apply --run %s\n",
				run.ID, run.Summary.Proposals, run.Summary.ProposalsForReview, run.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&runLabel, "label", "", "Label for this run")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the run in the history database")
	cmd.Flags().BoolVar(&showSkipped, "all", false, "Also list entities that received no proposal and why")
	return cmd
}

// execute runs the engine through its ports, recording the run unless noHistory.
func (a *app) execute(cmd *cobra.Command, label string, args []string, noHistory bool, sinks ...match.ReportSink) (*match.Run, error) {
	ctx := cmd.Context()

	engine, overrides, err := a.engine()
	if err != nil {
		return nil, err
	}
	loader, err := a.loader(args)
	if err != nil {
		return nil, err
	}

	if !noHistory && a.historyEnabled() {
		conn, tracker, err := a.openHistory(ctx)
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		sinks = append([]match.ReportSink{tracker}, sinks...)
	}

	run, err := engine.Execute(ctx, label, a.store(), loader, sinks...)
	if err != nil {
		return nil, err
	}
	warnMissingOverrides(overrides, run.Entities)
	return run, nil
}

func outcomeTable(outcomes []match.ConsensusOutcome) report.Table {
	t := report.Table{
		Title:   fmt.Sprintf("Consensus evaluation (%d)", len(outcomes)),
		Headers: []string{"ID", "Name", "Evidence", "Used", "Fallback", "Variance m", "Moved m", "Result"},
		Aligns:  []report.Align{report.AlignLeft, report.AlignLeft, report.AlignRight, report.AlignRight, report.AlignLeft, report.AlignRight, report.AlignRight},
	}
	for _, o := range outcomes {
		result := string(o.SkipReason)
		if o.Proposal != nil {
			result = string(o.Proposal.Accuracy)
		}
		fallback := ""
		if o.UsedFallback {
			fallback = "yes"
		}
		t.Rows = append(t.Rows, []string{
			o.EntityID, o.EntityName, strconv.Itoa(o.EvidenceCount), strconv.Itoa(o.Contributors), fallback,
			fmt.Sprintf("%.1f", o.VarianceMeters), fmt.Sprintf("%.1f", o.ImprovementMeters), result,
		})
	}
	return t
}
