package main

import (
	"github.com/spf13/cobra"

	"github.com/spotmatch/internal/match"
	"github.com/spotmatch/internal/report"
)

// createAnalyzeUnmatchedCmd lists nearby and similarly named candidates for
// every canonical entity no source matched
func createAnalyzeUnmatchedCmd(a *app) *cobra.Command {
	var radiusKm float64

	cmd := &cobra.Command{
		Use:   "analyze-unmatched [source.json...]",
		Short: "Suggest candidates for canonical spots that no source matched",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, candidates, err := a.reconcile(cmd, "analyze-unmatched", args)
			if err != nil {
				return err
			}

			opts := a.cfg.Analysis.Unmatched
			if radiusKm > 0 {
				opts.RadiusKm = radiusKm
			}
			analyses := match.AnalyzeUnmatched(run.Resolution.UnmatchedEntities, candidates, &opts)

			out := cmd.OutOrStdout()
			if a.format == report.FormatJSON || a.format == report.FormatGeoJSON {
				return a.encodeJSON(out, analyses)
			}
			return a.renderTables(out, report.AnalysisTables(analyses, opts.StrongDistanceKm)...)
		},
	}

	cmd.Flags().Float64Var(&radiusKm, "radius", 0, "Search radius in km (default from config)")
	return cmd
}

// createDiscrepanciesCmd lists correlations far from the stored coordinates
func createDiscrepanciesCmd(a *app) *cobra.Command {
	var thresholdKm float64

	cmd := &cobra.Command{
		Use:   "discrepancies [source.json...]",
		Short: "List correlations far from the stored coordinates",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, _, err := a.reconcile(cmd, "discrepancies", args)
			if err != nil {
				return err
			}

			if thresholdKm <= 0 {
				thresholdKm = a.cfg.Analysis.DiscrepancyKm
			}
			found := match.MajorDiscrepancies(run.Resolution.Correlations, thresholdKm)

			out := cmd.OutOrStdout()
			switch a.format {
			case report.FormatJSON:
				return a.encodeJSON(out, found)
			case report.FormatGeoJSON:
				correlations := make([]match.CorrelationRecord, 0, len(found))
				for _, d := range found {
					correlations = append(correlations, d.Correlation)
				}
				return a.encodeJSON(out, report.FeatureCollection(correlations, nil, nil))
			}
			return a.renderTables(out, report.DiscrepancyTable(found, thresholdKm))
		},
	}

	cmd.Flags().Float64Var(&thresholdKm, "threshold", 0, "Distance threshold in km (default from config)")
	return cmd
}

// reconcile runs the engine in memory without recording history.
func (a *app) reconcile(cmd *cobra.Command, label string, args []string) (*match.Run, []match.CandidateRecord, error) {
	engine, overrides, err := a.engine()
	if err != nil {
		return nil, nil, err
	}
	entities, candidates, diags, err := a.loadInputs(cmd.Context(), args, overrides)
	if err != nil {
		return nil, nil, err
	}

	run := engine.Reconcile(label, entities, candidates)
	if len(diags) > 0 {
		run.Resolution.Diagnostics = append(diags, run.Resolution.Diagnostics...)
		run.Summary.DiagnosticsRecorded = len(run.Resolution.Diagnostics)
	}
	return run, candidates, nil
}
