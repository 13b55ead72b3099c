// Package report renders reconciliation runs for people and for GIS tools.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spotmatch/internal/match"
)

// Reporter writes a finished run to w. It satisfies match.ReportSink.
type Reporter struct {
	w             io.Writer
	format        Format
	discrepancyKm float64
}

// NewReporter creates a reporter. A discrepancyKm of zero or less leaves the
// discrepancy section out.
func NewReporter(w io.Writer, format Format, discrepancyKm float64) *Reporter {
	if format == "" {
		format = FormatTable
	}
	return &Reporter{w: w, format: format, discrepancyKm: discrepancyKm}
}

// Write renders the run.
func (r *Reporter) Write(ctx context.Context, run *match.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch r.format {
	case FormatJSON:
		return encodeJSON(r.w, run)
	case FormatGeoJSON:
		return encodeJSON(r.w, RunFeatures(run))
	}

	tables := []Table{SummaryTable(run)}
	tables = append(tables, CorrelationTables(run.Resolution.Correlations)...)
	tables = append(tables,
		DiscoveryTable(run.Resolution.UnmatchedCandidates),
		UnmatchedEntityTable(run.Resolution.UnmatchedEntities),
		ProposalTable(run.Proposals),
	)
	if r.discrepancyKm > 0 {
		tables = append(tables, DiscrepancyTable(match.MajorDiscrepancies(run.Resolution.Correlations, r.discrepancyKm), r.discrepancyKm))
	}
	if len(run.Resolution.Diagnostics) > 0 {
		tables = append(tables, DiagnosticTable(run.Resolution.Diagnostics))
	}

	for _, t := range tables {
		if err := Render(r.w, r.format, t); err != nil {
			return fmt.Errorf("failed to render %s: %w", t.Title, err)
		}
	}
	return nil
}

func encodeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// SummaryTable lists the headline counts.
func SummaryTable(run *match.Run) Table {
	s := run.Summary
	return Table{
		Title:   fmt.Sprintf("Run %s", run.ID),
		Headers: []string{"Metric", "Value"},
		Aligns:  []Align{AlignLeft, AlignRight},
		Rows: [][]string{
			{"Candidates", strconv.Itoa(s.Candidates)},
			{"Canonical entities", strconv.Itoa(s.Entities)},
			{"Correlations", strconv.Itoa(s.Correlations)},
			{"HIGH", strconv.Itoa(s.High)},
			{"MEDIUM", strconv.Itoa(s.Medium)},
			{"LOW", strconv.Itoa(s.Low)},
			{"New discoveries", strconv.Itoa(s.NewDiscoveries)},
			{"Unmatched entities", strconv.Itoa(s.UnmatchedEntities)},
			{"Proposals", strconv.Itoa(s.Proposals)},
			{"Proposals for review", strconv.Itoa(s.ProposalsForReview)},
			{"Diagnostics", strconv.Itoa(s.DiagnosticsRecorded)},
			{"Processing time", run.ProcessingTime.String()},
		},
	}
}

// CorrelationTables returns one table per confidence tier, HIGH first, each
// sorted by distance.
func CorrelationTables(correlations []match.CorrelationRecord) []Table {
	tiers := []match.ConfidenceTier{match.ConfidenceHigh, match.ConfidenceMedium, match.ConfidenceLow}
	tables := make([]Table, 0, len(tiers))
	for _, tier := range tiers {
		var rows []match.CorrelationRecord
		for _, c := range correlations {
			if c.Confidence == tier {
				rows = append(rows, c)
			}
		}
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].DistanceKm < rows[j].DistanceKm })

		t := Table{
			Title:   fmt.Sprintf("%s confidence (%d)", tier, len(rows)),
			Headers: []string{"Candidate", "Source", "Matched", "Distance km", "Score", "Method", "Reason"},
			Aligns:  []Align{AlignLeft, AlignLeft, AlignLeft, AlignRight, AlignRight},
		}
		for _, c := range rows {
			t.Rows = append(t.Rows, []string{
				c.CandidateName, c.SourceID, c.MatchedName,
				km(c.DistanceKm), fmt.Sprintf("%.1f", c.Score), string(c.Method), c.Reason,
			})
		}
		tables = append(tables, t)
	}
	return tables
}

// DiscoveryTable lists candidates that matched no canonical entity.
func DiscoveryTable(candidates []match.CandidateRecord) Table {
	t := Table{
		Title:   fmt.Sprintf("New discoveries (%d)", len(candidates)),
		Headers: []string{"Name", "Source", "Lat", "Lng", "URL"},
		Aligns:  []Align{AlignLeft, AlignLeft, AlignRight, AlignRight},
	}
	for _, c := range candidates {
		t.Rows = append(t.Rows, []string{c.Name, c.SourceID, coord(c.Position.Lat), coord(c.Position.Lng), c.URL})
	}
	return t
}

// UnmatchedEntityTable lists canonical entities that no candidate claimed.
func UnmatchedEntityTable(entities []match.CanonicalEntity) Table {
	t := Table{
		Title:   fmt.Sprintf("Unmatched canonical entities (%d)", len(entities)),
		Headers: []string{"ID", "Name", "Area", "Lat", "Lng"},
		Aligns:  []Align{AlignLeft, AlignLeft, AlignLeft, AlignRight, AlignRight},
	}
	for _, e := range entities {
		t.Rows = append(t.Rows, []string{e.ID, e.PrimaryName, e.Area, coord(e.Position.Lat), coord(e.Position.Lng)})
	}
	return t
}

// ProposalTable lists consensus proposals.
func ProposalTable(proposals []match.ConsensusProposal) Table {
	t := Table{
		Title:   fmt.Sprintf("Consensus proposals (%d)", len(proposals)),
		Headers: []string{"ID", "Name", "Current", "Proposed", "Variance m", "Moved m", "Matches", "Accuracy"},
		Aligns:  []Align{AlignLeft, AlignLeft, AlignLeft, AlignLeft, AlignRight, AlignRight, AlignRight},
	}
	for _, p := range proposals {
		t.Rows = append(t.Rows, []string{
			p.EntityID, p.EntityName, p.Current.String(), p.Proposed.String(),
			fmt.Sprintf("%.1f", p.VarianceMeters), fmt.Sprintf("%.1f", p.ImprovementMeters),
			strconv.Itoa(p.SupportingMatchCount), string(p.Accuracy),
		})
	}
	return t
}

// DiscrepancyTable lists correlations far from the stored position.
func DiscrepancyTable(discrepancies []match.Discrepancy, thresholdKm float64) Table {
	t := Table{
		Title:   fmt.Sprintf("Discrepancies over %.1f km (%d)", thresholdKm, len(discrepancies)),
		Headers: []string{"Entity", "Candidate", "Source", "Distance km", "Confidence", "Stored", "Reported"},
		Aligns:  []Align{AlignLeft, AlignLeft, AlignLeft, AlignRight},
	}
	for _, d := range discrepancies {
		c := d.Correlation
		t.Rows = append(t.Rows, []string{
			c.MatchedName, c.CandidateName, c.SourceID, km(d.DistanceKm), string(c.Confidence),
			c.EntityPosition.String(), c.CandidatePosition.String(),
		})
	}
	return t
}

// DiagnosticTable lists skipped records.
func DiagnosticTable(diags []match.Diagnostic) Table {
	t := Table{
		Title:   fmt.Sprintf("Diagnostics (%d)", len(diags)),
		Headers: []string{"Kind", "Source", "Index", "Name", "Reason"},
		Aligns:  []Align{AlignLeft, AlignLeft, AlignRight},
	}
	for _, d := range diags {
		t.Rows = append(t.Rows, []string{string(d.Kind), d.SourceID, strconv.Itoa(d.Index), d.Name, d.Reason})
	}
	return t
}

// AnalysisTables renders unmatched-entity analysis, one table per entity.
func AnalysisTables(analyses []match.UnmatchedAnalysis, strongDistanceKm float64) []Table {
	tables := make([]Table, 0, len(analyses))
	for _, a := range analyses {
		title := fmt.Sprintf("%s (%s): %d nearby, %d name matches, %d strong",
			a.Entity.PrimaryName, a.Entity.ID, a.NearbyCount, a.NameMatchCount, a.StrongCount)
		if best, ok := a.Best(strongDistanceKm); ok {
			title += fmt.Sprintf("; best %q at %s km", best.Candidate.Name, km(best.DistanceKm))
		}
		t := Table{
			Title:   title,
			Headers: []string{"Candidate", "Source", "Distance km", "Name variation", "Sounds alike", "Similarity"},
			Aligns:  []Align{AlignLeft, AlignLeft, AlignRight, AlignLeft, AlignLeft, AlignRight},
		}
		for _, h := range a.Hints {
			t.Rows = append(t.Rows, []string{
				h.Candidate.Name, h.Candidate.SourceID, km(h.DistanceKm), yes(h.NameVariation), yes(h.SoundsAlike), fmt.Sprintf("%.2f", h.Similarity),
			})
		}
		tables = append(tables, t)
	}
	return tables
}

func yes(b bool) string {
	if b {
		return "yes"
	}
	return ""
}

func km(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
