package report

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotmatch/internal/geo"
	"github.com/spotmatch/internal/match"
)

func sampleRun() *match.Run {
	entities := []match.CanonicalEntity{
		{ID: "majanicho", PrimaryName: "Majanicho", Position: geo.Position{Lat: 28.7300, Lng: -13.9400}},
		{ID: "el-pozo", PrimaryName: "El Pozo", Position: geo.Position{Lat: 28.0657, Lng: -14.5071}},
		{ID: "lobos", PrimaryName: "Lobos", Position: geo.Position{Lat: 28.7530, Lng: -13.8250}},
	}
	candidates := []match.CandidateRecord{
		{Name: "Majanicho", Position: geo.Position{Lat: 28.7305, Lng: -13.9403}, SourceID: "S1"},
		{Name: "Pozo", Position: geo.Position{Lat: 28.0657 + 7/111.19492664455873, Lng: -14.5071}, SourceID: "S2"},
		{Name: "Secret Reef", Position: geo.Position{Lat: 28.4, Lng: -14.2}, SourceID: "S3", URL: "https://example.org/secret"},
	}
	return match.NewEngine(match.EngineConfig{}).Reconcile("report", entities, candidates)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", FormatTable},
		{"TABLE", FormatTable},
		{"md", FormatMarkdown},
		{"markdown", FormatMarkdown},
		{" csv ", FormatCSV},
		{"json", FormatJSON},
		{"GeoJSON", FormatGeoJSON},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestRenderFormats(t *testing.T) {
	tbl := Table{
		Title:   "Spots",
		Headers: []string{"Name", "Distance km"},
		Aligns:  []Align{AlignLeft, AlignRight},
		Rows:    [][]string{{"Majanicho", "0.06"}, {"Pozo"}},
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatTable, tbl))
	assert.True(t, strings.HasPrefix(buf.String(), "Spots\n"))
	assert.Contains(t, buf.String(), "Majanicho")

	buf.Reset()
	require.NoError(t, Render(&buf, FormatMarkdown, tbl))
	assert.True(t, strings.HasPrefix(buf.String(), "## Spots\n\n"))
	assert.Contains(t, buf.String(), "| Majanicho |")

	buf.Reset()
	require.NoError(t, Render(&buf, FormatCSV, tbl))
	assert.Contains(t, buf.String(), "# Spots\n")
	assert.Contains(t, buf.String(), "Majanicho,0.06")

	buf.Reset()
	require.NoError(t, Render(&buf, FormatTable, Table{}))
	assert.Empty(t, buf.String())
}

func TestReporterTable(t *testing.T) {
	run := sampleRun()
	var buf bytes.Buffer

	require.NoError(t, NewReporter(&buf, FormatTable, 5).Write(context.Background(), run))
	out := buf.String()

	assert.Contains(t, out, "Run "+run.ID)
	assert.Contains(t, out, "HIGH confidence (1)")
	assert.Contains(t, out, "New discoveries (1)")
	assert.Contains(t, out, "Secret Reef")
	assert.Contains(t, out, "Unmatched canonical entities (1)")
	assert.Contains(t, out, "Discrepancies over 5.0 km (1)")
	assert.NotContains(t, out, "Diagnostics (")
}

func TestReporterJSON(t *testing.T) {
	run := sampleRun()
	var buf bytes.Buffer

	require.NoError(t, NewReporter(&buf, FormatJSON, 0).Write(context.Background(), run))

	var decoded match.Run
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, run.ID, decoded.ID)
	assert.Equal(t, run.Summary, decoded.Summary)
}

func TestReporterGeoJSON(t *testing.T) {
	run := sampleRun()
	var buf bytes.Buffer

	require.NoError(t, NewReporter(&buf, FormatGeoJSON, 0).Write(context.Background(), run))

	fc, err := geojson.UnmarshalFeatureCollection(buf.Bytes())
	require.NoError(t, err)

	kinds := map[string]int{}
	for _, f := range fc.Features {
		kinds[f.Properties.MustString("kind")]++
	}
	assert.Equal(t, len(run.Resolution.Correlations), kinds[KindCorrelation])
	assert.Equal(t, 1, kinds[KindNewDiscovery])
	assert.Equal(t, len(run.Proposals), kinds[KindProposal])
}

func TestFeatureCollectionGeometry(t *testing.T) {
	proposal := match.ConsensusProposal{
		EntityID: "majanicho",
		Current:  geo.Position{Lat: 28.73, Lng: -13.94},
		Proposed: geo.Position{Lat: 28.7305, Lng: -13.9403},
		Accuracy: match.AccuracyVerified,
	}
	discovery := match.CandidateRecord{Name: "Secret Reef", Position: geo.Position{Lat: 28.4, Lng: -14.2}}

	fc := FeatureCollection(nil, []match.CandidateRecord{discovery}, []match.ConsensusProposal{proposal})
	require.Len(t, fc.Features, 2)

	assert.Equal(t, orb.Point{-14.2, 28.4}, fc.Features[0].Geometry)
	assert.Equal(t, orb.LineString{{-13.94, 28.73}, {-13.9403, 28.7305}}, fc.Features[1].Geometry)
	assert.Equal(t, "verified", fc.Features[1].Properties["accuracy"])
}

func TestReporterCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewReporter(&bytes.Buffer{}, FormatTable, 0).Write(ctx, sampleRun()), context.Canceled)
}

func TestAnalysisTables(t *testing.T) {
	analyses := []match.UnmatchedAnalysis{{
		Entity:      match.CanonicalEntity{ID: "lobos", PrimaryName: "Lobos"},
		NearbyCount: 1,
		StrongCount: 1,
		Hints: []match.UnmatchedHint{
			{Candidate: match.CandidateRecord{Name: "Isla de Lobos", SourceID: "S1"}, DistanceKm: 0.8, NameVariation: true, Similarity: 0.71},
		},
	}}

	tables := AnalysisTables(analyses, 2)
	require.Len(t, tables, 1)
	assert.Contains(t, tables[0].Title, `best "Isla de Lobos" at 0.80 km`)
	assert.Equal(t, []string{"Isla de Lobos", "S1", "0.80", "yes", "", "0.71"}, tables[0].Rows[0])
}
