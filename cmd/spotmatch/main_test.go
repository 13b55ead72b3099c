package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotmatch/internal/audit"
	"github.com/spotmatch/internal/config"
	"github.com/spotmatch/internal/match"
)

const testDataset = `{
  "spots": [
    {"id": "majanicho", "primaryName": "Majanicho",
     "location": {"area": "North", "coordinates": {"lat": 28.73, "lng": -13.94, "accuracy": "unverified"}}},
    {"id": "el-pozo", "primaryName": "El Pozo",
     "location": {"area": "South", "coordinates": {"lat": 28.0657, "lng": -14.5071}}},
    {"id": "lobos", "primaryName": "Lobos",
     "location": {"area": "Islands", "coordinates": {"lat": 28.753, "lng": -13.825}}}
  ]
}`

const testSourceOne = `{
  "source_info": {"site": "surf-forecast"},
  "surf_spots": [
    {"name": "Majanicho", "gps": {"latitude": 28.7305, "longitude": -13.9403}},
    {"name": "Pozo", "gps": {"latitude": 28.128653, "longitude": -14.5071}},
    {"name": "Nowhere", "gps": {"latitude": "n/a", "longitude": 0}}
  ]
}`

const testSourceTwo = `{
  "source_info": {"website_name": "wannasurf"},
  "surf_spots": [
    {"name": "Majanicho", "gps": {"latitude": "28.7304", "longitude": "-13.9402"}},
    {"name": "Secret Reef", "gps": {"latitude": 28.4, "longitude": -14.2}, "url": "https://example.org/reef"}
  ]
}`

const testConfig = `
[[sources]]
id = "S1"
path = "sources/one.json"

[[sources]]
id = "S2"
path = "sources/two.json"

[store]
dataset = "spots.json"
history_driver = "sqlite"
history_dsn = "history.db"

[log]
level = "error"
`

func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	for _, key := range []string{config.EnvConfig, config.EnvDataset, config.EnvHistoryDriver,
		config.EnvHistoryDSN, config.EnvLogLevel, config.EnvPort, config.EnvWorkers,
		config.EnvDiscrepancyKm, config.EnvApplyReview} {
		t.Setenv(key, "")
	}

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sources"), 0o755))
	files := map[string]string{
		"spots.json":       testDataset,
		"sources/one.json": testSourceOne,
		"sources/two.json": testSourceTwo,
		"spotmatch.toml":   testConfig,
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCorrelateRecordsRun(t *testing.T) {
	setupWorkspace(t)

	out, err := runCLI(t, "correlate", "--format", "json", "--label", "first")
	require.NoError(t, err)

	var run match.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.Equal(t, "first", run.Label)
	assert.Equal(t, 4, run.Summary.Candidates)
	assert.Equal(t, 2, run.Summary.High)
	assert.Equal(t, 1, run.Summary.Medium)
	assert.Equal(t, 1, run.Summary.NewDiscoveries)
	assert.Equal(t, 1, run.Summary.UnmatchedEntities)
	assert.Equal(t, 2, run.Summary.Proposals)
	assert.Equal(t, 1, run.Summary.ProposalsForReview)
	require.NotEmpty(t, run.Resolution.Diagnostics)
	assert.Equal(t, match.DiagInvalidCandidate, run.Resolution.Diagnostics[0].Kind)
	assert.Equal(t, "S1", run.Resolution.Diagnostics[0].SourceID)

	out, err = runCLI(t, "runs", "list", "--format", "json")
	require.NoError(t, err)
	var runs []audit.RunInfo
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	out, err = runCLI(t, "runs", "show", "latest")
	require.NoError(t, err)
	assert.Contains(t, out, "Run "+run.ID)
	assert.Contains(t, out, "Secret Reef")
}

func TestCorrelateWithoutHistory(t *testing.T) {
	setupWorkspace(t)

	out, err := runCLI(t, "correlate", "--no-history")
	require.NoError(t, err)
	assert.Contains(t, out, "HIGH confidence (2)")

	_, err = runCLI(t, "runs", "show")
	assert.ErrorIs(t, err, audit.ErrRunNotFound)
}

func TestConsensusThenApply(t *testing.T) {
	dir := setupWorkspace(t)

	out, err := runCLI(t, "consensus", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Consensus proposals (2)")
	assert.Contains(t, out, "no_correlations")

	out, err = runCLI(t, "apply", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run: 1 proposals would be applied (1 need review")

	out, err = runCLI(t, "apply")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 1 proposals")

	raw, err := os.ReadFile(filepath.Join(dir, "spots.json"))
	require.NoError(t, err)
	var doc struct {
		Spots []struct {
			ID       string `json:"id"`
			Location struct {
				Coordinates struct {
					Lat      float64 `json:"lat"`
					Accuracy string  `json:"accuracy"`
				} `json:"coordinates"`
			} `json:"location"`
		} `json:"spots"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "verified", doc.Spots[0].Location.Coordinates.Accuracy)
	assert.InDelta(t, 28.73045, doc.Spots[0].Location.Coordinates.Lat, 1e-4)
	assert.Equal(t, 28.0657, doc.Spots[1].Location.Coordinates.Lat)

	out, err = runCLI(t, "apply")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 0 proposals")
	assert.Contains(t, out, "1 already applied")
}

func TestAnalyzeUnmatched(t *testing.T) {
	setupWorkspace(t)

	out, err := runCLI(t, "analyze-unmatched", "--format", "json", "--radius", "60")
	require.NoError(t, err)

	var analyses []match.UnmatchedAnalysis
	require.NoError(t, json.Unmarshal([]byte(out), &analyses))
	require.Len(t, analyses, 1)
	assert.Equal(t, "lobos", analyses[0].Entity.ID)
	assert.NotEmpty(t, analyses[0].Hints)
}

func TestDiscrepancies(t *testing.T) {
	setupWorkspace(t)

	out, err := runCLI(t, "discrepancies", "--format", "json")
	require.NoError(t, err)

	var found []match.Discrepancy
	require.NoError(t, json.Unmarshal([]byte(out), &found))
	require.Len(t, found, 1)
	assert.Equal(t, "el-pozo", found[0].Correlation.MatchedID)
	assert.InDelta(t, 7.0, found[0].DistanceKm, 0.01)
}

func TestExplicitSourceArguments(t *testing.T) {
	setupWorkspace(t)

	out, err := runCLI(t, "correlate", "--no-history", "--format", "json", "sources/two.json")
	require.NoError(t, err)

	var run match.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.Equal(t, 2, run.Summary.Candidates)
	for _, c := range run.Resolution.Correlations {
		assert.Equal(t, "wannasurf", c.SourceID)
	}
}

func TestConfigInitAndPath(t *testing.T) {
	dir := setupWorkspace(t)

	out, err := runCLI(t, "config", "init", "generated.toml")
	require.NoError(t, err)
	assert.Contains(t, out, "generated.toml")
	_, err = os.Stat(filepath.Join(dir, "generated.toml"))
	assert.NoError(t, err)

	_, err = runCLI(t, "config", "init", "generated.toml")
	assert.Error(t, err)

	out, err = runCLI(t, "config", "path")
	require.NoError(t, err)
	assert.Contains(t, out, "spotmatch.toml")
}

func TestUnknownFormat(t *testing.T) {
	setupWorkspace(t)

	_, err := runCLI(t, "correlate", "--format", "xml")
	assert.ErrorContains(t, err, "unknown report format")
}

func TestPing(t *testing.T) {
	setupWorkspace(t)

	out, err := runCLI(t, "ping")
	require.NoError(t, err)
	assert.Contains(t, out, "3 canonical spots")
	assert.Contains(t, out, "0 recorded runs")
}
