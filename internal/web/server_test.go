package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotmatch/internal/audit"
	"github.com/spotmatch/internal/db"
	"github.com/spotmatch/internal/geo"
	"github.com/spotmatch/internal/match"
	"github.com/spotmatch/internal/web/handlers"
)

func newTestServer(t *testing.T) (*Server, *match.Run) {
	t.Helper()
	ctx := context.Background()

	conn, err := db.Open(ctx, db.DriverSQLite, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	tracker := audit.NewTracker(conn)

	entities := []match.CanonicalEntity{
		{ID: "majanicho", PrimaryName: "Majanicho", Position: geo.Position{Lat: 28.7300, Lng: -13.9400}},
		{ID: "el-pozo", PrimaryName: "El Pozo", Position: geo.Position{Lat: 28.0657, Lng: -14.5071}},
	}
	candidates := []match.CandidateRecord{
		{Name: "Majanicho", Position: geo.Position{Lat: 28.7305, Lng: -13.9403}, SourceID: "S1"},
		{Name: "Pozo", Position: geo.Position{Lat: 28.09, Lng: -14.50}, SourceID: "S2"},
		{Name: "Secret Reef", Position: geo.Position{Lat: 28.4, Lng: -14.2}, SourceID: "S3"},
	}

	older := match.NewEngine(match.EngineConfig{}).Reconcile("older", entities, candidates)
	older.StartedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, tracker.Write(ctx, older))

	run := match.NewEngine(match.EngineConfig{}).Reconcile("web", entities, candidates)
	run.StartedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, tracker.Write(ctx, run))

	return NewServer(&Config{Host: "127.0.0.1", Port: 0, AllowedOrigins: []string{"https://maps.example.org"}}, tracker), run
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/api/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body handlers.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
}

func TestListRuns(t *testing.T) {
	s, run := newTestServer(t)
	rec := get(t, s, "/api/runs")

	require.Equal(t, http.StatusOK, rec.Code)
	var body handlers.RunListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Count)
	assert.Equal(t, run.ID, body.Runs[0].ID)

	rec = get(t, s, "/api/runs?limit=1")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestGetRun(t *testing.T) {
	s, run := newTestServer(t)

	for _, id := range []string{run.ID, handlers.LatestRunID} {
		rec := get(t, s, "/api/runs/"+id)
		require.Equal(t, http.StatusOK, rec.Code, id)

		var body audit.RunRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, run.ID, body.ID)
		assert.Equal(t, run.Summary, body.Summary)
		assert.Len(t, body.Correlations, len(run.Resolution.Correlations))
	}

	rec := get(t, s, "/api/runs/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "run not found")
}

func TestGetCorrelationsFilter(t *testing.T) {
	s, run := newTestServer(t)

	rec := get(t, s, "/api/runs/"+run.ID+"/correlations?confidence=high")
	require.Equal(t, http.StatusOK, rec.Code)
	var body handlers.CorrelationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "HIGH", body.Confidence)
	assert.Equal(t, run.Summary.High, body.Count)
	for _, c := range body.Correlations {
		assert.Equal(t, match.ConfidenceHigh, c.Confidence)
	}

	rec = get(t, s, "/api/runs/"+run.ID+"/correlations?confidence=certain")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, s, "/api/runs/nope/correlations")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetProposals(t *testing.T) {
	s, run := newTestServer(t)

	rec := get(t, s, "/api/runs/"+run.ID+"/proposals")
	require.Equal(t, http.StatusOK, rec.Code)
	var body handlers.ProposalsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, len(run.Proposals), body.Count)

	rec = get(t, s, "/api/runs/nope/proposals")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// countingStore records full run loads.
type countingStore struct {
	*audit.Tracker
	loads int
}

func (c *countingStore) GetRun(ctx context.Context, runID string) (*audit.RunRecord, error) {
	c.loads++
	return c.Tracker.GetRun(ctx, runID)
}

func TestRunSubresourcesSkipFullLoad(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	run := match.NewEngine(match.EngineConfig{}).Reconcile("web", []match.CanonicalEntity{
		{ID: "majanicho", PrimaryName: "Majanicho", Position: geo.Position{Lat: 28.7300, Lng: -13.9400}},
	}, []match.CandidateRecord{
		{Name: "Majanicho", Position: geo.Position{Lat: 28.7305, Lng: -13.9403}, SourceID: "S1"},
	})
	store := &countingStore{Tracker: audit.NewTracker(conn)}
	require.NoError(t, store.Write(ctx, run))
	s := NewServer(DefaultConfig(), store)

	assert.Equal(t, http.StatusOK, get(t, s, "/api/runs/"+run.ID+"/correlations").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/api/runs/latest/proposals").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/runs/nope/proposals").Code)
	assert.Zero(t, store.loads)

	assert.Equal(t, http.StatusOK, get(t, s, "/api/runs/"+run.ID).Code)
	assert.Equal(t, 1, store.loads)
}

func TestGetGeoJSON(t *testing.T) {
	s, run := newTestServer(t)

	rec := get(t, s, "/api/runs/"+run.ID+"/geojson")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	require.NoError(t, err)
	total := len(run.Resolution.Correlations) + len(run.Resolution.UnmatchedCandidates) + len(run.Proposals)
	assert.Len(t, fc.Features, total)

	// viewport around the north shore only
	rec = get(t, s, "/api/runs/"+run.ID+"/geojson?min_lat=28.6&max_lat=28.8&min_lng=-14.0&max_lng=-13.8")
	require.Equal(t, http.StatusOK, rec.Code)
	fc, err = geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Less(t, len(fc.Features), total)
	for _, f := range fc.Features {
		assert.NotEqual(t, "Secret Reef", f.Properties["name"])
	}
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/runs", nil)
	req.Header.Set("Origin", "https://maps.example.org")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://maps.example.org", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStartStopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
