package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/spotmatch/internal/audit"
	"github.com/spotmatch/internal/debug"
	"github.com/spotmatch/internal/geo"
	"github.com/spotmatch/internal/match"
	"github.com/spotmatch/internal/report"
)

// LatestRunID may be used in place of a run ID.
const LatestRunID = "latest"

// RunStore is the read side of the run history
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]audit.RunInfo, error)
	LatestRun(ctx context.Context) (string, error)
	RunExists(ctx context.Context, runID string) error
	GetRun(ctx context.Context, runID string) (*audit.RunRecord, error)
	Correlations(ctx context.Context, runID string, tier match.ConfidenceTier) ([]match.CorrelationRecord, error)
	Proposals(ctx context.Context, runID string) ([]audit.StoredProposal, error)
}

// RunsHandler serves stored reconciliation runs
type RunsHandler struct {
	Store   RunStore
	Started time.Time
}

// HealthResponse reports liveness
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// RunListResponse wraps a page of runs
type RunListResponse struct {
	Runs  []audit.RunInfo `json:"runs"`
	Count int             `json:"count"`
}

// CorrelationsResponse wraps a run's correlations
type CorrelationsResponse struct {
	RunID        string                    `json:"run_id"`
	Confidence   string                    `json:"confidence,omitempty"`
	Correlations []match.CorrelationRecord `json:"correlations"`
	Count        int                       `json:"count"`
}

// ProposalsResponse wraps a run's proposals
type ProposalsResponse struct {
	RunID     string                 `json:"run_id"`
	Proposals []audit.StoredProposal `json:"proposals"`
	Count     int                    `json:"count"`
}

// Health reports that the server is up
func (h *RunsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(h.Started).Round(time.Second).String(),
	})
}

// ListRuns returns recent runs, newest first
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r.URL.Query().Get("limit"), 50)
	if limit > 500 {
		limit = 500
	}

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		h.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs, Count: len(runs)})
}

// GetRun returns one run with all of its records
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}

	record, err := h.Store.GetRun(r.Context(), runID)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// GetCorrelations returns a run's correlations, optionally filtered by ?confidence=
func (h *RunsHandler) GetCorrelations(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}

	var tier match.ConfidenceTier
	if raw := r.URL.Query().Get("confidence"); raw != "" {
		parsed, ok := match.ParseConfidence(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "confidence must be HIGH, MEDIUM or LOW")
			return
		}
		tier = parsed
	}

	if err := h.Store.RunExists(r.Context(), runID); err != nil {
		h.storeError(w, err)
		return
	}
	correlations, err := h.Store.Correlations(r.Context(), runID, tier)
	if err != nil {
		h.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CorrelationsResponse{
		RunID:        runID,
		Confidence:   string(tier),
		Correlations: correlations,
		Count:        len(correlations),
	})
}

// GetProposals returns a run's consensus proposals with their apply state
func (h *RunsHandler) GetProposals(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}

	if err := h.Store.RunExists(r.Context(), runID); err != nil {
		h.storeError(w, err)
		return
	}
	proposals, err := h.Store.Proposals(r.Context(), runID)
	if err != nil {
		h.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProposalsResponse{RunID: runID, Proposals: proposals, Count: len(proposals)})
}

// GetGeoJSON returns a run as a GeoJSON FeatureCollection. The optional
// min_lat/max_lat/min_lng/max_lng parameters restrict it to a viewport.
func (h *RunsHandler) GetGeoJSON(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}

	record, err := h.Store.GetRun(r.Context(), runID)
	if err != nil {
		h.storeError(w, err)
		return
	}

	correlations := record.Correlations
	discoveries := record.UnmatchedCandidates
	proposals := record.ConsensusProposals()

	if viewport, ok := viewportParam(r); ok {
		correlations = filter(correlations, func(c match.CorrelationRecord) bool { return viewport.Contains(c.CandidatePosition) })
		discoveries = filter(discoveries, func(c match.CandidateRecord) bool { return viewport.Contains(c.Position) })
		proposals = filter(proposals, func(p match.ConsensusProposal) bool { return viewport.Contains(p.Proposed) })
	}

	writeBody(w, http.StatusOK, "application/geo+json", report.FeatureCollection(correlations, discoveries, proposals))
}

func viewportParam(r *http.Request) (geo.Bounds, bool) {
	q := r.URL.Query()
	minLat := parseFloatParam(q.Get("min_lat"))
	maxLat := parseFloatParam(q.Get("max_lat"))
	minLng := parseFloatParam(q.Get("min_lng"))
	maxLng := parseFloatParam(q.Get("max_lng"))
	if minLat == nil || maxLat == nil || minLng == nil || maxLng == nil {
		return geo.Bounds{}, false
	}
	return geo.Bounds{MinLat: *minLat, MaxLat: *maxLat, MinLng: *minLng, MaxLng: *maxLng}, true
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// runID resolves the {id} route variable, expanding "latest".
func (h *RunsHandler) runID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if id != LatestRunID {
		return id, true
	}
	latest, err := h.Store.LatestRun(r.Context())
	if err != nil {
		h.storeError(w, err)
		return "", false
	}
	return latest, true
}

func (h *RunsHandler) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, audit.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.serverError(w, err)
}

func (h *RunsHandler) serverError(w http.ResponseWriter, err error) {
	debug.Logger().Error().Err(err).Msg("run history query failed")
	writeError(w, http.StatusInternalServerError, "Database error")
}
