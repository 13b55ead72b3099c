package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spotmatch/internal/db"
	"github.com/spotmatch/internal/debug"
	"github.com/spotmatch/internal/match"
)

// ErrRunNotFound is returned when a run ID has no history.
var ErrRunNotFound = errors.New("run not found")

// timestampLayout is fixed width so that stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Tracker persists reconciliation runs so that correlations and proposals can
// be reviewed and applied later
type Tracker struct {
	conn  *db.Connection
	debug bool
}

// NewTracker creates a new run tracker
func NewTracker(conn *db.Connection) *Tracker {
	return &Tracker{conn: conn}
}

// WithDebug enables trace output.
func (t *Tracker) WithDebug(enabled bool) *Tracker {
	t.debug = enabled
	return t
}

// RunInfo is the header row of a stored run
type RunInfo struct {
	ID             string        `json:"id"`
	Label          string        `json:"label"`
	StartedAt      time.Time     `json:"started_at"`
	ProcessingTime time.Duration `json:"processing_time"`
	Summary        match.Summary `json:"summary"`
}

// StoredProposal is a proposal together with its apply state
type StoredProposal struct {
	match.ConsensusProposal
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// RunRecord is a stored run with everything needed to review it
type RunRecord struct {
	RunInfo
	Correlations        []match.CorrelationRecord `json:"correlations"`
	UnmatchedCandidates []match.CandidateRecord   `json:"unmatched_candidates"`
	UnmatchedEntities   []match.CanonicalEntity   `json:"unmatched_entities"`
	Proposals           []StoredProposal          `json:"proposals"`
	Diagnostics         []match.Diagnostic        `json:"diagnostics"`
}

type unmatchedPayload struct {
	Candidates []match.CandidateRecord `json:"candidates"`
	Entities   []match.CanonicalEntity `json:"entities"`
}

// Write records a finished run in a single transaction.
func (t *Tracker) Write(ctx context.Context, run *match.Run) error {
	debug.DebugHeader(t.debug)
	defer debug.DebugFooter(t.debug)

	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	unmatchedJSON, err := json.Marshal(unmatchedPayload{
		Candidates: run.Resolution.UnmatchedCandidates,
		Entities:   run.Resolution.UnmatchedEntities,
	})
	if err != nil {
		return fmt.Errorf("failed to encode unmatched records: %w", err)
	}

	tx, err := t.conn.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, t.conn.Rebind(`
		INSERT INTO reconcile_run (run_id, run_label, started_at, processing_ms, summary_json, unmatched_json)
		VALUES ($1, $2, $3, $4, $5, $6)
	`), run.ID, run.Label, run.StartedAt.UTC().Format(timestampLayout),
		run.ProcessingTime.Milliseconds(), string(summaryJSON), string(unmatchedJSON))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	corrStmt, err := tx.PrepareContext(ctx, t.conn.Rebind(`
		INSERT INTO run_correlation (
			run_id, seq, candidate_name, source_id, candidate_lat, candidate_lng,
			matched_id, matched_name, entity_lat, entity_lng, distance_km,
			score, name_score, distance_score, confidence, method, reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare correlation insert: %w", err)
	}
	defer corrStmt.Close()

	for i, c := range run.Resolution.Correlations {
		_, err = corrStmt.ExecContext(ctx, run.ID, i, c.CandidateName, c.SourceID,
			c.CandidatePosition.Lat, c.CandidatePosition.Lng, c.MatchedID, c.MatchedName,
			c.EntityPosition.Lat, c.EntityPosition.Lng, c.DistanceKm,
			c.Score, c.NameScore, c.DistanceScore, string(c.Confidence), string(c.Method), c.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert correlation %d: %w", i, err)
		}
	}

	for i, p := range run.Proposals {
		evidenceJSON, err := json.Marshal(p.Evidence)
		if err != nil {
			return fmt.Errorf("failed to encode evidence for %s: %w", p.EntityID, err)
		}
		_, err = tx.ExecContext(ctx, t.conn.Rebind(`
			INSERT INTO run_proposal (
				run_id, entity_id, seq, entity_name, current_lat, current_lng, proposed_lat, proposed_lng,
				variance_m, improvement_m, supporting_matches, accuracy, requires_review, evidence_json
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`), run.ID, p.EntityID, i, p.EntityName, p.Current.Lat, p.Current.Lng, p.Proposed.Lat, p.Proposed.Lng,
			p.VarianceMeters, p.ImprovementMeters, p.SupportingMatchCount, string(p.Accuracy),
			boolToInt(p.RequiresReview), string(evidenceJSON))
		if err != nil {
			return fmt.Errorf("failed to insert proposal for %s: %w", p.EntityID, err)
		}
	}

	for i, d := range run.Resolution.Diagnostics {
		_, err = tx.ExecContext(ctx, t.conn.Rebind(`
			INSERT INTO run_diagnostic (run_id, seq, kind, source_id, record_idx, name, reason)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`), run.ID, i, string(d.Kind), d.SourceID, d.Index, d.Name, d.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert diagnostic %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	debug.DebugOutput(t.debug, "Recorded run %s: %d correlations, %d proposals, %d diagnostics",
		run.ID, len(run.Resolution.Correlations), len(run.Proposals), len(run.Resolution.Diagnostics))
	return nil
}

// ListRuns returns the most recent runs first. A limit of zero or less returns all runs.
func (t *Tracker) ListRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	query := `
		SELECT run_id, run_label, started_at, processing_ms, summary_json
		FROM reconcile_run
		ORDER BY started_at DESC, run_id`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := t.conn.DB.QueryContext(ctx, t.conn.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunInfo{}
	for rows.Next() {
		info, err := scanRunInfo(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the ID of the most recent run.
func (t *Tracker) LatestRun(ctx context.Context) (string, error) {
	runs, err := t.ListRuns(ctx, 1)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", ErrRunNotFound
	}
	return runs[0].ID, nil
}

// RunExists returns ErrRunNotFound when runID has no history.
func (t *Tracker) RunExists(ctx context.Context, runID string) error {
	var one int
	err := t.conn.DB.QueryRowContext(ctx, t.conn.Rebind(`
		SELECT 1 FROM reconcile_run WHERE run_id = $1
	`), runID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return fmt.Errorf("failed to look up run %s: %w", runID, err)
	}
	return nil
}

// GetRun loads a stored run with its correlations, proposals and diagnostics.
func (t *Tracker) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	debug.DebugHeader(t.debug)
	defer debug.DebugFooter(t.debug)

	row := t.conn.DB.QueryRowContext(ctx, t.conn.Rebind(`
		SELECT run_id, run_label, started_at, processing_ms, summary_json, unmatched_json
		FROM reconcile_run
		WHERE run_id = $1
	`), runID)

	var unmatchedJSON string
	info, err := scanRunInfo(row, &unmatchedJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}

	record := &RunRecord{RunInfo: info}

	var unmatched unmatchedPayload
	if err := json.Unmarshal([]byte(unmatchedJSON), &unmatched); err != nil {
		return nil, fmt.Errorf("failed to decode unmatched records: %w", err)
	}
	record.UnmatchedCandidates = orEmpty(unmatched.Candidates)
	record.UnmatchedEntities = orEmpty(unmatched.Entities)

	if record.Correlations, err = t.Correlations(ctx, runID, ""); err != nil {
		return nil, err
	}
	if record.Proposals, err = t.Proposals(ctx, runID); err != nil {
		return nil, err
	}
	if record.Diagnostics, err = t.diagnostics(ctx, runID); err != nil {
		return nil, err
	}

	debug.DebugOutput(t.debug, "Loaded run %s: %d correlations, %d proposals",
		runID, len(record.Correlations), len(record.Proposals))
	return record, nil
}

// Correlations returns a run's correlations in resolution order, optionally
// restricted to one confidence tier.
func (t *Tracker) Correlations(ctx context.Context, runID string, tier match.ConfidenceTier) ([]match.CorrelationRecord, error) {
	query := `
		SELECT candidate_name, source_id, candidate_lat, candidate_lng, matched_id, matched_name,
			entity_lat, entity_lng, distance_km, score, name_score, distance_score,
			confidence, method, reason
		FROM run_correlation
		WHERE run_id = $1`
	args := []interface{}{runID}
	if tier != "" {
		query += " AND confidence = $2"
		args = append(args, string(tier))
	}
	query += " ORDER BY seq"

	rows, err := t.conn.DB.QueryContext(ctx, t.conn.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query correlations: %w", err)
	}
	defer rows.Close()

	out := []match.CorrelationRecord{}
	for rows.Next() {
		var c match.CorrelationRecord
		var confidence, method string
		err := rows.Scan(&c.CandidateName, &c.SourceID, &c.CandidatePosition.Lat, &c.CandidatePosition.Lng,
			&c.MatchedID, &c.MatchedName, &c.EntityPosition.Lat, &c.EntityPosition.Lng,
			&c.DistanceKm, &c.Score, &c.NameScore, &c.DistanceScore, &confidence, &method, &c.Reason)
		if err != nil {
			return nil, fmt.Errorf("failed to scan correlation: %w", err)
		}
		c.Confidence = match.ConfidenceTier(confidence)
		c.Method = match.Method(method)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Proposals returns a run's proposals in canonical load order.
func (t *Tracker) Proposals(ctx context.Context, runID string) ([]StoredProposal, error) {
	rows, err := t.conn.DB.QueryContext(ctx, t.conn.Rebind(`
		SELECT entity_id, entity_name, current_lat, current_lng, proposed_lat, proposed_lng,
			variance_m, improvement_m, supporting_matches, accuracy, requires_review,
			evidence_json, applied_at
		FROM run_proposal
		WHERE run_id = $1
		ORDER BY seq
	`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query proposals: %w", err)
	}
	defer rows.Close()

	out := []StoredProposal{}
	for rows.Next() {
		var p StoredProposal
		var accuracy, evidenceJSON string
		var review int
		var appliedAt sql.NullString
		err := rows.Scan(&p.EntityID, &p.EntityName, &p.Current.Lat, &p.Current.Lng,
			&p.Proposed.Lat, &p.Proposed.Lng, &p.VarianceMeters, &p.ImprovementMeters,
			&p.SupportingMatchCount, &accuracy, &review, &evidenceJSON, &appliedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		p.Accuracy = match.Accuracy(accuracy)
		p.RequiresReview = review != 0
		if err := json.Unmarshal([]byte(evidenceJSON), &p.Evidence); err != nil {
			return nil, fmt.Errorf("failed to decode evidence for %s: %w", p.EntityID, err)
		}
		if appliedAt.Valid {
			if ts, err := time.Parse(time.RFC3339Nano, appliedAt.String); err == nil {
				p.AppliedAt = &ts
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkApplied stamps the given proposals of a run as written to the dataset
// and returns how many rows changed.
func (t *Tracker) MarkApplied(ctx context.Context, runID string, entityIDs []string, at time.Time) (int64, error) {
	var total int64
	stamp := at.UTC().Format(timestampLayout)
	for _, id := range entityIDs {
		res, err := t.conn.DB.ExecContext(ctx, t.conn.Rebind(`
			UPDATE run_proposal SET applied_at = $1 WHERE run_id = $2 AND entity_id = $3
		`), stamp, runID, id)
		if err != nil {
			return total, fmt.Errorf("failed to mark %s applied: %w", id, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	debug.DebugOutput(t.debug, "Marked %d proposals of run %s applied", total, runID)
	return total, nil
}

func (t *Tracker) diagnostics(ctx context.Context, runID string) ([]match.Diagnostic, error) {
	rows, err := t.conn.DB.QueryContext(ctx, t.conn.Rebind(`
		SELECT kind, source_id, record_idx, name, reason
		FROM run_diagnostic
		WHERE run_id = $1
		ORDER BY seq
	`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query diagnostics: %w", err)
	}
	defer rows.Close()

	out := []match.Diagnostic{}
	for rows.Next() {
		var d match.Diagnostic
		var kind string
		if err := rows.Scan(&kind, &d.SourceID, &d.Index, &d.Name, &d.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan diagnostic: %w", err)
		}
		d.Kind = match.DiagnosticKind(kind)
		out = append(out, d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRunInfo(s scanner, extra ...interface{}) (RunInfo, error) {
	var info RunInfo
	var startedAt, summaryJSON string
	var processingMS int64

	dest := append([]interface{}{&info.ID, &info.Label, &startedAt, &processingMS, &summaryJSON}, extra...)
	if err := s.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return info, err
		}
		return info, fmt.Errorf("failed to scan run: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return info, fmt.Errorf("failed to parse run start %q: %w", startedAt, err)
	}
	info.StartedAt = ts
	info.ProcessingTime = time.Duration(processingMS) * time.Millisecond
	if err := json.Unmarshal([]byte(summaryJSON), &info.Summary); err != nil {
		return info, fmt.Errorf("failed to decode summary: %w", err)
	}
	return info, nil
}

// ConsensusProposals strips the apply state.
func (r *RunRecord) ConsensusProposals() []match.ConsensusProposal {
	out := make([]match.ConsensusProposal, 0, len(r.Proposals))
	for _, p := range r.Proposals {
		out = append(out, p.ConsensusProposal)
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
