package match

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spotmatch/internal/debug"
)

// Engine orchestrates a complete reconciliation pass: correlation followed by
// coordinate consensus for every canonical entity
type Engine struct {
	resolver  *Resolver
	consensus *ConsensusBuilder
	debug     bool
}

// EngineConfig holds configuration for the reconciliation engine
type EngineConfig struct {
	Weights   *FeatureWeights
	Tiers     *MatchTiers
	Limits    *ConsensusLimits
	Overrides *OverrideTable
	Validator PositionValidator
	Workers   int
	Debug     bool
}

// NewEngine creates a new reconciliation engine
func NewEngine(config EngineConfig) *Engine {
	resolver := NewResolver(ResolverConfig{
		Weights:   config.Weights,
		Tiers:     config.Tiers,
		Overrides: config.Overrides,
		Validator: config.Validator,
		Workers:   config.Workers,
		Debug:     config.Debug,
	})

	return &Engine{
		resolver:  resolver,
		consensus: NewConsensusBuilder(config.Limits).WithDebug(config.Debug),
		debug:     config.Debug,
	}
}

// Reconcile resolves candidates against entities and evaluates consensus for
// every entity that survived validation, in canonical load order.
func (e *Engine) Reconcile(label string, entities []CanonicalEntity, candidates []CandidateRecord) *Run {
	debug.DebugHeader(e.debug)
	defer debug.DebugFooter(e.debug)

	startTime := time.Now()
	run := &Run{
		ID:        uuid.NewString(),
		Label:     label,
		StartedAt: startTime.UTC(),
		Entities:  entities,
		Proposals: []ConsensusProposal{},
	}

	debug.DebugOutput(e.debug, "=== Reconciliation %s started ===", run.ID)

	// Step 1: correlate
	run.Resolution = e.resolver.ResolveCorrelations(entities, candidates)

	// Step 2: consensus per entity
	byEntity := make(map[string][]CorrelationRecord)
	for _, c := range run.Resolution.Correlations {
		byEntity[c.MatchedID] = append(byEntity[c.MatchedID], c)
	}

	skipped := skippedEntities(run.Resolution.Diagnostics)
	for i, entity := range entities {
		if skipped[i] {
			continue
		}
		outcome := e.consensus.Evaluate(entity.ID, byEntity[entity.ID], entity.Position)
		if outcome.EntityName == "" {
			outcome.EntityName = entity.PrimaryName
		}
		if outcome.Proposal != nil {
			outcome.Proposal.EntityName = entity.PrimaryName
			run.Proposals = append(run.Proposals, *outcome.Proposal)
		}
		run.Outcomes = append(run.Outcomes, outcome)
	}

	run.ProcessingTime = time.Since(startTime)
	run.Summary = Summarize(run, len(candidates), len(entities))

	debug.DebugOutput(e.debug, "=== Reconciliation complete ===")
	debug.DebugOutput(e.debug, "Correlations: %d (HIGH %d, MEDIUM %d, LOW %d)",
		run.Summary.Correlations, run.Summary.High, run.Summary.Medium, run.Summary.Low)
	debug.DebugOutput(e.debug, "Proposals: %d (%d for review)", run.Summary.Proposals, run.Summary.ProposalsForReview)
	debug.DebugOutput(e.debug, "Processing time: %v", run.ProcessingTime)

	return run
}

// Execute loads entities and candidates through their ports, reconciles them
// and hands the run to every sink. Load diagnostics are merged into the run.
func (e *Engine) Execute(ctx context.Context, label string, store CanonicalStore, loader SourceLoader, sinks ...ReportSink) (*Run, error) {
	entities, err := store.LoadEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load canonical entities: %w", err)
	}

	candidates, loadDiags, err := loader.LoadCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}

	run := e.Reconcile(label, entities, candidates)
	if len(loadDiags) > 0 {
		run.Resolution.Diagnostics = append(loadDiags, run.Resolution.Diagnostics...)
		run.Summary.DiagnosticsRecorded = len(run.Resolution.Diagnostics)
	}

	for _, sink := range sinks {
		if err := sink.Write(ctx, run); err != nil {
			return run, fmt.Errorf("failed to write run %s: %w", run.ID, err)
		}
	}

	return run, nil
}

// skippedEntities returns the load-order indexes of entities rejected by the resolver.
func skippedEntities(diags []Diagnostic) map[int]bool {
	skipped := make(map[int]bool)
	for _, d := range diags {
		if d.Kind == DiagInvalidEntity || d.Kind == DiagDuplicateEntity {
			skipped[d.Index] = true
		}
	}
	return skipped
}

// Summarize computes the headline counts of a run
func Summarize(run *Run, candidates, entities int) Summary {
	counts := run.Resolution.CountByConfidence()
	s := Summary{
		Candidates:          candidates,
		Entities:            entities,
		Correlations:        len(run.Resolution.Correlations),
		High:                counts[ConfidenceHigh],
		Medium:              counts[ConfidenceMedium],
		Low:                 counts[ConfidenceLow],
		NewDiscoveries:      len(run.Resolution.UnmatchedCandidates),
		UnmatchedEntities:   len(run.Resolution.UnmatchedEntities),
		Proposals:           len(run.Proposals),
		DiagnosticsRecorded: len(run.Resolution.Diagnostics),
	}
	for _, p := range run.Proposals {
		if p.RequiresReview {
			s.ProposalsForReview++
		}
	}
	return s
}
