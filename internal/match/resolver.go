package match

import (
	"fmt"
	"sync"

	"github.com/spotmatch/internal/debug"
	"github.com/spotmatch/internal/geo"
	"github.com/spotmatch/internal/validation"
)

// PositionValidator decides whether a coordinate may take part in matching
type PositionValidator interface {
	ValidatePosition(p geo.Position) validation.ValidationResult
}

// ResolverConfig holds configuration for the correlation resolver
type ResolverConfig struct {
	Weights   *FeatureWeights
	Tiers     *MatchTiers
	Overrides *OverrideTable
	Validator PositionValidator
	Workers   int
	Debug     bool
}

// Resolver assigns each candidate to at most one canonical entity
type Resolver struct {
	scorer     *Scorer
	classifier *Classifier
	overrides  *OverrideTable
	validator  PositionValidator
	workers    int
	debug      bool
}

// NewResolver creates a resolver; zero-value fields select the defaults.
// A nil override table means no overrides.
func NewResolver(config ResolverConfig) *Resolver {
	validator := config.Validator
	if validator == nil {
		validator = validation.NewCoordinateValidator()
	}

	workers := config.Workers
	if workers < 1 {
		workers = 1
	}

	return &Resolver{
		scorer:     NewScorerWithConfig(config.Weights),
		classifier: NewClassifier(config.Tiers),
		overrides:  config.Overrides,
		validator:  validator,
		workers:    workers,
		debug:      config.Debug,
	}
}

// preparedEntity is a validated entity with its names normalized once.
type preparedEntity struct {
	entity CanonicalEntity
	names  entityNames
}

// slot holds the outcome for one candidate, written by exactly one worker.
type slot struct {
	correlation *CorrelationRecord
	unmatched   bool
	diagnostic  *Diagnostic
}

// ResolveCorrelations matches every candidate against every entity. Candidates are
// reported in input order regardless of the number of workers.
func (r *Resolver) ResolveCorrelations(entities []CanonicalEntity, candidates []CandidateRecord) Resolution {
	debug.DebugHeader(r.debug)
	defer debug.DebugFooter(r.debug)

	res := Resolution{
		Correlations:        []CorrelationRecord{},
		UnmatchedCandidates: []CandidateRecord{},
		UnmatchedEntities:   []CanonicalEntity{},
	}

	prepared, byID, diags := r.prepareEntities(entities)
	res.Diagnostics = append(res.Diagnostics, diags...)

	debug.DebugOutput(r.debug, "Resolving %d candidates against %d entities (%d workers)",
		len(candidates), len(prepared), r.workers)

	slots := make([]slot, len(candidates))
	r.fill(slots, candidates, prepared, byID)

	matched := make(map[string]bool)
	for i, s := range slots {
		switch {
		case s.diagnostic != nil:
			res.Diagnostics = append(res.Diagnostics, *s.diagnostic)
		case s.unmatched:
			res.UnmatchedCandidates = append(res.UnmatchedCandidates, candidates[i])
		case s.correlation != nil:
			res.Correlations = append(res.Correlations, *s.correlation)
			matched[s.correlation.MatchedID] = true
		}
	}

	for _, p := range prepared {
		if !matched[p.entity.ID] {
			res.UnmatchedEntities = append(res.UnmatchedEntities, p.entity)
		}
	}

	debug.DebugOutput(r.debug, "Resolved: %d correlations, %d new, %d unmatched entities, %d diagnostics",
		len(res.Correlations), len(res.UnmatchedCandidates), len(res.UnmatchedEntities), len(res.Diagnostics))

	return res
}

// prepareEntities drops entities with unusable positions or repeated IDs.
func (r *Resolver) prepareEntities(entities []CanonicalEntity) ([]preparedEntity, map[string]int, []Diagnostic) {
	prepared := make([]preparedEntity, 0, len(entities))
	byID := make(map[string]int, len(entities))
	var diags []Diagnostic

	for i, e := range entities {
		if _, dup := byID[e.ID]; dup {
			diags = append(diags, Diagnostic{
				Kind:   DiagDuplicateEntity,
				Index:  i,
				Name:   e.PrimaryName,
				Reason: fmt.Sprintf("duplicate entity id %q", e.ID),
			})
			continue
		}
		if v := r.validator.ValidatePosition(e.Position); !v.Valid {
			diags = append(diags, Diagnostic{
				Kind:   DiagInvalidEntity,
				Index:  i,
				Name:   e.PrimaryName,
				Reason: v.Reason,
			})
			continue
		}
		byID[e.ID] = len(prepared)
		prepared = append(prepared, preparedEntity{entity: e, names: newEntityNames(e)})
	}

	return prepared, byID, diags
}

// fill resolves candidates into their slots, in parallel when configured.
func (r *Resolver) fill(slots []slot, candidates []CandidateRecord, prepared []preparedEntity, byID map[string]int) {
	if r.workers == 1 || len(candidates) < 2 {
		for i := range candidates {
			slots[i] = r.resolveOne(i, candidates[i], prepared, byID)
		}
		return
	}

	workers := r.workers
	if workers > len(candidates) {
		workers = len(candidates)
	}
	chunk := (len(candidates) + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < len(candidates); start += chunk {
		end := start + chunk
		if end > len(candidates) {
			end = len(candidates)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				slots[i] = r.resolveOne(i, candidates[i], prepared, byID)
			}
		}(start, end)
	}
	wg.Wait()
}

func (r *Resolver) resolveOne(index int, c CandidateRecord, prepared []preparedEntity, byID map[string]int) slot {
	if v := r.validator.ValidatePosition(c.Position); !v.Valid {
		return slot{diagnostic: &Diagnostic{
			Kind:     DiagInvalidCandidate,
			SourceID: c.SourceID,
			Index:    index,
			Name:     c.Name,
			Reason:   v.Reason,
		}}
	}

	known := func(id string) bool {
		_, ok := byID[id]
		return ok
	}
	if entry, ok := r.overrides.Lookup(c.Name, known); ok {
		corr := r.overrideCorrelation(c, entry, prepared[byID[entry.EntityID]].entity)
		debug.DebugOutput(r.debug, "%s [%s] -> %s via override %q", c.Name, c.SourceID, corr.MatchedID, entry.Alias)
		return slot{correlation: &corr}
	}

	cn := newCandidateNames(c.Name)
	best := -1
	var bestScore ScoreBreakdown
	for i, p := range prepared {
		b := r.scorer.score(false, cn, c.Position, p.names, p.entity.Position)
		if best < 0 || b.Score > bestScore.Score ||
			(b.Score == bestScore.Score && b.DistanceKm < bestScore.DistanceKm) {
			best = i
			bestScore = b
		}
	}

	if best < 0 || bestScore.Score <= 0 {
		debug.DebugOutput(r.debug, "%s [%s] -> no match", c.Name, c.SourceID)
		return slot{unmatched: true}
	}

	e := prepared[best].entity
	corr := CorrelationRecord{
		CandidateName:     c.Name,
		SourceID:          c.SourceID,
		CandidatePosition: c.Position,
		MatchedID:         e.ID,
		MatchedName:       e.PrimaryName,
		EntityPosition:    e.Position,
		DistanceKm:        bestScore.DistanceKm,
		Score:             bestScore.Score,
		NameScore:         bestScore.NameScore,
		DistanceScore:     bestScore.DistanceScore,
		Confidence:        r.classifier.Classify(bestScore.Score, bestScore.DistanceKm),
		Method:            MethodScored,
		Reason:            describe(bestScore),
	}
	debug.DebugOutput(r.debug, "%s [%s] -> %s score=%.1f %s", c.Name, c.SourceID, e.ID, corr.Score, corr.Confidence)
	return slot{correlation: &corr}
}

func (r *Resolver) overrideCorrelation(c CandidateRecord, entry OverrideEntry, e CanonicalEntity) CorrelationRecord {
	score := r.scorer.weights.OverrideScore
	distanceKm := geo.HaversineKm(c.Position, e.Position)
	return CorrelationRecord{
		CandidateName:     c.Name,
		SourceID:          c.SourceID,
		CandidatePosition: c.Position,
		MatchedID:         e.ID,
		MatchedName:       e.PrimaryName,
		EntityPosition:    e.Position,
		DistanceKm:        distanceKm,
		Score:             score,
		DistanceScore:     r.scorer.DistanceScore(distanceKm),
		Confidence:        r.classifier.Classify(score, distanceKm),
		Method:            MethodOverride,
		Reason:            fmt.Sprintf("override: %q maps to %s, %.1fkm from existing coordinates", entry.Alias, e.PrimaryName, distanceKm),
	}
}
