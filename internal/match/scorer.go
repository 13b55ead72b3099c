package match

import (
	"fmt"
	"math"

	"github.com/spotmatch/internal/debug"
	"github.com/spotmatch/internal/geo"
	"github.com/spotmatch/internal/normalize"
)

// Scorer combines name similarity and spatial proximity into a 0-100 score
type Scorer struct {
	weights *FeatureWeights
}

// NewScorer creates a new scorer with default weights
func NewScorer() *Scorer {
	return &Scorer{weights: DefaultWeights()}
}

// NewScorerWithConfig creates a scorer with custom weights
func NewScorerWithConfig(weights *FeatureWeights) *Scorer {
	if weights == nil {
		weights = DefaultWeights()
	}
	return &Scorer{weights: weights}
}

// Weights returns the weights in use.
func (s *Scorer) Weights() *FeatureWeights {
	return s.weights
}

// ScoreBreakdown explains one (candidate, entity) score
type ScoreBreakdown struct {
	NameScore     float64
	DistanceScore float64
	DistanceKm    float64
	Score         float64
}

// entityNames caches the normalized forms of one entity's names.
type entityNames struct {
	identity []string
	fallback []string
	tokens   map[string]bool
}

func newEntityNames(e CanonicalEntity) entityNames {
	n := entityNames{tokens: make(map[string]bool)}
	for _, raw := range e.Names() {
		if id := normalize.Name(raw, normalize.ModeIdentity); id != "" {
			n.identity = append(n.identity, id)
			for _, tok := range normalize.Tokens(raw, normalize.ModeIdentity) {
				n.tokens[tok] = true
			}
		}
		if fb := normalize.Name(raw, normalize.ModeFallback); fb != "" {
			n.fallback = append(n.fallback, fb)
		}
	}
	return n
}

// candidateNames holds the normalized forms of one candidate name.
type candidateNames struct {
	identity string
	fallback string
	tokens   []string
}

func newCandidateNames(name string) candidateNames {
	return candidateNames{
		identity: normalize.Name(name, normalize.ModeIdentity),
		fallback: normalize.Name(name, normalize.ModeFallback),
		tokens:   normalize.Tokens(name, normalize.ModeIdentity),
	}
}

// Score computes the combined score for a candidate against an entity
func (s *Scorer) Score(candidate CandidateRecord, entity CanonicalEntity) ScoreBreakdown {
	return s.score(false, newCandidateNames(candidate.Name), candidate.Position, newEntityNames(entity), entity.Position)
}

func (s *Scorer) score(localDebug bool, c candidateNames, pos geo.Position, e entityNames, entityPos geo.Position) ScoreBreakdown {
	nameScore := s.nameScore(c, e)
	distanceKm := geo.HaversineKm(pos, entityPos)
	distanceScore := s.DistanceScore(distanceKm)

	total := s.weights.NameWeight*nameScore + s.weights.DistanceWeight*distanceScore
	total = math.Max(0, math.Min(100, total))

	debug.DebugOutput(localDebug, "name=%.0f*%.2f + distance=%.0f*%.2f (%.2fkm) = %.2f",
		nameScore, s.weights.NameWeight, distanceScore, s.weights.DistanceWeight, distanceKm, total)

	return ScoreBreakdown{
		NameScore:     nameScore,
		DistanceScore: distanceScore,
		DistanceKm:    distanceKm,
		Score:         total,
	}
}

// NameScore returns the name evidence for a candidate name against an entity.
func (s *Scorer) NameScore(candidateName string, entity CanonicalEntity) float64 {
	return s.nameScore(newCandidateNames(candidateName), newEntityNames(entity))
}

func (s *Scorer) nameScore(c candidateNames, e entityNames) float64 {
	if c.identity != "" {
		for _, name := range e.identity {
			if c.identity == name {
				return s.weights.ExactName
			}
		}
	}

	if c.fallback != "" {
		for _, name := range e.fallback {
			if normalize.ContainsEither(c.fallback, name) {
				return s.weights.SubstringName
			}
		}
	}

	for _, tok := range c.tokens {
		if len([]rune(tok)) >= s.weights.MinTokenLength && e.tokens[tok] {
			return s.weights.SharedToken
		}
	}

	return 0
}

// DistanceScore maps a distance in km onto the configured step bands.
func (s *Scorer) DistanceScore(distanceKm float64) float64 {
	for _, band := range s.weights.DistanceBands {
		if distanceKm < band.MaxKm {
			return band.Score
		}
	}
	return 0
}

// describe builds the human-readable reason for a scored correlation.
func describe(b ScoreBreakdown) string {
	switch {
	case b.NameScore >= 100 && b.DistanceScore >= 80:
		return fmt.Sprintf("Exact name match, %.1fkm from existing coordinates", b.DistanceKm)
	case b.NameScore >= 70 && b.DistanceScore >= 60:
		return fmt.Sprintf("Partial name match, %.1fkm from existing coordinates", b.DistanceKm)
	case b.DistanceScore >= 80 && b.NameScore >= 50:
		return fmt.Sprintf("Close proximity (%.1fkm), partial name match", b.DistanceKm)
	default:
		return fmt.Sprintf("Weak match: %.1fkm, name similarity %.0f%%", b.DistanceKm, b.NameScore)
	}
}
