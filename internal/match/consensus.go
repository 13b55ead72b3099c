package match

import (
	"github.com/spotmatch/internal/debug"
	"github.com/spotmatch/internal/geo"
)

// SkipReason explains why an entity received no proposal.
type SkipReason string

const (
	SkipNone                    SkipReason = ""
	SkipNoCorrelations          SkipReason = "no_correlations"
	SkipVarianceTooHigh         SkipReason = "variance_too_high"
	SkipInsufficientImprovement SkipReason = "insufficient_improvement"
)

// ConsensusOutcome records the consensus evaluation of one entity, whether or
// not it produced a proposal.
type ConsensusOutcome struct {
	EntityID          string             `json:"entity_id"`
	EntityName        string             `json:"entity_name,omitempty"`
	Current           geo.Position       `json:"current"`
	Centroid          geo.Position       `json:"centroid"`
	EvidenceCount     int                `json:"evidence_count"`
	Contributors      int                `json:"contributors"`
	UsedFallback      bool               `json:"used_fallback"`
	VarianceMeters    float64            `json:"variance_meters"`
	ImprovementMeters float64            `json:"improvement_meters"`
	Proposal          *ConsensusProposal `json:"proposal,omitempty"`
	SkipReason        SkipReason         `json:"skip_reason,omitempty"`
}

// ConsensusBuilder derives replacement coordinates from corroborating correlations
type ConsensusBuilder struct {
	limits *ConsensusLimits
	debug  bool
}

// NewConsensusBuilder creates a builder; nil limits select the defaults.
func NewConsensusBuilder(limits *ConsensusLimits) *ConsensusBuilder {
	if limits == nil {
		limits = DefaultConsensusLimits()
	}
	return &ConsensusBuilder{limits: limits}
}

// WithDebug enables trace output.
func (b *ConsensusBuilder) WithDebug(enabled bool) *ConsensusBuilder {
	b.debug = enabled
	return b
}

// BuildConsensus returns a proposal for entityID when the evidence agrees
// tightly and moves the coordinate by more than the improvement floor.
func (b *ConsensusBuilder) BuildConsensus(entityID string, correlations []CorrelationRecord, current geo.Position) (*ConsensusProposal, bool) {
	out := b.Evaluate(entityID, correlations, current)
	return out.Proposal, out.Proposal != nil
}

// Evaluate runs the consensus rules and reports every intermediate figure.
// Correlations that point at another entity are ignored.
func (b *ConsensusBuilder) Evaluate(entityID string, correlations []CorrelationRecord, current geo.Position) ConsensusOutcome {
	out := ConsensusOutcome{EntityID: entityID, Current: current}

	var evidence, high []CorrelationRecord
	for _, c := range correlations {
		if c.MatchedID != entityID {
			continue
		}
		if out.EntityName == "" {
			out.EntityName = c.MatchedName
		}
		evidence = append(evidence, c)
		if c.Confidence == ConfidenceHigh {
			high = append(high, c)
		}
	}
	out.EvidenceCount = len(evidence)

	if len(evidence) == 0 {
		out.SkipReason = SkipNoCorrelations
		return out
	}

	selected := high
	if len(selected) == 0 {
		selected = evidence
		out.UsedFallback = true
	}

	var near []CorrelationRecord
	for _, c := range selected {
		if c.DistanceKm < b.limits.PreferredDistanceKm {
			near = append(near, c)
		}
	}
	if len(near) > 0 {
		selected = near
	}

	weighted := make([]geo.Weighted, 0, len(selected))
	positions := make([]geo.Position, 0, len(selected))
	for _, c := range selected {
		weighted = append(weighted, geo.Weighted{
			Position: c.CandidatePosition,
			Weight:   1 / (1 + c.DistanceKm),
		})
		positions = append(positions, c.CandidatePosition)
	}

	centroid, ok := geo.WeightedCentroid(weighted)
	if !ok {
		out.SkipReason = SkipNoCorrelations
		return out
	}

	out.Centroid = centroid
	out.Contributors = len(selected)
	out.VarianceMeters = geo.MaxDeviationMeters(centroid, positions)
	out.ImprovementMeters = geo.HaversineMeters(current, centroid)

	debug.DebugOutput(b.debug, "%s: %d contributors (fallback=%v) centroid=%s variance=%.1fm improvement=%.1fm",
		entityID, out.Contributors, out.UsedFallback, centroid, out.VarianceMeters, out.ImprovementMeters)

	if out.VarianceMeters >= b.limits.MaxVarianceMeters {
		out.SkipReason = SkipVarianceTooHigh
		return out
	}
	if out.ImprovementMeters <= b.limits.MinImprovementMeters {
		out.SkipReason = SkipInsufficientImprovement
		return out
	}

	proposal := &ConsensusProposal{
		EntityID:             entityID,
		EntityName:           out.EntityName,
		Current:              current,
		Proposed:             centroid,
		VarianceMeters:       out.VarianceMeters,
		ImprovementMeters:    out.ImprovementMeters,
		SupportingMatchCount: len(selected),
		Accuracy:             b.accuracyFor(out.VarianceMeters),
		Evidence:             selected,
	}
	if out.UsedFallback {
		proposal.Accuracy = AccuracyRequiresReview
		proposal.RequiresReview = true
	}
	out.Proposal = proposal
	return out
}

// accuracyFor labels a proposal by how tightly its contributors agree.
func (b *ConsensusBuilder) accuracyFor(varianceMeters float64) Accuracy {
	switch {
	case varianceMeters < b.limits.VerifiedVarianceMeters:
		return AccuracyVerified
	case varianceMeters < b.limits.ConfirmedVarianceMeters:
		return AccuracyConfirmed
	default:
		return AccuracyImproved
	}
}
