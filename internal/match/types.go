package match

import (
	"strings"
	"time"

	"github.com/spotmatch/internal/geo"
)

// Accuracy is the provenance label stored with a canonical position.
type Accuracy string

const (
	AccuracyUnverified     Accuracy = "unverified"
	AccuracyConfirmed      Accuracy = "confirmed"
	AccuracyCorrected      Accuracy = "corrected"
	AccuracyVerified       Accuracy = "verified"
	AccuracyImproved       Accuracy = "improved"
	AccuracyRequiresReview Accuracy = "requires_review"
)

// ConfidenceTier is the discrete confidence attached to a correlation.
type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "HIGH"
	ConfidenceMedium ConfidenceTier = "MEDIUM"
	ConfidenceLow    ConfidenceTier = "LOW"
)

// rank orders tiers so that a higher rank is a stronger tier.
func (c ConfidenceTier) rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	default:
		return 0
	}
}

// ParseConfidence accepts HIGH/MEDIUM/LOW in any case.
func ParseConfidence(s string) (ConfidenceTier, bool) {
	switch ConfidenceTier(strings.ToUpper(strings.TrimSpace(s))) {
	case ConfidenceHigh:
		return ConfidenceHigh, true
	case ConfidenceMedium:
		return ConfidenceMedium, true
	case ConfidenceLow:
		return ConfidenceLow, true
	}
	return "", false
}

// Method records how a correlation was produced.
type Method string

const (
	MethodOverride Method = "override"
	MethodScored   Method = "scored"
)

// CanonicalEntity is the authoritative record for one surf spot
type CanonicalEntity struct {
	ID               string       `json:"id"`
	PrimaryName      string       `json:"primary_name"`
	AlternativeNames []string     `json:"alternative_names,omitempty"`
	Position         geo.Position `json:"position"`
	Accuracy         Accuracy     `json:"accuracy,omitempty"`
	Area             string       `json:"area,omitempty"`
}

// Names returns the primary name followed by the aliases.
func (e CanonicalEntity) Names() []string {
	names := make([]string, 0, 1+len(e.AlternativeNames))
	names = append(names, e.PrimaryName)
	return append(names, e.AlternativeNames...)
}

// CandidateRecord is one observation reported by an external source
type CandidateRecord struct {
	Name        string       `json:"name"`
	Position    geo.Position `json:"position"`
	SourceID    string       `json:"source_id"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
}

// CorrelationRecord links one candidate to at most one canonical entity
type CorrelationRecord struct {
	CandidateName     string         `json:"candidate_name"`
	SourceID          string         `json:"source_id"`
	CandidatePosition geo.Position   `json:"candidate_position"`
	MatchedID         string         `json:"matched_id"`
	MatchedName       string         `json:"matched_name"`
	EntityPosition    geo.Position   `json:"entity_position"`
	DistanceKm        float64        `json:"distance_km"`
	Score             float64        `json:"score"`
	NameScore         float64        `json:"name_score"`
	DistanceScore     float64        `json:"distance_score"`
	Confidence        ConfidenceTier `json:"confidence"`
	Method            Method         `json:"method"`
	Reason            string         `json:"reason"`
}

// ConsensusProposal is a replacement coordinate derived from several sources
type ConsensusProposal struct {
	EntityID             string              `json:"entity_id"`
	EntityName           string              `json:"entity_name"`
	Current              geo.Position        `json:"current"`
	Proposed             geo.Position        `json:"proposed"`
	VarianceMeters       float64             `json:"variance_meters"`
	ImprovementMeters    float64             `json:"improvement_meters"`
	SupportingMatchCount int                 `json:"supporting_match_count"`
	Accuracy             Accuracy            `json:"accuracy"`
	RequiresReview       bool                `json:"requires_review"`
	Evidence             []CorrelationRecord `json:"evidence,omitempty"`
}

// DiagnosticKind classifies a skipped input.
type DiagnosticKind string

const (
	DiagInvalidCandidate DiagnosticKind = "invalid_candidate"
	DiagInvalidEntity    DiagnosticKind = "invalid_entity"
	DiagDuplicateEntity  DiagnosticKind = "duplicate_entity"
)

// Diagnostic explains why a single record was skipped. It never aborts a run.
type Diagnostic struct {
	Kind     DiagnosticKind `json:"kind"`
	SourceID string         `json:"source_id,omitempty"`
	Index    int            `json:"index"`
	Name     string         `json:"name,omitempty"`
	Reason   string         `json:"reason"`
}

// Resolution is the complete result of matching candidates to entities
type Resolution struct {
	Correlations        []CorrelationRecord `json:"correlations"`
	UnmatchedCandidates []CandidateRecord   `json:"unmatched_candidates"`
	UnmatchedEntities   []CanonicalEntity   `json:"unmatched_entities"`
	Diagnostics         []Diagnostic        `json:"diagnostics,omitempty"`
}

// ForEntity returns the correlations pointing at entityID, in resolution order.
func (r Resolution) ForEntity(entityID string) []CorrelationRecord {
	var out []CorrelationRecord
	for _, c := range r.Correlations {
		if c.MatchedID == entityID {
			out = append(out, c)
		}
	}
	return out
}

// CountByConfidence tallies correlations per tier.
func (r Resolution) CountByConfidence() map[ConfidenceTier]int {
	counts := map[ConfidenceTier]int{
		ConfidenceHigh:   0,
		ConfidenceMedium: 0,
		ConfidenceLow:    0,
	}
	for _, c := range r.Correlations {
		counts[c.Confidence]++
	}
	return counts
}

// Summary holds the headline counts of a run
type Summary struct {
	Candidates          int `json:"candidates"`
	Entities            int `json:"entities"`
	Correlations        int `json:"correlations"`
	High                int `json:"high_confidence"`
	Medium              int `json:"medium_confidence"`
	Low                 int `json:"low_confidence"`
	NewDiscoveries      int `json:"new_discoveries"`
	UnmatchedEntities   int `json:"unmatched_existing"`
	Proposals           int `json:"proposals"`
	ProposalsForReview  int `json:"proposals_for_review"`
	DiagnosticsRecorded int `json:"diagnostics"`
}

// Run is one full reconciliation pass
type Run struct {
	ID             string              `json:"id"`
	Label          string              `json:"label,omitempty"`
	StartedAt      time.Time           `json:"started_at"`
	ProcessingTime time.Duration       `json:"processing_time"`
	Entities       []CanonicalEntity   `json:"-"`
	Resolution     Resolution          `json:"resolution"`
	Outcomes       []ConsensusOutcome  `json:"outcomes"`
	Proposals      []ConsensusProposal `json:"proposals"`
	Summary        Summary             `json:"summary"`
}

// MatchTiers defines the confidence classification thresholds
type MatchTiers struct {
	HighMinScore         float64 `toml:"high_min_score"`          // >= 85
	HighMaxDistanceKm    float64 `toml:"high_max_distance_km"`    // < 2 km
	MediumMinScore       float64 `toml:"medium_min_score"`        // >= 60
	MediumAltMinScore    float64 `toml:"medium_alt_min_score"`    // >= 50 ...
	MediumAltMaxDistance float64 `toml:"medium_alt_max_distance"` // ... and < 5 km
}

// DefaultTiers returns the confidence thresholds used by the correlation pass
func DefaultTiers() *MatchTiers {
	return &MatchTiers{
		HighMinScore:         85,
		HighMaxDistanceKm:    2,
		MediumMinScore:       60,
		MediumAltMinScore:    50,
		MediumAltMaxDistance: 5,
	}
}

// DistanceBand awards Score when the distance is strictly below MaxKm.
type DistanceBand struct {
	MaxKm float64 `toml:"max_km"`
	Score float64 `toml:"score"`
}

// FeatureWeights defines the scoring weights for name and distance evidence
type FeatureWeights struct {
	NameWeight     float64        `toml:"name_weight"`      // 0.7
	DistanceWeight float64        `toml:"distance_weight"`  // 0.3
	ExactName      float64        `toml:"exact_name"`       // 100
	SubstringName  float64        `toml:"substring_name"`   // 70
	SharedToken    float64        `toml:"shared_token"`     // 50
	MinTokenLength int            `toml:"min_token_length"` // tokens longer than 2
	OverrideScore  float64        `toml:"override_score"`   // 90
	DistanceBands  []DistanceBand `toml:"distance_bands"`
}

// DefaultWeights returns the name-dominant weighting. Identity evidence outweighs
// proximity because distinct spots often sit within a few kilometers of each other.
func DefaultWeights() *FeatureWeights {
	return &FeatureWeights{
		NameWeight:     0.7,
		DistanceWeight: 0.3,
		ExactName:      100,
		SubstringName:  70,
		SharedToken:    50,
		MinTokenLength: 3,
		OverrideScore:  90,
		DistanceBands: []DistanceBand{
			{MaxKm: 1, Score: 100},
			{MaxKm: 2, Score: 80},
			{MaxKm: 5, Score: 60},
			{MaxKm: 10, Score: 40},
		},
	}
}

// ConsensusLimits bounds when a consensus coordinate may be proposed
type ConsensusLimits struct {
	PreferredDistanceKm     float64 `toml:"preferred_distance_km"`     // < 1 km
	MaxVarianceMeters       float64 `toml:"max_variance_meters"`       // < 200 m
	MinImprovementMeters    float64 `toml:"min_improvement_meters"`    // > 10 m
	VerifiedVarianceMeters  float64 `toml:"verified_variance_meters"`  // < 50 m
	ConfirmedVarianceMeters float64 `toml:"confirmed_variance_meters"` // < 100 m
}

// DefaultConsensusLimits returns the acceptance ceiling and improvement floor
func DefaultConsensusLimits() *ConsensusLimits {
	return &ConsensusLimits{
		PreferredDistanceKm:     1,
		MaxVarianceMeters:       200,
		MinImprovementMeters:    10,
		VerifiedVarianceMeters:  50,
		ConfirmedVarianceMeters: 100,
	}
}
