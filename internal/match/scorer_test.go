package match

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spotmatch/internal/geo"
)

func TestNameScore(t *testing.T) {
	scorer := NewScorer()
	entity := CanonicalEntity{
		ID:               "el-cotillo-piedra-playa",
		PrimaryName:      "El Cotillo - Piedra Playa",
		AlternativeNames: []string{"Playa del Castillo"},
	}

	tests := []struct {
		name      string
		candidate string
		want      float64
	}{
		{name: "exact primary after stop words", candidate: "Cotillo Piedra", want: 100},
		{name: "exact alias", candidate: "Castillo Beach", want: 100},
		{name: "accented alias", candidate: "Playa del Cástillo", want: 100},
		{name: "fallback containment", candidate: "Piedra Playa", want: 70},
		{name: "shared token", candidate: "Cotillo Lagoon", want: 50},
		{name: "short shared token ignored", candidate: "El Xy", want: 0},
		{name: "unrelated", candidate: "Majanicho", want: 0},
		{name: "empty", candidate: "   ", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scorer.NameScore(tt.candidate, entity))
		})
	}
}

func TestDistanceScore(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		km   float64
		want float64
	}{
		{0, 100},
		{0.999, 100},
		{1, 80},
		{1.5, 80},
		{2, 60},
		{4.99, 60},
		{5, 40},
		{9.99, 40},
		{10, 0},
		{250, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, scorer.DistanceScore(tt.km), "distance %.3f km", tt.km)
	}
}

func TestScoreCombinesWeights(t *testing.T) {
	scorer := NewScorer()
	entity := CanonicalEntity{ID: "majanicho", PrimaryName: "Majanicho", Position: geo.Position{Lat: 28.73, Lng: -13.94}}
	candidate := CandidateRecord{Name: "Majanicho", Position: geo.Position{Lat: 28.73, Lng: -13.94}}

	b := scorer.Score(candidate, entity)
	assert.Equal(t, 100.0, b.NameScore)
	assert.Equal(t, 100.0, b.DistanceScore)
	assert.InDelta(t, 100.0, b.Score, 1e-9)

	// 3 km away: 0.7*100 + 0.3*60
	candidate.Position = geo.Position{Lat: 28.73 + 3/111.19492664455873, Lng: -13.94}
	b = scorer.Score(candidate, entity)
	assert.InDelta(t, 3.0, b.DistanceKm, 1e-6)
	assert.InDelta(t, 88.0, b.Score, 1e-9)
}

func TestScoreBounded(t *testing.T) {
	heavy := NewScorerWithConfig(&FeatureWeights{
		NameWeight:     2,
		DistanceWeight: 2,
		ExactName:      100,
		SubstringName:  70,
		SharedToken:    50,
		MinTokenLength: 3,
		OverrideScore:  90,
		DistanceBands:  []DistanceBand{{MaxKm: 1, Score: 100}},
	})
	negative := NewScorerWithConfig(&FeatureWeights{
		NameWeight:     -1,
		DistanceWeight: 0.3,
		ExactName:      100,
		MinTokenLength: 3,
		DistanceBands:  []DistanceBand{{MaxKm: 1, Score: 0}},
	})

	entities := []CanonicalEntity{
		{ID: "a", PrimaryName: "Punta Elena", Position: geo.Position{Lat: 28.7, Lng: -13.9}},
		{ID: "b", PrimaryName: "Los Lobos", Position: geo.Position{Lat: 28.75, Lng: -13.82}},
		{ID: "c", PrimaryName: "", Position: geo.Position{Lat: -45, Lng: 170}},
	}
	candidates := []CandidateRecord{
		{Name: "Punta Elena", Position: geo.Position{Lat: 28.7, Lng: -13.9}},
		{Name: "Lobos", Position: geo.Position{Lat: 28.7501, Lng: -13.8201}},
		{Name: "", Position: geo.Position{Lat: 0, Lng: 0}},
	}

	for _, s := range []*Scorer{NewScorer(), heavy, negative} {
		for _, c := range candidates {
			for _, e := range entities {
				b := s.Score(c, e)
				assert.GreaterOrEqual(t, b.Score, 0.0)
				assert.LessOrEqual(t, b.Score, 100.0)
			}
		}
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Exact name match, 0.5km from existing coordinates",
		describe(ScoreBreakdown{NameScore: 100, DistanceScore: 100, DistanceKm: 0.5}))
	assert.Equal(t, "Partial name match, 3.0km from existing coordinates",
		describe(ScoreBreakdown{NameScore: 70, DistanceScore: 60, DistanceKm: 3}))
	assert.Equal(t, "Close proximity (1.2km), partial name match",
		describe(ScoreBreakdown{NameScore: 50, DistanceScore: 80, DistanceKm: 1.2}))
	assert.Equal(t, "Weak match: 7.0km, name similarity 50%",
		describe(ScoreBreakdown{NameScore: 50, DistanceScore: 40, DistanceKm: 7}))
}
