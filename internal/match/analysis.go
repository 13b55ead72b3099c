package match

import (
	"sort"
	"strings"

	"github.com/xrash/smetrics"

	"github.com/spotmatch/internal/geo"
	"github.com/spotmatch/internal/normalize"
	"github.com/spotmatch/internal/phonetics"
)

// AnalysisOptions bounds the search for curation hints around unmatched entities
type AnalysisOptions struct {
	RadiusKm         float64 `toml:"radius_km"`          // 10 km
	StrongDistanceKm float64 `toml:"strong_distance_km"` // 2 km
	MinVariationLen  int     `toml:"min_variation_len"`  // 3
}

// DefaultAnalysisOptions returns the search radius used by the curation tooling
func DefaultAnalysisOptions() *AnalysisOptions {
	return &AnalysisOptions{
		RadiusKm:         10,
		StrongDistanceKm: 2,
		MinVariationLen:  3,
	}
}

// UnmatchedHint is one candidate that might describe an unmatched entity
type UnmatchedHint struct {
	Candidate     CandidateRecord `json:"candidate"`
	DistanceKm    float64         `json:"distance_km"`
	NameVariation bool            `json:"name_variation"`
	SoundsAlike   bool            `json:"sounds_alike"`
	Similarity    float64         `json:"similarity"`
}

// UnmatchedAnalysis collects hints for one canonical entity no source matched
type UnmatchedAnalysis struct {
	Entity         CanonicalEntity `json:"entity"`
	NearbyCount    int             `json:"nearby_count"`
	NameMatchCount int             `json:"name_match_count"`
	StrongCount    int             `json:"strong_count"`
	Hints          []UnmatchedHint `json:"hints"`
}

// Best returns the closest strong hint, if any.
func (a UnmatchedAnalysis) Best(strongDistanceKm float64) (UnmatchedHint, bool) {
	for _, h := range a.Hints {
		if h.DistanceKm <= strongDistanceKm || h.NameVariation {
			return h, true
		}
	}
	return UnmatchedHint{}, false
}

// AnalyzeUnmatched lists, for every entity, the candidates within the search
// radius together with the ones whose names look like a variation of the
// entity's ID. Hints are deduplicated by candidate name and sorted by distance.
func AnalyzeUnmatched(entities []CanonicalEntity, candidates []CandidateRecord, opts *AnalysisOptions) []UnmatchedAnalysis {
	if opts == nil {
		opts = DefaultAnalysisOptions()
	}

	sounds := phonetics.NewSoundKey()
	results := make([]UnmatchedAnalysis, 0, len(entities))
	for _, e := range entities {
		variations := nameVariations(e, opts.MinVariationLen)
		entityName := normalize.Name(e.PrimaryName, normalize.ModeFallback)
		entityKeys := entitySoundKeys(sounds, e)

		analysis := UnmatchedAnalysis{Entity: e, Hints: []UnmatchedHint{}}
		seen := make(map[string]bool)

		for _, c := range candidates {
			if !geo.InRange(c.Position) {
				continue
			}
			d := geo.HaversineKm(e.Position, c.Position)
			if d > opts.RadiusKm {
				continue
			}
			analysis.NearbyCount++

			candName := normalize.Name(c.Name, normalize.ModeFallback)
			isVariation := matchesVariation(candName, variations)
			if isVariation {
				analysis.NameMatchCount++
			}

			if seen[c.Name] {
				continue
			}
			seen[c.Name] = true

			hint := UnmatchedHint{
				Candidate:     c,
				DistanceKm:    d,
				NameVariation: isVariation,
				SoundsAlike:   entityKeys[sounds.Key(c.Name)],
				Similarity:    smetrics.JaroWinkler(entityName, candName, 0.7, 4),
			}
			if hint.DistanceKm <= opts.StrongDistanceKm || hint.NameVariation {
				analysis.StrongCount++
			}
			analysis.Hints = append(analysis.Hints, hint)
		}

		sort.SliceStable(analysis.Hints, func(i, j int) bool {
			return analysis.Hints[i].DistanceKm < analysis.Hints[j].DistanceKm
		})
		results = append(results, analysis)
	}

	return results
}

// entitySoundKeys collects the sound keys of an entity's primary and alternative names
func entitySoundKeys(sounds *phonetics.SoundKey, e CanonicalEntity) map[string]bool {
	keys := make(map[string]bool)
	for _, name := range append([]string{e.PrimaryName}, e.AlternativeNames...) {
		if k := sounds.Key(name); k != "" {
			keys[k] = true
		}
	}
	return keys
}

// nameVariations derives the spellings a source might use for an entity:
// its ID words, the words run together, the first and last word, the
// article-stripped form and the "playa X" / "X beach" / "X surf" forms.
func nameVariations(e CanonicalEntity, minLen int) []string {
	base := normalize.Name(strings.NewReplacer("-", " ", "_", " ").Replace(e.ID), normalize.ModeFallback)
	if base == "" {
		base = normalize.Name(e.PrimaryName, normalize.ModeFallback)
	}
	if base == "" {
		return nil
	}

	words := strings.Fields(base)
	core := []string{base, strings.Join(words, ""), words[len(words)-1], words[0]}
	for _, article := range []string{"el ", "la ", "las ", "los "} {
		if strings.HasPrefix(base, article) {
			core = append(core, strings.TrimPrefix(base, article))
		}
	}
	core = dedupeVariations(core, minLen)

	vars := append([]string{}, core...)
	if !strings.Contains(base, "playa") {
		for _, v := range core {
			vars = append(vars, "playa "+v, v+" beach", v+" surf")
		}
	}
	return dedupeVariations(vars, minLen)
}

func dedupeVariations(vars []string, minLen int) []string {
	out := make([]string, 0, len(vars))
	seen := make(map[string]bool)
	for _, v := range vars {
		if len([]rune(v)) < minLen || seen[v] || normalize.IsStopWord(v) {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func matchesVariation(name string, variations []string) bool {
	for _, v := range variations {
		if normalize.ContainsEither(name, v) {
			return true
		}
	}
	return false
}

// Discrepancy is a correlation whose candidate sits far from the stored position
type Discrepancy struct {
	Correlation CorrelationRecord `json:"correlation"`
	DistanceKm  float64           `json:"distance_km"`
}

// MajorDiscrepancies returns the correlations more than thresholdKm away from
// the stored position, largest first.
func MajorDiscrepancies(correlations []CorrelationRecord, thresholdKm float64) []Discrepancy {
	out := []Discrepancy{}
	for _, c := range correlations {
		if c.DistanceKm > thresholdKm {
			out = append(out, Discrepancy{Correlation: c, DistanceKm: c.DistanceKm})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceKm > out[j].DistanceKm
	})
	return out
}
