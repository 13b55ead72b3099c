package match

// Classifier maps a (score, distance) pair onto a confidence tier.
// It holds no state beyond its thresholds.
type Classifier struct {
	tiers *MatchTiers
}

// NewClassifier creates a classifier; nil tiers select the defaults.
func NewClassifier(tiers *MatchTiers) *Classifier {
	if tiers == nil {
		tiers = DefaultTiers()
	}
	return &Classifier{tiers: tiers}
}

// Classify returns HIGH only when both the score and the distance corroborate,
// MEDIUM for strong name or combined evidence, and LOW otherwise.
func (c *Classifier) Classify(score, distanceKm float64) ConfidenceTier {
	t := c.tiers
	if score >= t.HighMinScore && distanceKm < t.HighMaxDistanceKm {
		return ConfidenceHigh
	}
	if score >= t.MediumMinScore || (score >= t.MediumAltMinScore && distanceKm < t.MediumAltMaxDistance) {
		return ConfidenceMedium
	}
	return ConfidenceLow
}

// AtLeast reports whether tier is at least as strong as min.
func AtLeast(tier, min ConfidenceTier) bool {
	return tier.rank() >= min.rank()
}
