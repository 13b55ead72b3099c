package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(nil)

	tests := []struct {
		name     string
		score    float64
		distance float64
		want     ConfidenceTier
	}{
		{name: "high", score: 85, distance: 1.99, want: ConfidenceHigh},
		{name: "high score but too far", score: 100, distance: 2, want: ConfidenceMedium},
		{name: "medium by score", score: 60, distance: 40, want: ConfidenceMedium},
		{name: "medium by score and distance", score: 50, distance: 4.9, want: ConfidenceMedium},
		{name: "alternate medium too far", score: 50, distance: 5, want: ConfidenceLow},
		{name: "low", score: 49.9, distance: 0, want: ConfidenceLow},
		{name: "override at 3km", score: 90, distance: 3, want: ConfidenceMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.score, tt.distance))
		})
	}
}

func TestClassifyMonotonicInScore(t *testing.T) {
	c := NewClassifier(nil)
	for _, d := range []float64{0, 0.5, 1.99, 2, 3, 4.99, 5, 12, 300} {
		prev := ConfidenceLow
		for s := 0.0; s <= 100; s += 0.5 {
			tier := c.Classify(s, d)
			assert.True(t, AtLeast(tier, prev), "score %.1f at %.2f km downgraded %s to %s", s, d, prev, tier)
			prev = tier
		}
	}
}

func TestParseConfidence(t *testing.T) {
	tier, ok := ParseConfidence(" high ")
	assert.True(t, ok)
	assert.Equal(t, ConfidenceHigh, tier)

	_, ok = ParseConfidence("certain")
	assert.False(t, ok)
}
