package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantIdentity string
		wantFallback string
	}{
		{
			name:         "stop words removed only in identity mode",
			input:        "Playa de La Pared",
			wantIdentity: "pared",
			wantFallback: "playa de la pared",
		},
		{
			name:         "accents folded",
			input:        "Playa del Águila",
			wantIdentity: "aguila",
			wantFallback: "playa del aguila",
		},
		{
			name:         "standalone hyphen becomes a separator",
			input:        "Playa Ultima - El Cotillo",
			wantIdentity: "ultima cotillo",
			wantFallback: "playa ultima el cotillo",
		},
		{
			name:         "internal hyphen kept",
			input:        "North-Shore Reef!",
			wantIdentity: "north-shore reef",
			wantFallback: "north-shore reef",
		},
		{
			name:         "apostrophe dropped in place",
			input:        "Rocky's Point",
			wantIdentity: "rockys point",
			wantFallback: "rockys point",
		},
		{
			name:         "directional words survive",
			input:        "El Hierro North",
			wantIdentity: "hierro north",
			wantFallback: "el hierro north",
		},
		{
			name:         "separators collapsed",
			input:        "  Majanicho,,  (Left)  ",
			wantIdentity: "majanicho left",
			wantFallback: "majanicho left",
		},
		{
			name:         "only stop words",
			input:        "Playa de la",
			wantIdentity: "",
			wantFallback: "playa de la",
		},
		{
			name:         "blank input",
			input:        "   ",
			wantIdentity: "",
			wantFallback: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantIdentity, Name(tt.input, ModeIdentity))
			assert.Equal(t, tt.wantFallback, Name(tt.input, ModeFallback))
		})
	}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"cotillo", "lagos"}, Tokens("El Cotillo Lagos", ModeIdentity))
	assert.Empty(t, Tokens("", ModeFallback))
}

func TestContainsEither(t *testing.T) {
	assert.True(t, ContainsEither("playa machanicho", "machanicho"))
	assert.True(t, ContainsEither("cotillo", "el cotillo"))
	assert.False(t, ContainsEither("", "cotillo"))
	assert.False(t, ContainsEither("cotillo", ""))
	assert.False(t, ContainsEither("lobos", "majanicho"))
}

func TestIsStopWord(t *testing.T) {
	assert.True(t, IsStopWord("beach"))
	assert.False(t, IsStopWord("north"))
}
