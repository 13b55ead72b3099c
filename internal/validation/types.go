package validation

import (
	"errors"

	"github.com/spotmatch/internal/geo"
)

// ErrNotNumeric is returned when a coordinate value cannot be read as a number.
var ErrNotNumeric = errors.New("coordinate is not numeric")

// ValidationResult represents the result of a coordinate check
type ValidationResult struct {
	Valid      bool                   `json:"valid"`
	Confidence float64                `json:"confidence"`
	Reason     string                 `json:"reason"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Rules configures coordinate validation
type Rules struct {
	// Bounds restricts accepted positions to a region. The zero value accepts
	// any in-range position.
	Bounds geo.Bounds `toml:"bounds"`
}

// DefaultRules returns rules with no regional restriction
func DefaultRules() Rules {
	return Rules{}
}
