package validation

import (
	"fmt"
	"math"

	"github.com/spotmatch/internal/geo"
)

// CoordinateValidator rejects positions that cannot describe a real spot
type CoordinateValidator struct {
	rules Rules
}

// NewCoordinateValidator creates a validator that accepts any in-range position
func NewCoordinateValidator() *CoordinateValidator {
	return &CoordinateValidator{rules: DefaultRules()}
}

// NewCoordinateValidatorWithRules creates a validator with custom rules
func NewCoordinateValidatorWithRules(rules Rules) *CoordinateValidator {
	return &CoordinateValidator{rules: rules}
}

// Rules returns the rules in use.
func (v *CoordinateValidator) Rules() Rules {
	return v.rules
}

// ValidatePosition checks finiteness, the ±90/±180 range and the configured bounds.
func (v *CoordinateValidator) ValidatePosition(p geo.Position) ValidationResult {
	details := map[string]interface{}{
		"lat": p.Lat,
		"lng": p.Lng,
	}

	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return ValidationResult{
			Valid:   false,
			Reason:  "Coordinate is not a finite number",
			Details: details,
		}
	}

	if !geo.InRange(p) {
		return ValidationResult{
			Valid:   false,
			Reason:  fmt.Sprintf("Coordinate out of range: %s", p),
			Details: details,
		}
	}

	b := v.rules.Bounds
	if !b.Contains(p) {
		details["bounds"] = b
		return ValidationResult{
			Valid:      false,
			Confidence: 0.0,
			Reason:     fmt.Sprintf("Coordinate %s outside bounds [%.4f,%.4f]x[%.4f,%.4f]", p, b.MinLat, b.MaxLat, b.MinLng, b.MaxLng),
			Details:    details,
		}
	}

	return ValidationResult{
		Valid:      true,
		Confidence: 1.0,
		Reason:     "Coordinate valid",
	}
}

// Validate is the error form of ValidatePosition.
func (v *CoordinateValidator) Validate(p geo.Position) error {
	if r := v.ValidatePosition(p); !r.Valid {
		return fmt.Errorf("%s", r.Reason)
	}
	return nil
}
