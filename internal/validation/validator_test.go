package validation

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotmatch/internal/geo"
)

func TestValidatePosition(t *testing.T) {
	fuerteventura := geo.Bounds{MinLat: 28.0, MaxLat: 28.85, MinLng: -14.6, MaxLng: -13.8}
	bounded := NewCoordinateValidatorWithRules(Rules{Bounds: fuerteventura})
	open := NewCoordinateValidator()

	tests := []struct {
		name           string
		validator      *CoordinateValidator
		pos            geo.Position
		expectedValid  bool
		expectedReason string
	}{
		{
			name:           "Valid Spot",
			validator:      bounded,
			pos:            geo.Position{Lat: 28.7127, Lng: -13.8395},
			expectedValid:  true,
			expectedReason: "Coordinate valid",
		},
		{
			name:           "Latitude Out Of Range",
			validator:      open,
			pos:            geo.Position{Lat: 95, Lng: 0},
			expectedValid:  false,
			expectedReason: "out of range",
		},
		{
			name:           "Longitude Out Of Range",
			validator:      open,
			pos:            geo.Position{Lat: 0, Lng: 200},
			expectedValid:  false,
			expectedReason: "out of range",
		},
		{
			name:           "NaN",
			validator:      open,
			pos:            geo.Position{Lat: math.NaN(), Lng: -14},
			expectedValid:  false,
			expectedReason: "not a finite number",
		},
		{
			name:           "Infinite",
			validator:      open,
			pos:            geo.Position{Lat: 28, Lng: math.Inf(-1)},
			expectedValid:  false,
			expectedReason: "not a finite number",
		},
		{
			name:           "Outside Bounds",
			validator:      bounded,
			pos:            geo.Position{Lat: 40.4, Lng: -3.7},
			expectedValid:  false,
			expectedReason: "outside bounds",
		},
		{
			name:           "Anywhere Without Bounds",
			validator:      open,
			pos:            geo.Position{Lat: 40.4, Lng: -3.7},
			expectedValid:  true,
			expectedReason: "Coordinate valid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.validator.ValidatePosition(tt.pos)
			assert.Equal(t, tt.expectedValid, result.Valid)
			assert.True(t, strings.Contains(result.Reason, tt.expectedReason),
				"reason %q should contain %q", result.Reason, tt.expectedReason)
			if tt.expectedValid {
				assert.Equal(t, 1.0, result.Confidence)
				assert.NoError(t, tt.validator.Validate(tt.pos))
			} else {
				assert.Zero(t, result.Confidence)
				assert.Error(t, tt.validator.Validate(tt.pos))
			}
		})
	}
}

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		name    string
		input   interface{}
		want    float64
		wantErr bool
	}{
		{name: "float", input: 28.7127, want: 28.7127},
		{name: "int", input: 28, want: 28},
		{name: "numeric string", input: " -13.8395 ", want: -13.8395},
		{name: "json number", input: json.Number("28.5"), want: 28.5},
		{name: "empty string", input: "", wantErr: true},
		{name: "text", input: "north", wantErr: true},
		{name: "nil", input: nil, wantErr: true},
		{name: "bool", input: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCoordinate(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrNotNumeric)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePosition(t *testing.T) {
	p, err := ParsePosition("28.7127", -13.8395)
	require.NoError(t, err)
	assert.Equal(t, geo.Position{Lat: 28.7127, Lng: -13.8395}, p)

	_, err = ParsePosition("NaN", 0.0)
	assert.ErrorIs(t, err, ErrNotNumeric)

	_, err = ParsePosition(28.0, "west")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "longitude")
}
