package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spotmatch/internal/geo"
)

// ParseCoordinate reads one coordinate value as produced by the scrapers:
// a JSON number, a numeric string, or nil for a missing value.
func ParseCoordinate(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, x.String())
		}
		return f, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, fmt.Errorf("%w: empty string", ErrNotNumeric)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, x)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("%w: missing", ErrNotNumeric)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrNotNumeric, v)
	}
}

// ParsePosition reads a latitude/longitude pair.
func ParsePosition(lat, lng interface{}) (geo.Position, error) {
	la, err := ParseCoordinate(lat)
	if err != nil {
		return geo.Position{}, fmt.Errorf("latitude: %w", err)
	}
	lo, err := ParseCoordinate(lng)
	if err != nil {
		return geo.Position{}, fmt.Errorf("longitude: %w", err)
	}
	if math.IsNaN(la) || math.IsNaN(lo) {
		return geo.Position{}, fmt.Errorf("%w: NaN", ErrNotNumeric)
	}
	return geo.Position{Lat: la, Lng: lo}, nil
}
