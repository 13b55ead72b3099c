package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// Bounds is an optional lat/lng rectangle that plausible positions must fall in.
type Bounds struct {
	MinLat float64 `toml:"min_lat" json:"min_lat"`
	MaxLat float64 `toml:"max_lat" json:"max_lat"`
	MinLng float64 `toml:"min_lng" json:"min_lng"`
	MaxLng float64 `toml:"max_lng" json:"max_lng"`
}

// IsZero reports whether no bounds were configured.
func (b Bounds) IsZero() bool {
	return b == Bounds{}
}

// Bound converts to an orb.Bound.
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLng, b.MinLat},
		Max: orb.Point{b.MaxLng, b.MaxLat},
	}
}

// Contains reports whether p lies inside the rectangle (edges included).
// Zero bounds contain everything.
func (b Bounds) Contains(p Position) bool {
	if b.IsZero() {
		return true
	}
	return b.Bound().Contains(p.Point())
}

// InRange reports whether p is a finite coordinate within ±90 / ±180.
func InRange(p Position) bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
