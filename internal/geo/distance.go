// Package geo holds the coordinate value type and great-circle math shared by
// the matcher and the consensus builder.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusKm is the mean Earth radius used for every distance in the module.
const EarthRadiusKm = 6371.0

// Position is a WGS84 coordinate in signed decimal degrees.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Point converts the position to an orb point (X=lng, Y=lat).
func (p Position) Point() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// FromPoint converts an orb point back into a Position.
func FromPoint(pt orb.Point) Position {
	return Position{Lat: pt.Lat(), Lng: pt.Lon()}
}

func (p Position) String() string {
	return fmt.Sprintf("%.7f, %.7f", p.Lat, p.Lng)
}

// HaversineKm returns the great-circle distance between a and b in kilometers.
func HaversineKm(a, b Position) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := lat2 - lat1
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// HaversineMeters returns the great-circle distance between a and b in meters.
func HaversineMeters(a, b Position) float64 {
	return HaversineKm(a, b) * 1000
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Weighted is one contribution to a weighted centroid.
type Weighted struct {
	Position Position
	Weight   float64
}

// WeightedCentroid averages latitude and longitude independently by weight.
// It returns false when there is nothing to average.
func WeightedCentroid(points []Weighted) (Position, bool) {
	var totalWeight, lat, lng float64
	for _, p := range points {
		if p.Weight <= 0 {
			continue
		}
		lat += p.Position.Lat * p.Weight
		lng += p.Position.Lng * p.Weight
		totalWeight += p.Weight
	}
	if totalWeight == 0 {
		return Position{}, false
	}
	return Position{Lat: lat / totalWeight, Lng: lng / totalWeight}, true
}

// MaxDeviationMeters returns the largest distance from center to any of the positions.
func MaxDeviationMeters(center Position, positions []Position) float64 {
	var maxDev float64
	for _, p := range positions {
		if d := HaversineMeters(center, p); d > maxDev {
			maxDev = d
		}
	}
	return maxDev
}
