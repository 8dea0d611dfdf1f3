package coordinates

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Constants for distance conversions
const (
	// MetersPerNauticalMile is exact by definition
	MetersPerNauticalMile = 1852.0

	// FeetToMeters converts feet to meters
	FeetToMeters = 0.3048
)

// Geographic represents a position on Earth's surface.
// Uses the WGS84 coordinate system (same as GPS).
type Geographic struct {
	// Latitude in decimal degrees (-90 to +90)
	// Positive = North, Negative = South
	Latitude float64

	// Longitude in decimal degrees (-180 to +180)
	// Positive = East, Negative = West
	Longitude float64
}

// Point returns g as an orb point (longitude, latitude).
func (g Geographic) Point() orb.Point {
	return orb.Point{g.Longitude, g.Latitude}
}

// Bearing calculates the initial bearing (forward azimuth) from one point to another.
// Returns bearing in degrees (0-360), where 0/360 = North, 90 = East, 180 = South, 270 = West.
func Bearing(from, to Geographic) float64 {
	bearing := geo.Bearing(from.Point(), to.Point())
	if bearing < 0 {
		bearing += 360
	}
	return bearing
}

// DistanceNauticalMiles calculates the great-circle distance between two points
// with the haversine formula.
func DistanceNauticalMiles(from, to Geographic) float64 {
	return geo.DistanceHaversine(from.Point(), to.Point()) / MetersPerNauticalMile
}

// WithinRadius reports whether p lies within radiusNM of center.
func WithinRadius(center, p Geographic, radiusNM float64) bool {
	return DistanceNauticalMiles(center, p) <= radiusNM
}
