package turn

import (
	"math"

	"github.com/paulmach/orb"
)

// KmPerDegree is the meridian approximation used by the local flat-earth
// projection: one degree of latitude is about 111 km.
const KmPerDegree = 111.0

// parallelTolerance bounds |r x s| / (|r||s|), the sine of the angle between
// two segments, below which they are treated as parallel.
const parallelTolerance = 1e-12

// ExtendRay returns the segment starting at origin (lon, lat) and running
// distanceKm along headingDeg (0 = north, 90 = east) in an equirectangular
// projection. Longitude displacement is scaled by the cosine of the origin's
// latitude.
func ExtendRay(origin orb.Point, headingDeg, distanceKm float64) orb.LineString {
	theta := headingDeg * math.Pi / 180
	lat := origin.Lat()

	dLat := (distanceKm / KmPerDegree) * math.Cos(theta)
	dLon := (distanceKm / (KmPerDegree * math.Cos(lat*math.Pi/180))) * math.Sin(theta)

	return orb.LineString{origin, {origin.Lon() + dLon, lat + dLat}}
}

// Intersect returns the single point where two 2-point segments cross.
// It returns false when the segments miss each other, are parallel, or are
// collinear (an overlap is not a single point).
func Intersect(a, b orb.LineString) (orb.Point, bool) {
	if len(a) != 2 || len(b) != 2 {
		return orb.Point{}, false
	}

	p, q := a[0], b[0]
	r := orb.Point{a[1][0] - p[0], a[1][1] - p[1]}
	s := orb.Point{b[1][0] - q[0], b[1][1] - q[1]}

	denom := cross(r, s)
	norms := math.Hypot(r[0], r[1]) * math.Hypot(s[0], s[1])
	if norms == 0 || math.Abs(denom) <= parallelTolerance*norms {
		return orb.Point{}, false
	}

	qp := orb.Point{q[0] - p[0], q[1] - p[1]}
	t := cross(qp, s) / denom
	u := cross(qp, r) / denom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return orb.Point{}, false
	}

	return orb.Point{p[0] + t*r[0], p[1] + t*r[1]}, true
}

func cross(a, b orb.Point) float64 {
	return a[0]*b[1] - a[1]*b[0]
}
