// Package turn locates turns geometrically and defines the turn event record
// and its ledgers.
//
// The flight path around a turn is modelled as two rays in a local planar
// (equirectangular) projection: one leaving the last stable-heading report
// before the turn along its heading, and one projected backwards from the
// first stable-heading report after the turn. Their intersection is the turn
// point.
package turn

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/unklstewy/ads-bturns/pkg/heading"
	"github.com/unklstewy/ads-bturns/pkg/track"
)

// DefaultRayExtensionKm is how far each ray is projected.
const DefaultRayExtensionKm = 100.0

// ErrNoIntersection is returned by Estimate when the rays have no single
// intersection point and the policy is FallbackDiscard.
var ErrNoIntersection = errors.New("rays do not intersect")

// FallbackPolicy decides what happens when the two rays do not meet.
type FallbackPolicy string

const (
	// FallbackDiscard drops the transition
	FallbackDiscard FallbackPolicy = "discard"

	// FallbackMidpoint substitutes the midpoint of the two reports
	FallbackMidpoint FallbackPolicy = "midpoint"
)

// ParseFallbackPolicy parses a configured policy name.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch p := FallbackPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case FallbackDiscard, FallbackMidpoint:
		return p, nil
	default:
		return "", fmt.Errorf("unknown fallback policy %q (want %q or %q)", s, FallbackDiscard, FallbackMidpoint)
	}
}

// Method records how a turn point was obtained.
type Method string

const (
	MethodIntersection Method = "intersection"
	MethodMidpoint     Method = "midpoint"
)

// Estimate is a located turn point.
type Estimate struct {
	Point  orb.Point // lon, lat
	Time   time.Time
	Method Method
}

// Estimator turns a confirmed transition into a point and a time.
type Estimator struct {
	extensionKm float64
	fallback    FallbackPolicy
	logf        func(format string, args ...any)
}

// NewEstimator creates an estimator. A non-positive extension falls back to
// DefaultRayExtensionKm.
func NewEstimator(extensionKm float64, fallback FallbackPolicy) *Estimator {
	if extensionKm <= 0 {
		extensionKm = DefaultRayExtensionKm
	}
	return &Estimator{
		extensionKm: extensionKm,
		fallback:    fallback,
		logf:        log.Printf,
	}
}

// Policy returns the configured fallback policy.
func (e *Estimator) Policy() FallbackPolicy {
	return e.fallback
}

// Estimate locates the turn between report from (last sample of the plateau
// before the turn) and report to (first sample of the plateau after it).
// Both reports must carry a heading.
func (e *Estimator) Estimate(from, to track.Report) (Estimate, error) {
	if !from.HasHeading() || !to.HasHeading() {
		return Estimate{}, fmt.Errorf("cannot estimate turn for %s: missing heading", from.TrackID)
	}

	mid := from.ObservedAt.Add(to.ObservedAt.Sub(from.ObservedAt) / 2)

	p1 := orb.Point{from.Longitude, from.Latitude}
	q1 := orb.Point{to.Longitude, to.Latitude}
	rayA := ExtendRay(p1, *from.Heading, e.extensionKm)
	rayB := ExtendRay(q1, heading.Normalize(*to.Heading+180), e.extensionKm)

	if pt, ok := Intersect(rayA, rayB); ok {
		return Estimate{Point: pt, Time: mid, Method: MethodIntersection}, nil
	}

	e.logf("[Fallback] %s: no intersection (policy %s)", from.TrackID, e.fallback)
	e.logf("  Point i: lat=%.6f, lon=%.6f, track=%.1f", from.Latitude, from.Longitude, *from.Heading)
	e.logf("  Point j: lat=%.6f, lon=%.6f, track(opposite)=%.1f",
		to.Latitude, to.Longitude, heading.Normalize(*to.Heading+180))
	e.logf("  Line1: %v -> %v", rayA[0], rayA[1])
	e.logf("  Line2: %v -> %v", rayB[0], rayB[1])

	if e.fallback != FallbackMidpoint {
		return Estimate{}, ErrNoIntersection
	}

	return Estimate{
		Point:  orb.Point{(p1.Lon() + q1.Lon()) / 2, (p1.Lat() + q1.Lat()) / 2},
		Time:   mid,
		Method: MethodMidpoint,
	}, nil
}
