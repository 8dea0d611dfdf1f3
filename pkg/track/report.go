// Package track holds per-aircraft position history until it is old enough to
// analyse.
package track

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformedReport is returned when a report lacks the fields every track
// needs (identity, time, usable position).
var ErrMalformedReport = errors.New("malformed position report")

// ErrDuplicateReport is returned when a track already holds a report observed
// at the same instant, as happens when a source repeats a stale position.
var ErrDuplicateReport = errors.New("duplicate position report")

// Report is one observation of one aircraft at one instant.
type Report struct {
	// ObservedAt is when the position was observed
	ObservedAt time.Time

	// TrackID is the stable aircraft identity (24-bit ICAO transponder address)
	TrackID string

	// Callsign is the flight number, if broadcast
	Callsign string

	// Registration is the tail number, if known
	Registration string

	// Altitude in feet, nil when unknown or reported as "ground"
	Altitude *int

	// Latitude and Longitude in decimal degrees
	Latitude  float64
	Longitude float64

	// Heading is the ground track in degrees [0, 360), nil when not reported
	Heading *float64
}

// HasHeading reports whether the report carries a usable heading.
func (r Report) HasHeading() bool {
	return r.Heading != nil && !math.IsNaN(*r.Heading) && !math.IsInf(*r.Heading, 0)
}

// Validate checks the fields required to place the report in a track.
func (r Report) Validate() error {
	if r.TrackID == "" {
		return fmt.Errorf("%w: missing track id", ErrMalformedReport)
	}
	if r.ObservedAt.IsZero() {
		return fmt.Errorf("%w: %s has no observation time", ErrMalformedReport, r.TrackID)
	}
	if !validCoordinate(r.Latitude, 90) || !validCoordinate(r.Longitude, 180) {
		return fmt.Errorf("%w: %s has invalid position (%v, %v)",
			ErrMalformedReport, r.TrackID, r.Latitude, r.Longitude)
	}
	return nil
}

func validCoordinate(v, limit float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -limit && v <= limit
}
