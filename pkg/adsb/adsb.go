package adsb

import (
	"context"
	"strings"
	"time"

	"github.com/unklstewy/ads-bturns/pkg/track"
)

// Aircraft is one aircraft state vector as served by a readsb-style API.
// Optional fields are nil when the source did not report them.
type Aircraft struct {
	// ICAO is the 24-bit ICAO address in hex (e.g., "39c4a1")
	ICAO string

	// Callsign is the transmitted flight identification, trimmed
	Callsign string

	// Registration is the tail number from the source's database
	Registration string

	// Latitude and Longitude in decimal degrees; nil without a position
	Latitude  *float64
	Longitude *float64

	// AltitudeFt is barometric altitude in feet; nil when unknown or on ground
	AltitudeFt *int

	// OnGround is set when the source reported "ground" as altitude
	OnGround bool

	// Track is the ground track in degrees (0 = North, 90 = East)
	Track *float64

	// LastSeen is the time of the last message from the aircraft
	LastSeen time.Time
}

// HasPosition reports whether the aircraft carries a position.
func (a Aircraft) HasPosition() bool {
	return a.Latitude != nil && a.Longitude != nil
}

// Report converts the aircraft into a position report.
func (a Aircraft) Report() track.Report {
	r := track.Report{
		ObservedAt:   a.LastSeen,
		TrackID:      strings.ToLower(a.ICAO),
		Callsign:     a.Callsign,
		Registration: a.Registration,
		Altitude:     a.AltitudeFt,
		Heading:      a.Track,
	}
	if a.HasPosition() {
		r.Latitude = *a.Latitude
		r.Longitude = *a.Longitude
	}
	return r
}

// DataSource is the interface that all ADS-B data providers must implement.
type DataSource interface {
	// GetAircraft returns all currently tracked aircraft within a given radius.
	// centerLat/centerLon define the search center in decimal degrees.
	// radiusNM is the search radius in nautical miles.
	GetAircraft(ctx context.Context, centerLat, centerLon, radiusNM float64) ([]Aircraft, error)

	// Close cleanly shuts down the data source connection.
	Close() error
}
