package adsb

import (
	"context"

	"github.com/unklstewy/ads-bturns/pkg/coordinates"
	"github.com/unklstewy/ads-bturns/pkg/track"
)

// Area is the monitored circle.
type Area struct {
	Center   coordinates.Geographic
	RadiusNM float64
}

// AltitudeWindow bounds reported barometric altitude, inclusive, in feet.
// Reports without a numeric altitude are not filtered.
type AltitudeWindow struct {
	MinFt int
	MaxFt int
}

// Contains reports whether alt passes the window.
func (w AltitudeWindow) Contains(alt *int) bool {
	if alt == nil {
		return true
	}
	return *alt >= w.MinFt && *alt <= w.MaxFt
}

// PollStats counts what one poll received and dropped.
type PollStats struct {
	Received    int
	NoPosition  int
	OutOfArea   int
	OutOfWindow int
	Accepted    int
}

// Poller queries a DataSource for an area and turns the answer into
// position reports for the track store.
type Poller struct {
	source DataSource
	area   Area
	window AltitudeWindow
	retry  RetryConfig
}

// NewPoller creates a poller.
func NewPoller(source DataSource, area Area, window AltitudeWindow, retry RetryConfig) *Poller {
	return &Poller{
		source: source,
		area:   area,
		window: window,
		retry:  retry,
	}
}

// Poll fetches the area once, retrying transient failures, and returns the
// reports that have a position inside the area and pass the altitude window.
func (p *Poller) Poll(ctx context.Context) ([]track.Report, PollStats, error) {
	var stats PollStats

	aircraft, err := RetryWithBackoffResult(ctx, p.retry, func() ([]Aircraft, error) {
		return p.source.GetAircraft(ctx, p.area.Center.Latitude, p.area.Center.Longitude, p.area.RadiusNM)
	})
	if err != nil {
		return nil, stats, err
	}

	stats.Received = len(aircraft)
	reports := make([]track.Report, 0, len(aircraft))
	for _, ac := range aircraft {
		if !ac.HasPosition() {
			stats.NoPosition++
			continue
		}

		pos := coordinates.Geographic{Latitude: *ac.Latitude, Longitude: *ac.Longitude}
		if !coordinates.WithinRadius(p.area.Center, pos, p.area.RadiusNM) {
			stats.OutOfArea++
			continue
		}

		if !p.window.Contains(ac.AltitudeFt) {
			stats.OutOfWindow++
			continue
		}

		reports = append(reports, ac.Report())
	}
	stats.Accepted = len(reports)

	return reports, stats, nil
}
