package coordinates

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDistanceNauticalMiles tests great-circle distances between known points
func TestDistanceNauticalMiles(t *testing.T) {
	tests := []struct {
		name      string
		from, to  Geographic
		want      float64 // nautical miles
		tolerance float64
	}{
		{"Same point", Geographic{48.6, 2.67}, Geographic{48.6, 2.67}, 0, 1e-9},
		{"One degree of latitude", Geographic{0, 0}, Geographic{1, 0}, 60.11, 0.01},
		{"One degree of longitude at equator", Geographic{0, 0}, Geographic{0, 1}, 60.11, 0.01},
		{"CDG to LHR", Geographic{49.0097, 2.5479}, Geographic{51.4700, -0.4543}, 188, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DistanceNauticalMiles(tt.from, tt.to), tt.tolerance)
			assert.InDelta(t, tt.want, DistanceNauticalMiles(tt.to, tt.from), tt.tolerance)
		})
	}
}

func TestBearing(t *testing.T) {
	origin := Geographic{0, 0}
	assert.InDelta(t, 0, Bearing(origin, Geographic{1, 0}), 1e-9)
	assert.InDelta(t, 90, Bearing(origin, Geographic{0, 1}), 1e-9)
	assert.InDelta(t, 180, Bearing(origin, Geographic{-1, 0}), 1e-9)
	assert.InDelta(t, 270, Bearing(origin, Geographic{0, -1}), 1e-9)
}

func TestWithinRadius(t *testing.T) {
	center := Geographic{48.6058, 2.6717}
	assert.True(t, WithinRadius(center, Geographic{48.70, 2.6717}, 25))
	assert.False(t, WithinRadius(center, Geographic{49.50, 2.6717}, 25))
}
