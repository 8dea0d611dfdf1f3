package turn

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/ads-bturns/pkg/track"
)

const tolerance = 1e-4 // degrees

var t0 = time.Date(2025, 6, 12, 14, 0, 0, 0, time.UTC)

func rpt(lat, lon, hdg float64, at time.Duration) track.Report {
	return track.Report{
		ObservedAt: t0.Add(at),
		TrackID:    "39c4a1",
		Callsign:   "AFR1234",
		Latitude:   lat,
		Longitude:  lon,
		Heading:    &hdg,
	}
}

func quietEstimator(km float64, p FallbackPolicy) (*Estimator, *[]string) {
	var lines []string
	e := NewEstimator(km, p)
	e.logf = func(format string, args ...any) { lines = append(lines, format) }
	return e, &lines
}

func TestExtendRay(t *testing.T) {
	tests := []struct {
		name    string
		origin  orb.Point
		heading float64
		km      float64
		want    orb.Point
	}{
		{"North at equator", orb.Point{0, 0}, 0, 111, orb.Point{0, 1}},
		{"East at equator", orb.Point{0, 0}, 90, 111, orb.Point{1, 0}},
		{"South", orb.Point{2, 10}, 180, 55.5, orb.Point{2, 9.5}},
		{"East at 60N stretches longitude", orb.Point{5, 60}, 90, 111, orb.Point{7, 60}},
		{"West at 60N", orb.Point{5, 60}, 270, 55.5, orb.Point{4, 60}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ray := ExtendRay(tt.origin, tt.heading, tt.km)
			require.Len(t, ray, 2)
			assert.Equal(t, tt.origin, ray[0])
			assert.InDelta(t, tt.want.Lon(), ray[1].Lon(), 1e-9)
			assert.InDelta(t, tt.want.Lat(), ray[1].Lat(), 1e-9)
		})
	}
}

func TestIntersect(t *testing.T) {
	tests := []struct {
		name string
		a, b orb.LineString
		want *orb.Point
	}{
		{
			name: "Crossing",
			a:    orb.LineString{{0, 0}, {2, 2}},
			b:    orb.LineString{{0, 2}, {2, 0}},
			want: &orb.Point{1, 1},
		},
		{
			name: "Touching at endpoint",
			a:    orb.LineString{{0, 0}, {1, 0}},
			b:    orb.LineString{{1, 0}, {1, 1}},
			want: &orb.Point{1, 0},
		},
		{
			name: "Lines cross beyond segments",
			a:    orb.LineString{{0, 0}, {1, 1}},
			b:    orb.LineString{{3, 0}, {2, 1}},
		},
		{
			name: "Parallel",
			a:    orb.LineString{{0, 0}, {1, 0}},
			b:    orb.LineString{{0, 1}, {1, 1}},
		},
		{
			name: "Collinear overlap",
			a:    orb.LineString{{0, 0}, {2, 0}},
			b:    orb.LineString{{1, 0}, {3, 0}},
		},
		{
			name: "Degenerate segment",
			a:    orb.LineString{{0, 0}, {0, 0}},
			b:    orb.LineString{{-1, 0}, {1, 0}},
		},
		{
			name: "Not a segment",
			a:    orb.LineString{{0, 0}},
			b:    orb.LineString{{-1, 0}, {1, 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Intersect(tt.a, tt.b)
			if tt.want == nil {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.InDelta(t, 0, planar.Distance(got, *tt.want), 1e-12)
		})
	}
}

func TestEstimateRightAngleTurn(t *testing.T) {
	tests := []struct {
		name   string
		center orb.Point
	}{
		{"Equator", orb.Point{0, 0}},
		{"Paris region", orb.Point{2.67, 48.6}},
		{"Southern hemisphere", orb.Point{151.2, -33.9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := quietEstimator(100, FallbackDiscard)
			// Eastbound toward the corner, then northbound away from it
			from := rpt(tt.center.Lat(), tt.center.Lon()-0.2, 90, 0)
			to := rpt(tt.center.Lat()+0.2, tt.center.Lon(), 0, 2*time.Minute)

			est, err := e.Estimate(from, to)
			require.NoError(t, err)
			assert.Equal(t, MethodIntersection, est.Method)
			assert.InDelta(t, tt.center.Lon(), est.Point.Lon(), tolerance)
			assert.InDelta(t, tt.center.Lat(), est.Point.Lat(), tolerance)
			assert.Equal(t, t0.Add(time.Minute), est.Time)
		})
	}
}

func TestEstimateObliqueTurn(t *testing.T) {
	e, _ := quietEstimator(100, FallbackDiscard)
	// Northeast to the origin, then southeast away from it, symmetric about the corner
	from := rpt(-0.1, -0.1, 45, 0)
	to := rpt(-0.1, 0.1, 135, 90*time.Second)

	est, err := e.Estimate(from, to)
	require.NoError(t, err)
	assert.InDelta(t, 0, est.Point.Lon(), tolerance)
	assert.InDelta(t, 0, est.Point.Lat(), tolerance)
	assert.Equal(t, t0.Add(45*time.Second), est.Time)
}

func TestEstimateFallback(t *testing.T) {
	cases := []struct {
		name     string
		from, to track.Report
	}{
		{"Identical heading, same line", rpt(0, -0.5, 90, 0), rpt(0, 0.5, 90, time.Minute)},
		{"Identical heading, offset lines", rpt(0, -0.5, 90, 0), rpt(0.1, 0.5, 90, time.Minute)},
		{"Rays too short to meet", rpt(0, -3, 90, 0), rpt(3, 0, 0, time.Minute)},
	}

	for _, c := range cases {
		t.Run(c.name+"/discard", func(t *testing.T) {
			e, lines := quietEstimator(100, FallbackDiscard)
			_, err := e.Estimate(c.from, c.to)
			assert.ErrorIs(t, err, ErrNoIntersection)
			assert.NotEmpty(t, *lines, "fallback must be reported")
		})

		t.Run(c.name+"/midpoint", func(t *testing.T) {
			e, lines := quietEstimator(100, FallbackMidpoint)
			est, err := e.Estimate(c.from, c.to)
			require.NoError(t, err)
			assert.Equal(t, MethodMidpoint, est.Method)
			assert.InDelta(t, (c.from.Latitude+c.to.Latitude)/2, est.Point.Lat(), 1e-12)
			assert.InDelta(t, (c.from.Longitude+c.to.Longitude)/2, est.Point.Lon(), 1e-12)
			assert.Equal(t, t0.Add(30*time.Second), est.Time)
			assert.NotEmpty(t, *lines)
		})
	}
}

func TestEstimateMissingHeading(t *testing.T) {
	e, _ := quietEstimator(100, FallbackMidpoint)
	from := rpt(0, 0, 90, 0)
	to := rpt(0, 1, 0, time.Minute)
	to.Heading = nil

	_, err := e.Estimate(from, to)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoIntersection))
}

func TestNewEstimatorDefaults(t *testing.T) {
	e := NewEstimator(0, FallbackMidpoint)
	assert.Equal(t, DefaultRayExtensionKm, e.extensionKm)
	assert.Equal(t, FallbackMidpoint, e.Policy())
}

func TestParseFallbackPolicy(t *testing.T) {
	p, err := ParseFallbackPolicy(" Midpoint ")
	require.NoError(t, err)
	assert.Equal(t, FallbackMidpoint, p)

	p, err = ParseFallbackPolicy("discard")
	require.NoError(t, err)
	assert.Equal(t, FallbackDiscard, p)

	_, err = ParseFallbackPolicy("guess")
	assert.Error(t, err)
}

type recordingEmitter struct {
	events []Event
	err    error
}

func (r *recordingEmitter) Emit(_ context.Context, ev Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func TestEmittersFanOut(t *testing.T) {
	ok1, ok2 := &recordingEmitter{}, &recordingEmitter{}
	broken := &recordingEmitter{err: errors.New("disk full")}
	ev := Event{ID: uuid.New(), TrackID: "39c4a1", Latitude: 48.6, Longitude: 2.6}

	require.NoError(t, Emitters{ok1, ok2}.Emit(context.Background(), ev))
	assert.Len(t, ok1.events, 1)
	assert.Len(t, ok2.events, 1)

	err := Emitters{ok1, broken, ok2}.Emit(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, ok2.events, 2, "a failing ledger must not starve the others")

	var emitErr *EmitError
	require.ErrorAs(t, err, &emitErr)
	assert.True(t, emitErr.Partial())
	assert.Equal(t, 2, emitErr.Written)
	assert.Equal(t, []string{"ledger #2 (*turn.recordingEmitter)"}, emitErr.Failed)
	assert.Contains(t, err.Error(), "ledger #2")

	err = Emitters{broken, broken}.Emit(context.Background(), ev)
	require.ErrorAs(t, err, &emitErr)
	assert.False(t, emitErr.Partial(), "no ledger recorded the turn")
	assert.Len(t, emitErr.Failed, 2)
}

func TestExtendRayPreservesDistanceOnMeridian(t *testing.T) {
	ray := ExtendRay(orb.Point{0, 45}, 0, 100)
	assert.InDelta(t, 100/KmPerDegree, ray[1].Lat()-45, 1e-12)
	assert.False(t, math.IsNaN(ray[1].Lon()))
}
