// Package detect runs the turn-detection pipeline over tracks that the track
// store has released: plateau segmentation, transition filtering, turn-point
// estimation and emission.
package detect

import (
	"errors"

	"github.com/google/uuid"

	"github.com/unklstewy/ads-bturns/pkg/heading"
	"github.com/unklstewy/ads-bturns/pkg/track"
	"github.com/unklstewy/ads-bturns/pkg/turn"
)

// DefaultMinValidHeadings is the fewest heading samples worth segmenting.
const DefaultMinValidHeadings = 6

// Params holds the detection thresholds.
type Params struct {
	// SegmentRangeWidth is the widest heading spread inside a plateau (degrees)
	SegmentRangeWidth float64

	// SegmentMinSize is the fewest samples a plateau must hold
	SegmentMinSize int

	// MinValidHeadings is the fewest heading-bearing reports a track needs
	MinValidHeadings int

	// TransitionMinAngle is the noise floor below which a plateau change is not a turn (degrees)
	TransitionMinAngle float64
}

// Analysis is the detailed outcome of analysing one track.
type Analysis struct {
	// Reports are the heading-bearing reports, in time order; transition
	// indices refer to this slice
	Reports []track.Report

	// Unwrapped is the phase-unwrapped heading series
	Unwrapped []float64

	Segments  []heading.Segment
	Confirmed []heading.Transition
	Discarded []heading.Transition

	// Unresolved counts confirmed transitions the estimator could not locate
	Unresolved int

	Events []turn.Event
}

// Analyzer finds turns in a single, complete track.
type Analyzer struct {
	params    Params
	estimator *turn.Estimator
	newID     func() uuid.UUID
}

// NewAnalyzer creates an analyzer with the given thresholds and estimator.
func NewAnalyzer(p Params, estimator *turn.Estimator) *Analyzer {
	if p.MinValidHeadings <= 0 {
		p.MinValidHeadings = DefaultMinValidHeadings
	}
	return &Analyzer{
		params:    p,
		estimator: estimator,
		newID:     uuid.New,
	}
}

// Analyze returns the turn events found in t. A track with too few
// heading-bearing reports yields no events and no error.
func (a *Analyzer) Analyze(t track.Track) ([]turn.Event, error) {
	res, err := a.AnalyzeDetailed(t)
	if err != nil {
		return nil, err
	}
	return res.Events, nil
}

// AnalyzeDetailed is Analyze with the intermediate results exposed.
func (a *Analyzer) AnalyzeDetailed(t track.Track) (Analysis, error) {
	t.Reports = append([]track.Report(nil), t.Reports...)
	t.SortByTime()

	var res Analysis
	for _, r := range t.Reports {
		if r.HasHeading() {
			res.Reports = append(res.Reports, r)
		}
	}
	if len(res.Reports) < a.params.MinValidHeadings {
		return res, nil
	}

	raw := make([]float64, len(res.Reports))
	for i, r := range res.Reports {
		raw[i] = *r.Heading
	}
	res.Unwrapped = heading.Unwrap(raw)

	res.Segments = heading.Segments(res.Unwrapped, heading.SegmentParams{
		RangeWidth: a.params.SegmentRangeWidth,
		MinSize:    a.params.SegmentMinSize,
	})
	res.Confirmed, res.Discarded = heading.Filter(
		heading.Transitions(res.Segments), res.Unwrapped, a.params.TransitionMinAngle)

	for _, tr := range res.Confirmed {
		from, to := res.Reports[tr.From], res.Reports[tr.To]

		est, err := a.estimator.Estimate(from, to)
		if errors.Is(err, turn.ErrNoIntersection) {
			res.Unresolved++
			continue
		}
		if err != nil {
			return res, err
		}

		res.Events = append(res.Events, turn.Event{
			ID:            a.newID(),
			Time:          est.Time,
			TrackID:       t.ID,
			Callsign:      from.Callsign,
			Registration:  from.Registration,
			Latitude:      est.Point.Lat(),
			Longitude:     est.Point.Lon(),
			HeadingChange: tr.Delta(res.Unwrapped),
			Method:        est.Method,
		})
	}

	return res, nil
}
