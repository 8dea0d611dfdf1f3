package heading

import "math"

// Transition links the last sample of one kept segment (From) to the first
// sample of the next kept segment (To). Samples strictly between From and To
// belong to a transitional zone that no segment kept.
type Transition struct {
	From int
	To   int
}

// Delta returns the signed heading change across the transition, measured on
// the unwrapped sequence the segments were built from.
func (t Transition) Delta(unwrapped []float64) float64 {
	return unwrapped[t.To] - unwrapped[t.From]
}

// Transitions returns one transition per adjacent pair of segments.
// Fewer than two segments yield no transitions.
func Transitions(segments []Segment) []Transition {
	if len(segments) < 2 {
		return nil
	}

	transitions := make([]Transition, 0, len(segments)-1)
	for k := 0; k < len(segments)-1; k++ {
		transitions = append(transitions, Transition{
			From: segments[k].End,
			To:   segments[k+1].Start,
		})
	}
	return transitions
}

// Filter splits transitions into confirmed turns and jitter.
// A transition is discarded when |unwrapped[To] - unwrapped[From]| < minAngle.
func Filter(transitions []Transition, unwrapped []float64, minAngle float64) (confirmed, discarded []Transition) {
	for _, t := range transitions {
		if math.Abs(t.Delta(unwrapped)) < minAngle {
			discarded = append(discarded, t)
			continue
		}
		confirmed = append(confirmed, t)
	}
	return confirmed, discarded
}
