package heading

// Segment is a maximal contiguous run of samples whose value range stays
// within the configured width.
type Segment struct {
	// Start is the index of the first sample in the run
	Start int

	// End is the index of the last sample in the run (inclusive)
	End int

	// Values are the samples Start..End, copied from the input
	Values []float64

	// Min and Max are the extreme values of the run
	Min float64
	Max float64
}

// Len returns the number of samples in the segment.
func (s Segment) Len() int {
	return s.End - s.Start + 1
}

// Range returns Max - Min.
func (s Segment) Range() float64 {
	return s.Max - s.Min
}

// SegmentParams controls plateau detection.
type SegmentParams struct {
	// RangeWidth is the largest allowed max-min spread inside a segment, in degrees
	RangeWidth float64

	// MinSize is the smallest number of samples a segment must hold to be kept
	MinSize int
}

// Segments partitions an (unwrapped) heading sequence into plateaus.
//
// The scan is greedy and single pass: starting at the current index, the
// candidate run grows one sample at a time for as long as its spread stays
// within RangeWidth. The sample that would break the bound is not included.
// Runs shorter than MinSize are dropped and their samples are not reused;
// scanning resumes right after the dropped run.
//
// Returned segments never overlap and have strictly increasing Start.
func Segments(values []float64, p SegmentParams) []Segment {
	minSize := p.MinSize
	if minSize < 1 {
		minSize = 1
	}
	if len(values) < minSize {
		return nil
	}

	var segments []Segment
	i := 0
	for i < len(values) {
		start, end := i, i
		lo, hi := values[i], values[i]

		for end+1 < len(values) {
			next := values[end+1]
			nlo, nhi := min(lo, next), max(hi, next)
			if nhi-nlo > p.RangeWidth {
				break
			}
			lo, hi = nlo, nhi
			end++
		}

		if end-start+1 >= minSize {
			vals := make([]float64, end-start+1)
			copy(vals, values[start:end+1])
			segments = append(segments, Segment{
				Start:  start,
				End:    end,
				Values: vals,
				Min:    lo,
				Max:    hi,
			})
		}

		i = end + 1
	}

	return segments
}
