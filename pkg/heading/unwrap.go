// Package heading turns a noisy, circular heading series into stable-heading
// plateaus and the transitions between them.
//
// Headings are modular (0° == 360°). The package resolves that once, up front,
// by phase-unwrapping the whole series; every later comparison (plateau width,
// transition angle) works on the unwrapped, real-valued sequence.
package heading

import "math"

// Unwrap removes artificial 360° jumps from a heading sequence in degrees.
//
// Each sample after the first is shifted by a multiple of 360° so that no two
// consecutive output values differ by more than 180°. The difference between
// consecutive outputs is always congruent (mod 360°) to the raw difference.
// An exact ±180° step keeps the sign of the raw step.
//
// The input slice is not modified.
func Unwrap(headings []float64) []float64 {
	out := make([]float64, len(headings))
	if len(headings) == 0 {
		return out
	}

	out[0] = headings[0]
	offset := 0.0
	for i := 1; i < len(headings); i++ {
		d := headings[i] - headings[i-1]

		// Wrap the raw step into [-180, 180)
		wrapped := math.Mod(d+180, 360)
		if wrapped < 0 {
			wrapped += 360
		}
		wrapped -= 180
		if wrapped == -180 && d > 0 {
			wrapped = 180
		}

		if math.Abs(d) >= 180 {
			offset += wrapped - d
		}
		out[i] = headings[i] + offset
	}

	return out
}

// Normalize re-wraps a heading into [0, 360) for display.
func Normalize(deg float64) float64 {
	n := math.Mod(deg, 360)
	if n < 0 {
		n += 360
	}
	return n
}
