// SPDX-License-Identifier: MIT
package conditioning

import "math"

// LevelResult is the RMS measurement of one block.
type LevelResult struct {
	RMS      float64 // Root mean square in int16 sample units.
	Count    int     // Samples the RMS was computed over.
	Fallback bool    // True when too few samples survived spike filtering.
}

// MeasureLevel returns the RMS of the corrected block over its non-spike
// samples. corrected holds zeros at spike positions, so they add nothing to
// the sum of squares and only the divisor needs the spike count.
//
// When fewer than half of the samples are non-spike, the RMS is recomputed
// over every raw sample around the full-block mean instead of being
// estimated from the few survivors.
func MeasureLevel(raw, corrected []int16, spikes int) LevelResult {
	n := len(raw)
	if n == 0 {
		return LevelResult{}
	}

	valid := n - spikes
	if valid*2 < n {
		return fullBlockLevel(raw)
	}

	var sumSq uint64
	for _, s := range corrected[:n] {
		v := int64(s)
		sumSq += uint64(v * v)
	}
	return LevelResult{
		RMS:   math.Sqrt(float64(sumSq) / float64(valid)),
		Count: valid,
	}
}

// fullBlockLevel ignores the spike classification entirely.
func fullBlockLevel(raw []int16) LevelResult {
	var sum int64
	for _, s := range raw {
		sum += int64(s)
	}
	mean := float64(sum) / float64(len(raw))

	var sumSq float64
	for _, s := range raw {
		d := float64(s) - mean
		sumSq += d * d
	}
	return LevelResult{
		RMS:      math.Sqrt(sumSq / float64(len(raw))),
		Count:    len(raw),
		Fallback: true,
	}
}

// RMS returns the plain root mean square of samples.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSq uint64
	for _, s := range samples {
		v := int64(s)
		sumSq += uint64(v * v)
	}
	return math.Sqrt(float64(sumSq) / float64(len(samples)))
}
