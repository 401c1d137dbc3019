// SPDX-License-Identifier: MIT
/*
Package conditioning turns raw microphone blocks into clean, stable signal:

	raw block -> spike filter -> DC correction -> level (RMS) -> noise gate
	                                                         \-> loudness smoother

Spike policy: a sample whose magnitude reaches the spike threshold is a
capture glitch. It is replaced by zero in the conditioned block and excluded
from the DC and RMS statistics.

Gate policy: while the gate is closed the whole conditioned block is zeroed,
so downstream analysis sees silence and the loudness input is zero.

All types here are single-owner: the pipeline serialises frames and nothing
in this package locks.
*/
package conditioning

// IsSpike reports whether sample lies outside the open interval
// (-threshold, threshold).
func IsSpike(sample int16, threshold int) bool {
	s := int(sample)
	return s <= -threshold || s >= threshold
}

// FilterSpikes copies in to out, replacing every spike with zero, and
// returns the number of spikes. out must be at least as long as in; the two
// may alias.
func FilterSpikes(in, out []int16, threshold int) int {
	spikes := 0
	for i, s := range in {
		if IsSpike(s, threshold) {
			out[i] = 0
			spikes++
			continue
		}
		out[i] = s
	}
	return spikes
}

// CountSpikes returns the number of spikes in in without modifying it.
func CountSpikes(in []int16, threshold int) int {
	spikes := 0
	for _, s := range in {
		if IsSpike(s, threshold) {
			spikes++
		}
	}
	return spikes
}
