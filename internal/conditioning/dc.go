// SPDX-License-Identifier: MIT
package conditioning

import "math"

// DCOffset returns the truncated mean of the non-spike samples of in, or
// zero when every sample is a spike.
func DCOffset(in []int16, threshold int) int16 {
	var sum int64
	var count int64
	for _, s := range in {
		if !IsSpike(s, threshold) {
			sum += int64(s)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return int16(sum / count)
}

// CorrectDC computes the DC offset of in from its non-spike samples and
// writes in-minus-offset to out for every non-spike sample. Spike positions
// in out are set to zero. It returns the offset.
func CorrectDC(in, out []int16, threshold int) int16 {
	offset := DCOffset(in, threshold)
	for i, s := range in {
		if IsSpike(s, threshold) {
			out[i] = 0
			continue
		}
		out[i] = clampInt16(int32(s) - int32(offset))
	}
	return offset
}

func clampInt16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
