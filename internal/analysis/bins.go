// SPDX-License-Identifier: MIT
package analysis

import "math"

// MapBins reduces a linear magnitude spectrum to count log-spaced bins
// between minHz and maxHz and writes them to dst, which is grown if needed
// and returned. binHz is the width of one spectrum bin.
//
// Each output bin takes the largest magnitude among the spectrum bins whose
// centre lies in its band. Bands narrower than one spectrum bin (common at
// the low end) are linearly interpolated at their centre frequency instead,
// so no output bin is left empty. The result depends only on the inputs.
func MapBins(mags []float64, binHz float64, count int, minHz, maxHz float64, dst []float64) []float64 {
	if count <= 0 || len(mags) == 0 || binHz <= 0 || minHz <= 0 || maxHz <= minHz {
		return dst[:0]
	}
	if cap(dst) < count {
		dst = make([]float64, count)
	}
	dst = dst[:count]

	ratio := math.Pow(maxHz/minHz, 1/float64(count))
	lo := minHz
	for i := 0; i < count; i++ {
		hi := lo * ratio
		if i == count-1 {
			hi = maxHz
		}

		first := int(math.Ceil(lo / binHz))
		last := int(math.Ceil(hi/binHz)) - 1
		last = min(last, len(mags)-1)

		if first <= last {
			peak := 0.0
			for _, m := range mags[first : last+1] {
				peak = math.Max(peak, m)
			}
			dst[i] = peak
		} else {
			dst[i] = interpolateMagnitude(mags, math.Sqrt(lo*hi)/binHz)
		}
		lo = hi
	}
	return dst
}

// interpolateMagnitude reads mags at fractional bin position pos.
func interpolateMagnitude(mags []float64, pos float64) float64 {
	if pos <= 0 {
		return mags[0]
	}
	i := int(pos)
	if i >= len(mags)-1 {
		return mags[len(mags)-1]
	}
	frac := pos - float64(i)
	return mags[i]*(1-frac) + mags[i+1]*frac
}

// BinEdges returns the count+1 log-spaced band edges MapBins uses.
func BinEdges(count int, minHz, maxHz float64) []float64 {
	if count <= 0 || minHz <= 0 || maxHz <= minHz {
		return nil
	}
	edges := make([]float64, count+1)
	ratio := math.Pow(maxHz/minHz, 1/float64(count))
	edges[0] = minHz
	for i := 1; i < count; i++ {
		edges[i] = edges[i-1] * ratio
	}
	edges[count] = maxHz
	return edges
}
