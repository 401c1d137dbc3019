// SPDX-License-Identifier: MIT
package diagnostics

import (
	"fmt"
	"math"
)

const (
	// RailLevel is the magnitude at which a sample counts as saturated.
	RailLevel = 32000
	// NearZeroLevel is the magnitude at or below which a sample counts as
	// near zero.
	NearZeroLevel = 100
)

// BlockStats are calibration statistics over every sample of a raw block,
// with no spike filtering applied.
type BlockStats struct {
	Min, Max      int16
	DC            float64 // Mean of all samples.
	RMS           float64 // RMS around DC over all samples.
	AtPositiveMax int     // Samples >= RailLevel.
	AtNegativeMax int     // Samples <= -RailLevel.
	NearZero      int     // Samples with |x| <= NearZeroLevel.
}

// PeakToPeak returns Max - Min.
func (s BlockStats) PeakToPeak() int {
	return int(s.Max) - int(s.Min)
}

// Measure computes BlockStats for raw.
func Measure(raw []int16) BlockStats {
	if len(raw) == 0 {
		return BlockStats{}
	}
	st := BlockStats{Min: raw[0], Max: raw[0]}
	var sum int64
	for _, s := range raw {
		st.Min = min(st.Min, s)
		st.Max = max(st.Max, s)
		sum += int64(s)
		switch v := int(s); {
		case v >= RailLevel:
			st.AtPositiveMax++
		case v <= -RailLevel:
			st.AtNegativeMax++
		case v >= -NearZeroLevel && v <= NearZeroLevel:
			st.NearZero++
		}
	}
	st.DC = float64(sum) / float64(len(raw))
	var sq float64
	for _, s := range raw {
		d := float64(s) - st.DC
		sq += d * d
	}
	st.RMS = math.Sqrt(sq / float64(len(raw)))
	return st
}

// Status buckets a smoothed loudness level for calibration output.
func Status(rms float64) string {
	switch {
	case rms < 50:
		return "quiet"
	case rms < 150:
		return "low"
	case rms < 400:
		return "medium"
	default:
		return "LOUD"
	}
}

// CSVHeader names the columns of CSVLine.
const CSVHeader = "spikes,rms_unfilt,rms_filt,dc,min,max,status"

// CSVLine formats one calibration row. filtered is the smoothed loudness.
func CSVLine(spikes int, st BlockStats, filtered float64, offset int16) string {
	return fmt.Sprintf("%d,%.1f,%.1f,%d,%d,%d,%s",
		spikes, st.RMS, filtered, offset, st.Min, st.Max, Status(filtered))
}
