// SPDX-License-Identifier: MIT
package analysis

import "time"

const (
	onsetHistorySize     = 20
	DefaultOnsetMultiple = 1.5
	DefaultOnsetFloor    = 0.01
	DefaultOnsetInterval = 50 * time.Millisecond
)

// OnsetDetector finds the start of new sound events from the positive
// spectral flux between consecutive spectra. An onset fires when the flux
// exceeds an adaptive threshold: the recent mean flux times a multiple,
// plus a floor that keeps silence from triggering.
type OnsetDetector struct {
	prev   []float64
	primed bool

	history [onsetHistorySize]float64
	n, next int
	sum     float64

	multiple    float64
	sensitivity float64
	floor       float64
	minInterval time.Duration

	last     time.Duration
	hasOnset bool
	count    uint64
}

// NewOnsetDetector tracks spectra of bins magnitudes.
func NewOnsetDetector(bins int, sensitivity float64) *OnsetDetector {
	d := &OnsetDetector{
		prev:        make([]float64, bins),
		multiple:    DefaultOnsetMultiple,
		floor:       DefaultOnsetFloor,
		minInterval: DefaultOnsetInterval,
	}
	d.SetSensitivity(sensitivity)
	return d
}

func (d *OnsetDetector) SetSensitivity(sensitivity float64) {
	if sensitivity <= 0 {
		sensitivity = 1
	}
	d.sensitivity = sensitivity
}

// Detect compares mags with the previous spectrum. It returns whether an
// onset fired and its strength, the ratio of the flux to the threshold
// (always above 1 for a detected onset).
func (d *OnsetDetector) Detect(mags []float64, ts time.Duration) (onset bool, strength float64) {
	var flux float64
	n := min(len(mags), len(d.prev))
	for i := 0; i < n; i++ {
		if diff := mags[i] - d.prev[i]; diff > 0 {
			flux += diff
		}
	}
	copy(d.prev, mags[:n])

	mean := 0.0
	if d.n > 0 {
		mean = d.sum / float64(d.n)
	}
	threshold := mean*d.multiple/d.sensitivity + d.floor

	if d.primed && flux > threshold && (!d.hasOnset || ts-d.last >= d.minInterval) {
		onset = true
		strength = flux / threshold
		d.count++
		d.last = ts
		d.hasOnset = true
	}
	d.primed = true

	if d.n == onsetHistorySize {
		d.sum -= d.history[d.next]
	} else {
		d.n++
	}
	d.history[d.next] = flux
	d.sum += flux
	d.next = (d.next + 1) % onsetHistorySize

	return onset, strength
}

// Count is the number of onsets detected so far.
func (d *OnsetDetector) Count() uint64 {
	return d.count
}
