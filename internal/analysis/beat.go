// SPDX-License-Identifier: MIT
package analysis

import "time"

const (
	beatHistorySize     = 43 // About half a second of 512-sample blocks at 44.1 kHz.
	beatWarmupFrames    = 8
	DefaultBeatRatio    = 1.4
	DefaultBeatMinLevel = 0.005
	DefaultBeatInterval = 250 * time.Millisecond
)

// BeatDetector flags a beat when the bass energy jumps above its running
// average by the threshold ratio. Beats closer together than the minimum
// interval are suppressed, which caps detection at 240 BPM by default.
type BeatDetector struct {
	history [beatHistorySize]float64
	n, next int
	sum     float64

	ratio       float64
	sensitivity float64
	minLevel    float64
	minInterval time.Duration

	lastBeat time.Duration
	hasBeat  bool
	count    uint64
}

func NewBeatDetector(sensitivity float64) *BeatDetector {
	d := &BeatDetector{
		ratio:       DefaultBeatRatio,
		minLevel:    DefaultBeatMinLevel,
		minInterval: DefaultBeatInterval,
	}
	d.SetSensitivity(sensitivity)
	return d
}

// SetSensitivity scales the detection threshold: 2.0 halves the required
// jump above the average, 0.5 doubles it.
func (d *BeatDetector) SetSensitivity(sensitivity float64) {
	if sensitivity <= 0 {
		sensitivity = 1
	}
	d.sensitivity = sensitivity
}

func (d *BeatDetector) threshold() float64 {
	return max(d.ratio/d.sensitivity, 1.05)
}

// Detect feeds the bass energy of the block stamped ts and reports whether
// it is a beat.
func (d *BeatDetector) Detect(bass float64, ts time.Duration) bool {
	beat := false
	if d.n >= beatWarmupFrames && bass > d.minLevel {
		avg := d.sum / float64(d.n)
		if bass > avg*d.threshold() && (!d.hasBeat || ts-d.lastBeat >= d.minInterval) {
			beat = true
		}
	}

	if d.n == beatHistorySize {
		d.sum -= d.history[d.next]
	} else {
		d.n++
	}
	d.history[d.next] = bass
	d.sum += bass
	d.next = (d.next + 1) % beatHistorySize

	if beat {
		d.count++
		d.lastBeat = ts
		d.hasBeat = true
	}
	return beat
}

// Count is the number of beats detected so far.
func (d *BeatDetector) Count() uint64 {
	return d.count
}

// LastBeat returns the timestamp of the latest beat, or false if there has
// been none.
func (d *BeatDetector) LastBeat() (time.Duration, bool) {
	return d.lastBeat, d.hasBeat
}
