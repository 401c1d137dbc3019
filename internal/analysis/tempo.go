// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"time"
)

const (
	tempoHistorySize = 9 // Beat timestamps kept; one more than intervals.
	tempoMinBeats    = 4
	MinTempoBPM      = 60.0
	MaxTempoBPM      = 200.0

	// A new estimate is reported only when it moves by at least this much.
	tempoChangeBPM = 1.0
)

// TempoEstimator derives BPM from the median inter-beat interval of the
// latest beats. Confidence is one minus the coefficient of variation of the
// intervals, clamped to [0, 1]; a steady pulse approaches 1.
type TempoEstimator struct {
	beats [tempoHistorySize]time.Duration
	n     int
	next  int

	bpm        float64
	confidence float64
}

func NewTempoEstimator() *TempoEstimator {
	return &TempoEstimator{}
}

// AddBeat records a beat at ts. It returns true when the reported tempo
// changed.
func (e *TempoEstimator) AddBeat(ts time.Duration) bool {
	e.beats[e.next] = ts
	e.next = (e.next + 1) % tempoHistorySize
	if e.n < tempoHistorySize {
		e.n++
	}
	if e.n < tempoMinBeats {
		return false
	}

	var intervals [tempoHistorySize - 1]float64
	count := 0
	oldest := (e.next - e.n + tempoHistorySize) % tempoHistorySize
	for i := 1; i < e.n; i++ {
		a := e.beats[(oldest+i-1)%tempoHistorySize]
		b := e.beats[(oldest+i)%tempoHistorySize]
		if b > a {
			intervals[count] = (b - a).Seconds()
			count++
		}
	}
	if count < tempoMinBeats-1 {
		return false
	}

	ivs := intervals[:count]
	var sum float64
	for _, v := range ivs {
		sum += v
	}
	mean := sum / float64(count)
	var sq float64
	for _, v := range ivs {
		sq += (v - mean) * (v - mean)
	}
	cv := math.Sqrt(sq/float64(count)) / mean
	e.confidence = math.Max(0, math.Min(1, 1-cv))

	for i := 1; i < count; i++ {
		for j := i; j > 0 && ivs[j] < ivs[j-1]; j-- {
			ivs[j], ivs[j-1] = ivs[j-1], ivs[j]
		}
	}
	var median float64
	if count%2 == 1 {
		median = ivs[count/2]
	} else {
		median = (ivs[count/2-1] + ivs[count/2]) / 2
	}

	bpm := foldTempo(60 / median)
	if math.Abs(bpm-e.bpm) < tempoChangeBPM {
		return false
	}
	e.bpm = bpm
	return true
}

// foldTempo halves or doubles bpm into [MinTempoBPM, MaxTempoBPM].
func foldTempo(bpm float64) float64 {
	for bpm > MaxTempoBPM {
		bpm /= 2
	}
	for bpm > 0 && bpm < MinTempoBPM {
		bpm *= 2
	}
	return bpm
}

// Tempo returns the current estimate, zero until enough beats were seen.
func (e *TempoEstimator) Tempo() (bpm, confidence float64) {
	return e.bpm, e.confidence
}
