// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"time"
)

// Envelope follows a level with separate attack and decay time constants.
type Envelope struct {
	value      float64
	attackCoef float64
	decayCoef  float64
}

// NewEnvelope returns an envelope updated once per frame of the given
// duration.
func NewEnvelope(attack, decay, frame time.Duration) *Envelope {
	e := &Envelope{}
	e.SetTimes(attack, decay, frame)
	return e
}

// SetTimes changes the time constants. A non-positive constant makes that
// direction follow the input instantly.
func (e *Envelope) SetTimes(attack, decay, frame time.Duration) {
	e.attackCoef = smoothingCoef(attack, frame)
	e.decayCoef = smoothingCoef(decay, frame)
}

func smoothingCoef(tau, frame time.Duration) float64 {
	if tau <= 0 || frame <= 0 {
		return 1
	}
	return 1 - math.Exp(-frame.Seconds()/tau.Seconds())
}

func (e *Envelope) Update(x float64) float64 {
	c := e.decayCoef
	if x > e.value {
		c = e.attackCoef
	}
	e.value += c * (x - e.value)
	return e.value
}

func (e *Envelope) Value() float64 { return e.value }

const (
	agcRelease = 0.998
	agcFloor   = 1e-3
)

// AGC normalises levels against a slowly released running peak so quiet
// and loud material both use the full [0, 1] range.
type AGC struct {
	peak float64
}

// Observe updates the running peak with x and returns the current peak.
func (a *AGC) Observe(x float64) float64 {
	if x > a.peak {
		a.peak = x
	} else {
		a.peak = math.Max(a.peak*agcRelease, agcFloor)
	}
	return a.peak
}

// Normalize divides x by the running peak.
func (a *AGC) Normalize(x float64) float64 {
	if a.peak <= 0 {
		return 0
	}
	return x / a.peak
}

func (a *AGC) Reset() { a.peak = 0 }

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
