// SPDX-License-Identifier: MIT
package analysis

import "time"

// Features is the frame-local result of analysing one conditioned block.
// Handlers receive it by value.
type Features struct {
	Timestamp time.Duration `json:"timestamp"`

	BandLevels         // Enveloped, gain- and AGC-adjusted levels in [0, 1].
	Energy     float64 `json:"energy"` // RMS of the block, full scale = 1, after gain.
	Peak       float64 `json:"peak"`   // Largest absolute sample, full scale = 1.

	Beat      bool          `json:"beat"` // Detected in this frame only.
	BeatCount uint64        `json:"beat_count"`
	LastBeat  time.Duration `json:"last_beat"`

	Onset             bool    `json:"onset"`
	OnsetStrength     float64 `json:"onset_strength"` // Zero unless Onset.
	OnsetCount        uint64  `json:"onset_count"`
	LastOnsetStrength float64 `json:"last_onset_strength"` // Strength of the most recent onset.

	BPM             float64 `json:"bpm"`
	TempoConfidence float64 `json:"tempo_confidence"`
	TempoChanged    bool    `json:"tempo_changed"`
}

// ClearEvents resets the per-frame event flags, keeping counters and
// levels.
func (f *Features) ClearEvents() {
	f.Beat = false
	f.Onset = false
	f.OnsetStrength = 0
	f.TempoChanged = false
}
