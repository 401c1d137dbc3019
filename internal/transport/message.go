// SPDX-License-Identifier: MIT
package transport

import "soundreactive/internal/pipeline"

// FeatureMessage is the wire form of one published snapshot. Beat and Onset
// are true when at least one event fired since the previous message, so
// consumers polling slower than the frame rate still see every beat.
// OnsetStrength is the strength of the latest of those onsets, zero when
// Onset is false.
type FeatureMessage struct {
	Seq             uint32    `json:"seq"`
	Timestamp       int64     `json:"timestamp_ms"`
	Loudness        float64   `json:"loudness"`
	Bass            float64   `json:"bass"`
	Mid             float64   `json:"mid"`
	Treble          float64   `json:"treble"`
	Energy          float64   `json:"energy"`
	Peak            float64   `json:"peak"`
	Beat            bool      `json:"beat"`
	BeatCount       uint64    `json:"beat_count"`
	Onset           bool      `json:"onset"`
	OnsetCount      uint64    `json:"onset_count"`
	OnsetStrength   float64   `json:"onset_strength"`
	BPM             float64   `json:"bpm"`
	TempoConfidence float64   `json:"tempo_confidence"`
	GateOpen        bool      `json:"gate_open"`
	Bins            []float64 `json:"bins,omitempty"`
	Frames          uint64    `json:"frames"`
	Invalid         uint64    `json:"invalid"`
}

// NewFeatureMessage converts snap. prev is the message sent before it, or
// nil for the first one.
func NewFeatureMessage(seq uint32, snap pipeline.Snapshot, prev *FeatureMessage) FeatureMessage {
	f := snap.Features
	m := FeatureMessage{
		Seq:             seq,
		Timestamp:       f.Timestamp.Milliseconds(),
		Loudness:        snap.Loudness,
		Bass:            f.Bass,
		Mid:             f.Mid,
		Treble:          f.Treble,
		Energy:          f.Energy,
		Peak:            f.Peak,
		BeatCount:       f.BeatCount,
		OnsetCount:      f.OnsetCount,
		BPM:             f.BPM,
		TempoConfidence: f.TempoConfidence,
		GateOpen:        snap.Frame.GateOpen,
		Bins:            snap.Bins,
		Frames:          snap.Frames,
		Invalid:         snap.Invalid,
	}
	if prev == nil {
		m.Beat = f.Beat
		m.Onset = f.Onset
	} else {
		m.Beat = f.BeatCount > prev.BeatCount
		m.Onset = f.OnsetCount > prev.OnsetCount
	}
	if m.Onset {
		m.OnsetStrength = f.LastOnsetStrength
	}
	return m
}
