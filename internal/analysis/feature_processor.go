// SPDX-License-Identifier: MIT
/*
Package analysis extracts musical features from conditioned PCM blocks.

One Process call per block runs the whole chain:

	block -> Spectrum (windowed FFT) -> BandSplitter -> gain / AGC -> Envelope -> bass, mid, treble
	      \                         \-> OnsetDetector (spectral flux)
	       \                         \-> BeatDetector (bass jump) -> TempoEstimator
	        \-> energy (RMS), peak

All detectors work from block timestamps rather than the wall clock, so
replaying the same blocks gives the same features.
*/
package analysis

import (
	"fmt"
	"math"
	"time"

	applog "soundreactive/internal/log"
)

// Settings are the runtime-tunable parameters of a FeatureProcessor.
type Settings struct {
	SampleRate  float64
	Window      WindowFunc
	Gain        float64
	Sensitivity float64
	AGCEnabled  bool
	Attack      time.Duration
	Decay       time.Duration
}

// FeatureProcessor turns conditioned blocks into Features and dispatches
// them to registered handlers. It keeps the latest spectrum for FFT bin
// requests. It is not safe for concurrent use.
type FeatureProcessor struct {
	Handlers

	blockSize int
	settings  Settings

	spectrum *Spectrum
	bands    *BandSplitter
	onset    *OnsetDetector
	beat     *BeatDetector
	tempo    *TempoEstimator

	agc      AGC
	envelope [3]*Envelope

	features Features
	frames   uint64
}

// NewFeatureProcessor creates a processor for blocks of blockSize samples.
func NewFeatureProcessor(blockSize int, s Settings) (*FeatureProcessor, error) {
	p := &FeatureProcessor{
		blockSize: blockSize,
		beat:      NewBeatDetector(s.Sensitivity),
		tempo:     NewTempoEstimator(),
	}
	if err := p.rebuildSpectrum(s); err != nil {
		return nil, err
	}
	for i := range p.envelope {
		p.envelope[i] = NewEnvelope(s.Attack, s.Decay, p.frameDuration(s.SampleRate))
	}
	p.settings = s
	return p, nil
}

func (p *FeatureProcessor) rebuildSpectrum(s Settings) error {
	spectrum, err := NewSpectrum(p.blockSize, s.SampleRate, s.Window)
	if err != nil {
		return fmt.Errorf("feature processor: %w", err)
	}
	p.spectrum = spectrum
	p.bands = NewBandSplitter(spectrum)
	p.onset = NewOnsetDetector(spectrum.Bins(), s.Sensitivity)
	return nil
}

func (p *FeatureProcessor) frameDuration(sampleRate float64) time.Duration {
	return time.Duration(float64(p.blockSize) * float64(time.Second) / sampleRate)
}

// Apply changes the tunables. A new sample rate or window rebuilds the
// spectrum and restarts onset tracking; beat, tempo and envelope state
// carry over.
func (p *FeatureProcessor) Apply(s Settings) error {
	if s.SampleRate != p.settings.SampleRate || s.Window != p.settings.Window {
		if err := p.rebuildSpectrum(s); err != nil {
			return err
		}
	}
	p.beat.SetSensitivity(s.Sensitivity)
	p.onset.SetSensitivity(s.Sensitivity)
	for _, e := range p.envelope {
		e.SetTimes(s.Attack, s.Decay, p.frameDuration(s.SampleRate))
	}
	if !s.AGCEnabled {
		p.agc.Reset()
	}
	if s.Gain != p.settings.Gain || s.AGCEnabled != p.settings.AGCEnabled || s.Sensitivity != p.settings.Sensitivity {
		applog.Debugf("Analysis: gain=%.2f sensitivity=%.2f agc=%v", s.Gain, s.Sensitivity, s.AGCEnabled)
	}
	p.settings = s
	return nil
}

// Settings returns the active tunables.
func (p *FeatureProcessor) Settings() Settings {
	return p.settings
}

// Process analyses one conditioned block stamped ts and returns the
// features. It does not dispatch handlers; see Emit.
func (p *FeatureProcessor) Process(samples []int16, ts time.Duration) Features {
	f := &p.features
	f.ClearEvents()
	f.Timestamp = ts

	p.spectrum.Process(samples)
	mags := p.spectrum.Magnitudes()

	levels := p.bands.Split(mags)
	p.updateLevels(levels)

	energy, peak := blockEnergy(samples)
	f.Energy = clamp01(energy * p.gain())
	f.Peak = peak

	if onset, strength := p.onset.Detect(mags, ts); onset {
		f.Onset = true
		f.OnsetStrength = strength
		f.LastOnsetStrength = strength
	}
	f.OnsetCount = p.onset.Count()

	// Raw bass energy, so gain and AGC never create or hide beats.
	if p.beat.Detect(levels.Bass, ts) {
		f.Beat = true
		f.LastBeat, _ = p.beat.LastBeat()
		if p.tempo.AddBeat(ts) {
			f.TempoChanged = true
			f.BPM, f.TempoConfidence = p.tempo.Tempo()
			applog.Debugf("Analysis: tempo %.1f BPM (confidence %.2f)", f.BPM, f.TempoConfidence)
		}
	}
	f.BeatCount = p.beat.Count()

	p.frames++
	return *f
}

func (p *FeatureProcessor) gain() float64 {
	if p.settings.Gain <= 0 {
		return 1
	}
	return p.settings.Gain
}

func (p *FeatureProcessor) updateLevels(levels BandLevels) {
	raw := [3]float64{levels.Bass, levels.Mid, levels.Treble}
	if p.settings.AGCEnabled {
		p.agc.Observe(math.Max(raw[0], math.Max(raw[1], raw[2])))
	}
	for i, v := range raw {
		if p.settings.AGCEnabled {
			v = p.agc.Normalize(v)
		}
		raw[i] = p.envelope[i].Update(clamp01(v * p.gain()))
	}
	p.features.Bass, p.features.Mid, p.features.Treble = raw[0], raw[1], raw[2]
}

// blockEnergy returns the RMS and absolute peak of samples, both scaled so
// full scale is 1.
func blockEnergy(samples []int16) (rms, peak float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sumSq float64
	maxAbs := 0
	for _, s := range samples {
		v := int(s)
		sumSq += float64(v * v)
		if v < 0 {
			v = -v
		}
		maxAbs = max(maxAbs, v)
	}
	const full = 32768.0
	return math.Sqrt(sumSq/float64(len(samples))) / full, float64(maxAbs) / full
}

// Emit dispatches f to the registered handlers.
func (p *FeatureProcessor) Emit(f Features) {
	p.Dispatch(f)
}

// ClearBeat drops the per-frame event flags without analysing a block.
// Used for frames whose block was invalid.
func (p *FeatureProcessor) ClearBeat() Features {
	p.features.ClearEvents()
	return p.features
}

// Features returns the latest features.
func (p *FeatureProcessor) Features() Features {
	return p.features
}

// Spectrum returns the transform holding the latest magnitudes.
func (p *FeatureProcessor) Spectrum() *Spectrum {
	return p.spectrum
}

// Frames is the number of blocks processed.
func (p *FeatureProcessor) Frames() uint64 {
	return p.frames
}
