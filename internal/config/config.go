// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the audio conditioning pipeline.
const (
	// Audio source
	DefaultDeviceID   = MinDeviceID // System default input device
	DefaultSampleRate = 44100       // CD-quality audio
	DefaultBlockSize  = 512         // Samples per PCM block
	DefaultChannels   = 1           // Mono microphone

	// Conditioning
	DefaultSpikeThreshold = 10000 // Real peaks stay under ~2000, glitches saturate
	DefaultGateOpen       = 80.0  // Block RMS needed to open the noise gate
	DefaultGateClose      = 50.0  // Block RMS below which the gate closes
	DefaultAttackWeight   = 0.5   // Weight of the new median on rising loudness
	DefaultDecayWeight    = 0.4   // Weight of the new median on falling loudness

	// Feature extraction
	DefaultGain        = 1.0
	DefaultSensitivity = 1.0
	DefaultAGCEnabled  = false
	DefaultAttackMS    = 50
	DefaultDecayMS     = 200
	DefaultFFTBins     = 16
	DefaultFFTMinFreq  = 174.6  // ~G3
	DefaultFFTMaxFreq  = 4698.3 // ~D8
	DefaultFFTWindow   = "Hann"

	// Diagnostics
	DefaultDiagnosticsInterval = 250 * time.Millisecond
	DefaultSummaryInterval     = 10 * time.Second

	// Transport
	DefaultSendInterval = 33 * time.Millisecond // ~30Hz

	// Hardware and processing limits
	MinDeviceID       = -1     // -1 represents system default device
	MinSampleRate     = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate     = 192000 // Maximum supported sample rate (Hz)
	MaxBlockSize      = 8192   // Maximum samples per block
	MaxSpikeThreshold = 32768  // Anything above can never trigger
)

// PipelineSettings is the runtime-mutable subset of the configuration. It is
// handed to the pipeline at startup and again whenever the operator changes a
// value; the pipeline applies it before the next frame.
type PipelineSettings struct {
	SampleRate     float64
	SpikeThreshold int
	GateEnabled    bool
	GateOpen       float64
	GateClose      float64
	AttackWeight   float64
	DecayWeight    float64
	Gain           float64
	Sensitivity    float64
	AGCEnabled     bool
	Attack         time.Duration
	Decay          time.Duration
	FFTBins        int
	FFTMinFreq     float64
	FFTMaxFreq     float64
	FFTWindow      string
}

// PipelineSettings projects the runtime-mutable settings out of c.
func (c *Config) PipelineSettings() PipelineSettings {
	return PipelineSettings{
		SampleRate:     c.Audio.SampleRate,
		SpikeThreshold: c.Conditioning.SpikeThreshold,
		GateEnabled:    c.Conditioning.GateEnabled,
		GateOpen:       c.Conditioning.GateOpen,
		GateClose:      c.Conditioning.GateClose,
		AttackWeight:   c.Conditioning.AttackWeight,
		DecayWeight:    c.Conditioning.DecayWeight,
		Gain:           c.Features.Gain,
		Sensitivity:    c.Features.Sensitivity,
		AGCEnabled:     c.Features.AGCEnabled,
		Attack:         time.Duration(c.Features.AttackMS) * time.Millisecond,
		Decay:          time.Duration(c.Features.DecayMS) * time.Millisecond,
		FFTBins:        c.Features.FFTBins,
		FFTMinFreq:     c.Features.FFTMinFreq,
		FFTMaxFreq:     c.Features.FFTMaxFreq,
		FFTWindow:      c.Features.FFTWindow,
	}
}

// DefaultPipelineSettings returns the settings of the built-in configuration.
func DefaultPipelineSettings() PipelineSettings {
	cfg := Default()
	return cfg.PipelineSettings()
}
