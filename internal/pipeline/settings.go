// SPDX-License-Identifier: MIT
package pipeline

import (
	"errors"
	"fmt"

	"soundreactive/internal/analysis"
	"soundreactive/internal/conditioning"
	"soundreactive/internal/config"
)

// Settings are the runtime-mutable pipeline parameters.
type Settings = config.PipelineSettings

// validateSettings checks s and resolves its window name.
func validateSettings(s Settings) (analysis.WindowFunc, error) {
	var errs []error
	if s.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %g", s.SampleRate))
	}
	if s.SpikeThreshold <= 0 {
		errs = append(errs, fmt.Errorf("spike threshold must be positive, got %d", s.SpikeThreshold))
	}
	if s.GateOpen <= s.GateClose || s.GateClose < 0 {
		errs = append(errs, fmt.Errorf("gate thresholds need open > close >= 0, got %g/%g", s.GateOpen, s.GateClose))
	}
	if s.AttackWeight <= 0 || s.AttackWeight > 1 || s.DecayWeight <= 0 || s.DecayWeight > 1 {
		errs = append(errs, fmt.Errorf("smoothing weights must be in (0, 1], got %g/%g", s.AttackWeight, s.DecayWeight))
	}
	if s.Gain <= 0 || s.Sensitivity <= 0 {
		errs = append(errs, fmt.Errorf("gain and sensitivity must be positive, got %g/%g", s.Gain, s.Sensitivity))
	}
	if s.FFTBins <= 0 {
		errs = append(errs, fmt.Errorf("fft bins must be positive, got %d", s.FFTBins))
	}
	if s.FFTMinFreq <= 0 || s.FFTMaxFreq <= s.FFTMinFreq {
		errs = append(errs, fmt.Errorf("fft range needs 0 < min < max, got %g-%g", s.FFTMinFreq, s.FFTMaxFreq))
	}
	win, err := analysis.ParseWindowFunc(s.FFTWindow)
	if err != nil {
		errs = append(errs, err)
	}
	return win, errors.Join(errs...)
}

func conditioningSettings(s Settings) conditioning.Settings {
	return conditioning.Settings{
		SpikeThreshold: s.SpikeThreshold,
		GateEnabled:    s.GateEnabled,
		GateOpen:       s.GateOpen,
		GateClose:      s.GateClose,
		AttackWeight:   s.AttackWeight,
		DecayWeight:    s.DecayWeight,
	}
}

func analysisSettings(s Settings, win analysis.WindowFunc) analysis.Settings {
	return analysis.Settings{
		SampleRate:  s.SampleRate,
		Window:      win,
		Gain:        s.Gain,
		Sensitivity: s.Sensitivity,
		AGCEnabled:  s.AGCEnabled,
		Attack:      s.Attack,
		Decay:       s.Decay,
	}
}
