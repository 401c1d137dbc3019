// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	applog "soundreactive/internal/log"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug        bool               `yaml:"debug"`             // Enable debug mode (forces log level debug).
	LogLevel     string             `yaml:"log_level"`         // Logging level (e.g., "debug", "info", "warn", "error").
	Command      string             `yaml:"command,omitempty"` // A one-off command to execute instead of running the pipeline.
	Audio        AudioConfig        `yaml:"audio"`             // Audio source settings.
	Conditioning ConditioningConfig `yaml:"conditioning"`      // Spike filter, noise gate and loudness smoothing.
	Features     FeaturesConfig     `yaml:"features"`          // Feature extraction and FFT view settings.
	Diagnostics  DiagnosticsConfig  `yaml:"diagnostics"`       // Calibration statistics.
	Recording    RecordingConfig    `yaml:"recording"`         // PCM capture to WAV.
	Transport    TransportConfig    `yaml:"transport"`         // Feature publishing.
	Metrics      MetricsConfig      `yaml:"metrics"`           // OpenTelemetry / Prometheus.
}

// AudioConfig holds settings related to the PCM source.
type AudioConfig struct {
	InputDevice int     `yaml:"input_device"` // PortAudio device index for audio input (-1 for default).
	InputFile   string  `yaml:"input_file"`   // WAV file to replay instead of a live device.
	SampleRate  float64 `yaml:"sample_rate"`  // Sample rate in Hz (e.g., 44100, 48000).
	BlockSize   int     `yaml:"block_size"`   // Samples per PCM block.
	LowLatency  bool    `yaml:"low_latency"`  // Request low latency settings from PortAudio device.
	Loop        bool    `yaml:"loop"`         // Rewind input_file when it ends.
}

// ConditioningConfig holds the signal conditioning thresholds.
type ConditioningConfig struct {
	SpikeThreshold int     `yaml:"spike_threshold"` // Samples with |x| >= threshold are glitches.
	GateEnabled    bool    `yaml:"gate_enabled"`    // Disable to pass every block through.
	GateOpen       float64 `yaml:"gate_open"`       // RMS that opens the gate.
	GateClose      float64 `yaml:"gate_close"`      // RMS that closes the gate.
	AttackWeight   float64 `yaml:"attack_weight"`   // Weight of a rising median in the loudness smoother.
	DecayWeight    float64 `yaml:"decay_weight"`    // Weight of a falling median in the loudness smoother.
}

// FeaturesConfig holds feature extraction settings.
type FeaturesConfig struct {
	Gain        float64 `yaml:"gain"`         // Linear input gain applied before analysis.
	Sensitivity float64 `yaml:"sensitivity"`  // Beat/onset sensitivity, 1.0 is neutral.
	AGCEnabled  bool    `yaml:"agc_enabled"`  // Normalise band levels against a running peak.
	AttackMS    int     `yaml:"attack_ms"`    // Band level rise time constant.
	DecayMS     int     `yaml:"decay_ms"`     // Band level fall time constant.
	FFTBins     int     `yaml:"fft_bins"`     // Bins in the published FFT view.
	FFTMinFreq  float64 `yaml:"fft_min_freq"` // Lowest frequency of the FFT view (Hz).
	FFTMaxFreq  float64 `yaml:"fft_max_freq"` // Highest frequency of the FFT view (Hz).
	FFTWindow   string  `yaml:"fft_window"`   // Window function (e.g., "Hann", "Hamming").
}

// DiagnosticsConfig controls the calibration statistics.
type DiagnosticsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Interval        time.Duration `yaml:"interval"`         // CSV line interval.
	SummaryInterval time.Duration `yaml:"summary_interval"` // Clean/spike summary interval.
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable PCM recording to file.
	Output  string `yaml:"output"`  // Output WAV path (generated when empty).
	Source  string `yaml:"source"`  // "raw" or "conditioned".
}

// TransportConfig holds settings related to publishing features over the network.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve features on /features.
	WebSocketAddress string        `yaml:"websocket_address"`  // Listen address, e.g. ":8080".
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Send feature packets over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port (e.g., "127.0.0.1:9090").
	SendInterval     time.Duration `yaml:"send_interval"`      // Interval between published frames.
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // Expose /metrics on the websocket listener.
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Debug:    false,
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice: DefaultDeviceID,
			SampleRate:  DefaultSampleRate,
			BlockSize:   DefaultBlockSize,
		},
		Conditioning: ConditioningConfig{
			SpikeThreshold: DefaultSpikeThreshold,
			GateEnabled:    true,
			GateOpen:       DefaultGateOpen,
			GateClose:      DefaultGateClose,
			AttackWeight:   DefaultAttackWeight,
			DecayWeight:    DefaultDecayWeight,
		},
		Features: FeaturesConfig{
			Gain:        DefaultGain,
			Sensitivity: DefaultSensitivity,
			AGCEnabled:  DefaultAGCEnabled,
			AttackMS:    DefaultAttackMS,
			DecayMS:     DefaultDecayMS,
			FFTBins:     DefaultFFTBins,
			FFTMinFreq:  DefaultFFTMinFreq,
			FFTMaxFreq:  DefaultFFTMaxFreq,
			FFTWindow:   DefaultFFTWindow,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:         false,
			Interval:        DefaultDiagnosticsInterval,
			SummaryInterval: DefaultSummaryInterval,
		},
		Recording: RecordingConfig{
			Enabled: false,
			Source:  "conditioned",
		},
		Transport: TransportConfig{
			WebSocketEnabled: false,
			WebSocketAddress: ":8080",
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			SendInterval:     DefaultSendInterval,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{
			"config.yaml",
			"soundreactive.yaml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return &cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks every section and returns all problems joined together.
func (c *Config) Validate() error {
	var errs []error

	if c.Audio.InputDevice < MinDeviceID {
		errs = append(errs, fmt.Errorf("audio.input_device must be >= %d, got %d", MinDeviceID, c.Audio.InputDevice))
	}
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be within [%d, %d], got %.0f", MinSampleRate, MaxSampleRate, c.Audio.SampleRate))
	}
	if c.Audio.BlockSize <= 0 || c.Audio.BlockSize > MaxBlockSize {
		errs = append(errs, fmt.Errorf("audio.block_size must be within (0, %d], got %d", MaxBlockSize, c.Audio.BlockSize))
	}

	cond := c.Conditioning
	if cond.SpikeThreshold <= 0 || cond.SpikeThreshold > MaxSpikeThreshold {
		errs = append(errs, fmt.Errorf("conditioning.spike_threshold must be within (0, %d], got %d", MaxSpikeThreshold, cond.SpikeThreshold))
	}
	if cond.GateClose < 0 {
		errs = append(errs, fmt.Errorf("conditioning.gate_close must not be negative, got %g", cond.GateClose))
	}
	if cond.GateOpen <= cond.GateClose {
		errs = append(errs, fmt.Errorf("conditioning.gate_open (%g) must be greater than gate_close (%g)", cond.GateOpen, cond.GateClose))
	}
	if cond.AttackWeight <= 0 || cond.AttackWeight > 1 {
		errs = append(errs, fmt.Errorf("conditioning.attack_weight must be within (0, 1], got %g", cond.AttackWeight))
	}
	if cond.DecayWeight <= 0 || cond.DecayWeight > 1 {
		errs = append(errs, fmt.Errorf("conditioning.decay_weight must be within (0, 1], got %g", cond.DecayWeight))
	}

	feat := c.Features
	if feat.Gain <= 0 {
		errs = append(errs, fmt.Errorf("features.gain must be positive, got %g", feat.Gain))
	}
	if feat.Sensitivity <= 0 {
		errs = append(errs, fmt.Errorf("features.sensitivity must be positive, got %g", feat.Sensitivity))
	}
	if feat.AttackMS < 0 || feat.DecayMS < 0 {
		errs = append(errs, fmt.Errorf("features.attack_ms and decay_ms must not be negative"))
	}
	if feat.FFTBins <= 0 {
		errs = append(errs, fmt.Errorf("features.fft_bins must be positive, got %d", feat.FFTBins))
	}
	if feat.FFTMinFreq <= 0 || feat.FFTMinFreq >= feat.FFTMaxFreq {
		errs = append(errs, fmt.Errorf("features.fft_min_freq (%g) must be positive and below fft_max_freq (%g)", feat.FFTMinFreq, feat.FFTMaxFreq))
	}
	if feat.FFTWindow == "" {
		errs = append(errs, errors.New("features.fft_window must be set"))
	}

	if c.Diagnostics.Enabled && (c.Diagnostics.Interval <= 0 || c.Diagnostics.SummaryInterval <= 0) {
		errs = append(errs, errors.New("diagnostics intervals must be positive when diagnostics are enabled"))
	}

	switch c.Recording.Source {
	case "raw", "conditioned":
	default:
		errs = append(errs, fmt.Errorf("recording.source must be \"raw\" or \"conditioned\", got %q", c.Recording.Source))
	}

	if c.Transport.UDPEnabled && c.Transport.UDPTargetAddress == "" {
		errs = append(errs, errors.New("transport.udp_target_address must be set when UDP is enabled"))
	}
	if (c.Transport.UDPEnabled || c.Transport.WebSocketEnabled) && c.Transport.SendInterval <= 0 {
		errs = append(errs, errors.New("transport.send_interval must be positive when a transport is enabled"))
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies ENV_* variables on top of the file/default values.
func (cfg *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			applog.Infof("configuration: Overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		applog.Infof("configuration: Overriding log_level from env: %s", val)
	}

	// ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			applog.Infof("configuration: Overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		applog.Infof("configuration: Overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.SendInterval = dur
			applog.Infof("configuration: Overriding transport.send_interval from env: %s", dur)
		}
	}
	// ENV_WEBSOCKET_ADDRESS
	if val, ok := os.LookupEnv("ENV_WEBSOCKET_ADDRESS"); ok {
		cfg.Transport.WebSocketAddress = val
		cfg.Transport.WebSocketEnabled = true
		applog.Infof("configuration: Overriding transport.websocket_address from env: %s", val)
	}
}
