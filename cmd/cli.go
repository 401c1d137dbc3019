// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"soundreactive/internal/config"
	applog "soundreactive/internal/log"
	"soundreactive/pkg/build"
)

// Commands selected by ParseArgs.
const (
	CommandRun     = "run"
	CommandList    = "list"
	CommandAnalyze = "analyze"
)

// Options is the parsed command line.
type Options struct {
	Command     string
	Config      *config.Config
	TUI         bool   // Show the live meter while running.
	Pick        bool   // Choose the input device interactively first.
	AnalyzeFile string // WAV file for the analyze command.
	Events      bool   // Print beat, onset and tempo events while analysing.
	JSON        bool   // Print the analysis summary as JSON.
}

// flagValues are the raw flag targets; only flags the user set override the
// loaded configuration.
type flagValues struct {
	configPath   string
	device       int
	input        string
	sampleRate   float64
	blockSize    int
	lowLatency   bool
	loop         bool
	record       bool
	output       string
	recordSource string
	gain         float64
	sensitivity  float64
	agc          bool
	noGate       bool
	diagnostics  bool
	websocket    string
	udp          string
	metrics      bool
	verbose      bool
	logLevel     string
}

// ParseArgs parses args (without the program name) and loads the
// configuration they point at.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{}
	var fv flagValues

	load := func(cmd *cobra.Command) error {
		cfg, err := config.LoadConfig(fv.configPath)
		if err != nil {
			return err
		}
		if err := fv.apply(cmd, cfg); err != nil {
			return err
		}
		options.Config = cfg
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandRun
			options.TUI = true
			return load(cmd)
		},
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline headless, publishing features over the configured transports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandRun
			return load(cmd)
		},
	}
	runCmd.Flags().BoolVarP(&options.TUI, "tui", "t", false, "Show the live meter")
	runCmd.Flags().BoolVarP(&options.Pick, "pick", "p", false, "Pick the input device interactively before starting")
	rootCmd.AddCommand(runCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandList
			return load(cmd)
		},
	}
	rootCmd.AddCommand(listCmd)

	analyzeCmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Run a WAV file through the pipeline and summarise the features",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandAnalyze
			options.AnalyzeFile = args[0]
			return load(cmd)
		},
	}
	analyzeCmd.Flags().BoolVarP(&options.Events, "events", "e", false, "Print every beat, onset and tempo change")
	analyzeCmd.Flags().BoolVar(&options.JSON, "json", false, "Print the summary as JSON")
	rootCmd.AddCommand(analyzeCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&fv.configPath, "config", "f", "", "Path to a YAML config file (default: ./config.yaml if present)")

	// Audio source
	pf.IntVarP(&fv.device, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.StringVarP(&fv.input, "input", "i", "", "Replay a WAV file instead of capturing from a device")
	pf.Float64VarP(&fv.sampleRate, "sample-rate", "s", config.DefaultSampleRate, "Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&fv.blockSize, "block-size", "b", config.DefaultBlockSize, "Samples per block (affects latency and FFT resolution)")
	pf.BoolVarP(&fv.lowLatency, "low-latency", "l", false, "Use low latency mode for real-time processing")
	pf.BoolVar(&fv.loop, "loop", false, "Rewind the input file when it ends")

	// Recording
	pf.BoolVarP(&fv.record, "record", "r", false, "Record blocks to a WAV file")
	pf.StringVarP(&fv.output, "output", "o", "", "Recording file name. Default is recording-DD-MM-YYYY-HHMMSS.wav")
	pf.StringVar(&fv.recordSource, "record-source", "conditioned", "Record \"raw\" or \"conditioned\" blocks")

	// Conditioning and features
	pf.Float64Var(&fv.gain, "gain", config.DefaultGain, "Input gain applied before feature extraction")
	pf.Float64Var(&fv.sensitivity, "sensitivity", config.DefaultSensitivity, "Beat and onset sensitivity")
	pf.BoolVar(&fv.agc, "agc", false, "Enable automatic gain control of band levels")
	pf.BoolVar(&fv.noGate, "no-gate", false, "Disable the noise gate")
	pf.BoolVar(&fv.diagnostics, "diagnostics", false, "Log calibration statistics")

	// Transports
	pf.StringVar(&fv.websocket, "websocket", "", "Serve features over WebSocket on this address (e.g. :8080)")
	pf.StringVar(&fv.udp, "udp", "", "Send feature packets to this UDP address (e.g. 127.0.0.1:9090)")
	pf.BoolVar(&fv.metrics, "metrics", false, "Expose Prometheus metrics on the WebSocket listener")

	// Logging
	pf.BoolVarP(&fv.verbose, "verbose", "v", false, "Show verbose output")
	pf.StringVar(&fv.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	if args == nil {
		args = []string{} // cobra falls back to os.Args on nil
	}
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return options, nil
}

// apply overrides cfg with every flag set on cmd's command line.
func (fv *flagValues) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed

	if changed("device") {
		cfg.Audio.InputDevice = fv.device
	}
	if changed("input") {
		cfg.Audio.InputFile = fv.input
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = fv.sampleRate
	}
	if changed("block-size") {
		cfg.Audio.BlockSize = fv.blockSize
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = fv.lowLatency
	}
	if changed("loop") {
		cfg.Audio.Loop = fv.loop
	}
	if changed("record") {
		cfg.Recording.Enabled = fv.record
	}
	if changed("output") {
		cfg.Recording.Output = fv.output
		cfg.Recording.Enabled = true
	}
	if changed("record-source") {
		cfg.Recording.Source = fv.recordSource
	}
	if cfg.Recording.Enabled && cfg.Recording.Output == "" {
		cfg.Recording.Output = "recording-" + time.Now().UTC().Format("02-01-2006-150405") + ".wav"
	}
	if changed("gain") {
		cfg.Features.Gain = fv.gain
	}
	if changed("sensitivity") {
		cfg.Features.Sensitivity = fv.sensitivity
	}
	if changed("agc") {
		cfg.Features.AGCEnabled = fv.agc
	}
	if changed("no-gate") {
		cfg.Conditioning.GateEnabled = !fv.noGate
	}
	if changed("diagnostics") {
		cfg.Diagnostics.Enabled = fv.diagnostics
	}
	if changed("websocket") {
		cfg.Transport.WebSocketEnabled = fv.websocket != ""
		cfg.Transport.WebSocketAddress = fv.websocket
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = fv.udp != ""
		cfg.Transport.UDPTargetAddress = fv.udp
	}
	if changed("metrics") {
		cfg.Metrics.Enabled = fv.metrics
	}
	if changed("verbose") {
		cfg.Debug = fv.verbose
	}
	if changed("log-level") {
		cfg.LogLevel = fv.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cfg.Debug {
		applog.SetLevel(applog.LevelDebug)
	} else if cfg.LogLevel != "" {
		applog.SetLevelString(cfg.LogLevel)
	}
	return nil
}
