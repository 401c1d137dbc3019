// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"soundreactive/internal/analysis"
	"soundreactive/internal/audio"
	"soundreactive/internal/config"
	"soundreactive/internal/diagnostics"
	applog "soundreactive/internal/log"
	"soundreactive/internal/observe"
	"soundreactive/internal/pipeline"
	"soundreactive/internal/transport"
	"soundreactive/internal/transport/udp"
	"soundreactive/internal/tui"
	"soundreactive/pkg/build"
)

// Execute runs the command selected in opts. Output meant for the user goes
// to out.
func Execute(ctx context.Context, opts *Options, out io.Writer) error {
	switch opts.Command {
	case "":
		return nil
	case CommandList:
		return listDevices(out)
	case CommandAnalyze:
		return analyzeFile(ctx, opts, out)
	case CommandRun:
		return run(ctx, opts)
	default:
		return fmt.Errorf("unknown command %q", opts.Command)
	}
}

func listDevices(out io.Writer) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()
	return audio.ListDevices(out)
}

// openSource opens the configured file or device. For files the sample rate
// in cfg is replaced by the file's own.
func openSource(cfg *config.Config) (audio.Source, func(), error) {
	if cfg.Audio.InputFile != "" {
		src, err := audio.OpenWAVSource(cfg.Audio.InputFile, cfg.Audio.BlockSize, cfg.Audio.Loop)
		if err != nil {
			return nil, nil, err
		}
		if sr := src.SampleRate(); sr != cfg.Audio.SampleRate {
			applog.Infof("Using the file's sample rate of %.0f Hz", sr)
			cfg.Audio.SampleRate = sr
		}
		return src, func() {}, nil
	}

	if err := audio.Initialize(); err != nil {
		return nil, nil, err
	}
	src, err := audio.NewPortAudioSource(cfg.Audio.InputDevice, cfg.Audio.SampleRate, cfg.Audio.BlockSize, cfg.Audio.LowLatency)
	if err != nil {
		audio.Terminate()
		return nil, nil, err
	}
	return src, func() { audio.Terminate() }, nil
}

// shutdown closes everything the run command started, newest first.
type shutdown struct {
	closers []func() error
}

func (r *shutdown) onClose(name string, fn func() error) {
	r.closers = append(r.closers, func() error {
		if err := fn(); err != nil {
			return fmt.Errorf("closing %s: %w", name, err)
		}
		return nil
	})
}

func (r *shutdown) close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

func run(ctx context.Context, opts *Options) (err error) {
	cfg := opts.Config
	if opts.Pick && cfg.Audio.InputFile == "" {
		if err := pickDevice(cfg); err != nil {
			return err
		}
	}

	rt := &shutdown{}
	defer func() { err = errors.Join(err, rt.close()) }()

	src, terminate, err := openSource(cfg)
	if err != nil {
		return err
	}
	rt.onClose("audio", func() error { terminate(); return nil })
	rt.onClose("source", src.Close)

	var provider *observe.Provider
	if cfg.Metrics.Enabled {
		info := build.GetBuildFlags()
		provider, err = observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    info.Name,
			ServiceVersion: info.Version,
			Global:         true,
		})
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		rt.onClose("metrics", func() error { return provider.Shutdown(context.Background()) })
	}

	var popts []pipeline.Option
	var agg *diagnostics.Aggregator
	if cfg.Diagnostics.Enabled || provider != nil {
		dcfg := diagnostics.Config{}
		if cfg.Diagnostics.Enabled {
			dcfg.Interval = cfg.Diagnostics.Interval
			dcfg.SummaryInterval = cfg.Diagnostics.SummaryInterval
		}
		if provider != nil {
			dcfg.MeterProvider = provider.MeterProvider()
		}
		if agg, err = diagnostics.New(dcfg); err != nil {
			return err
		}
		popts = append(popts, pipeline.WithObserver(agg))
	}

	if cfg.Recording.Enabled {
		rec, err := audio.NewRecorder(cfg.Recording.Output, cfg.Audio.SampleRate, cfg.Audio.BlockSize)
		if err != nil {
			return err
		}
		rt.onClose("recorder", func() error {
			err := rec.Close()
			applog.Infof("Recording saved to %s (%d samples)", cfg.Recording.Output, rec.Written())
			return err
		})
		popts = append(popts, pipeline.WithRecorder(rec, cfg.Recording.Source == "conditioned"))
	}

	p, err := pipeline.New(src, cfg.Audio.BlockSize, cfg.PipelineSettings(), popts...)
	if err != nil {
		return err
	}
	logEvents(p)

	transports, err := openTransports(cfg, provider)
	if err != nil {
		return err
	}
	if len(transports) > 0 {
		pub, err := transport.NewPublisher(cfg.Transport.SendInterval, p, transports...)
		if err != nil {
			return err
		}
		pub.Start()
		rt.onClose("publisher", pub.Close)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := p.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err == nil && opts.TUI {
			applog.Infof("Input finished; quit the meter to exit")
			return nil
		}
		cancel()
		return err
	})
	if agg != nil && cfg.Diagnostics.Enabled {
		g.Go(func() error {
			agg.Run(gctx, min(cfg.Diagnostics.Interval, cfg.Diagnostics.SummaryInterval))
			return nil
		})
	}
	if opts.TUI {
		// The meter owns the terminal; log lines would tear its frames.
		applog.SetOutput(io.Discard)
		defer applog.SetOutput(os.Stderr)
		g.Go(func() error {
			defer cancel()
			return tui.RunMeter(gctx, p, cfg.Transport.SendInterval)
		})
	}

	err = g.Wait()
	if agg != nil {
		applog.Infof("Diagnostics: %s", agg.Summary())
	}
	return err
}

// openTransports builds the configured transports. The WebSocket listener
// also serves /metrics when a provider is given.
func openTransports(cfg *config.Config, provider *observe.Provider) ([]transport.Transport, error) {
	var ts []transport.Transport
	closeAll := func() {
		for _, t := range ts {
			t.Close()
		}
	}

	if cfg.Transport.WebSocketEnabled {
		var metrics http.Handler
		if provider != nil {
			metrics = provider.Handler()
		}
		ws := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress, metrics)
		if err := ws.Start(); err != nil {
			return nil, fmt.Errorf("websocket: %w", err)
		}
		ts = append(ts, ws)
	} else if provider != nil {
		applog.Warnf("Metrics are enabled but the WebSocket listener is not; /metrics will not be served")
	}

	if cfg.Transport.UDPEnabled {
		u, err := udp.NewUDPTransport(cfg.Transport.UDPTargetAddress)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("udp: %w", err)
		}
		applog.Infof("Transport: feature packets to udp://%s", u.Target())
		ts = append(ts, u)
	}

	if cfg.Debug {
		ts = append(ts, transport.NewLoggingTransport())
	}
	return ts, nil
}

func pickDevice(cfg *config.Config) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	sel, ok, err := tui.PickDevice(audio.HostDevices)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("no device selected")
	}
	cfg.Audio.InputDevice = sel.DeviceID
	cfg.Audio.SampleRate = sel.SampleRate
	applog.Infof("Selected %s at %.0f Hz", sel.Name, sel.SampleRate)
	return nil
}

func logEvents(p *pipeline.Pipeline) {
	p.OnBeat(func(f analysis.Features) {
		applog.Debugf("Beat #%d at %s", f.BeatCount, f.Timestamp)
	})
	p.OnTempoChange(func(bpm, confidence float64, f analysis.Features) {
		applog.Infof("Tempo %.1f BPM (confidence %.0f%%)", bpm, confidence*100)
	})
}

// AnalysisSummary is the result of the analyze command.
type AnalysisSummary struct {
	File            string        `json:"file"`
	SampleRate      float64       `json:"sample_rate"`
	Duration        time.Duration `json:"duration_ns"`
	Frames          uint64        `json:"frames"`
	Invalid         uint64        `json:"invalid"`
	SpikyBlocks     uint64        `json:"spiky_blocks"`
	Beats           uint64        `json:"beats"`
	Onsets          uint64        `json:"onsets"`
	BPM             float64       `json:"bpm"`
	TempoConfidence float64       `json:"tempo_confidence"`
	PeakLoudness    float64       `json:"peak_loudness"`
}

func analyzeFile(ctx context.Context, opts *Options, out io.Writer) error {
	cfg := opts.Config
	cfg.Audio.InputFile = opts.AnalyzeFile
	cfg.Audio.Loop = false

	summary, err := Analyze(ctx, cfg, func(line string) {
		if opts.Events {
			fmt.Fprintln(out, line)
		}
	})
	if err != nil {
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	fmt.Fprintf(out, "%s: %.1fs at %.0f Hz, %d frames (%d invalid, %d with spikes)\n",
		summary.File, summary.Duration.Seconds(), summary.SampleRate, summary.Frames, summary.Invalid, summary.SpikyBlocks)
	fmt.Fprintf(out, "beats %d, onsets %d, peak loudness %.0f\n", summary.Beats, summary.Onsets, summary.PeakLoudness)
	if summary.BPM > 0 {
		fmt.Fprintf(out, "tempo %.1f BPM (confidence %.0f%%)\n", summary.BPM, summary.TempoConfidence*100)
	} else {
		fmt.Fprintln(out, "tempo: not enough beats")
	}
	return nil
}

// Analyze runs cfg.Audio.InputFile through a pipeline as fast as it decodes.
// Each beat, onset and tempo change is passed to event as a text line.
func Analyze(ctx context.Context, cfg *config.Config, event func(string)) (AnalysisSummary, error) {
	if cfg.Audio.InputFile == "" {
		return AnalysisSummary{}, errors.New("analyze needs an input file")
	}
	src, _, err := openSource(cfg)
	if err != nil {
		return AnalysisSummary{}, err
	}
	defer src.Close()

	agg, err := diagnostics.New(diagnostics.Config{})
	if err != nil {
		return AnalysisSummary{}, err
	}
	p, err := pipeline.New(src, cfg.Audio.BlockSize, cfg.PipelineSettings(), pipeline.WithObserver(agg))
	if err != nil {
		return AnalysisSummary{}, err
	}

	var peak float64
	var last time.Duration
	p.OnFrame(func(f analysis.Features) {
		peak = max(peak, p.Loudness())
		last = f.Timestamp
	})
	if event != nil {
		p.OnBeat(func(f analysis.Features) {
			event(fmt.Sprintf("%10s beat #%d", f.Timestamp.Round(time.Millisecond), f.BeatCount))
		})
		p.OnOnset(func(strength float64, f analysis.Features) {
			event(fmt.Sprintf("%10s onset %.2f", f.Timestamp.Round(time.Millisecond), strength))
		})
		p.OnTempoChange(func(bpm, confidence float64, f analysis.Features) {
			event(fmt.Sprintf("%10s tempo %.1f BPM (%.0f%%)", f.Timestamp.Round(time.Millisecond), bpm, confidence*100))
		})
	}

	if err := p.Run(ctx); err != nil {
		return AnalysisSummary{}, err
	}

	f := p.Features()
	s := agg.Summary()
	frameDur := time.Duration(float64(cfg.Audio.BlockSize) * float64(time.Second) / cfg.Audio.SampleRate)
	return AnalysisSummary{
		File:            cfg.Audio.InputFile,
		SampleRate:      cfg.Audio.SampleRate,
		Duration:        last + frameDur,
		Frames:          s.Total,
		Invalid:         s.Invalid,
		SpikyBlocks:     s.Spiky,
		Beats:           f.BeatCount,
		Onsets:          f.OnsetCount,
		BPM:             f.BPM,
		TempoConfidence: f.TempoConfidence,
		PeakLoudness:    peak,
	}, nil
}
