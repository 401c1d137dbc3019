// SPDX-License-Identifier: MIT
/*
Package pipeline drives one audio source through conditioning and feature
analysis and publishes the result for concurrent readers.

Each Step reads one block, conditions it, analyses it and then publishes
a snapshot before dispatching handlers. Handlers run on the stepping
goroutine with the snapshot lock released, so they may call any getter.
Getters return copies and never block a Step for longer than a copy.
*/
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"soundreactive/internal/analysis"
	"soundreactive/internal/audio"
	"soundreactive/internal/conditioning"
	"soundreactive/internal/diagnostics"
	applog "soundreactive/internal/log"
)

// RetryDelay is how long Run waits after a failed read.
const RetryDelay = 100 * time.Millisecond

// ErrSourceFailed wraps errors reported by the audio source. Only the event
// flags of the published state are cleared when it is returned.
var ErrSourceFailed = errors.New("audio source failed")

// Observer receives a report for every frame.
type Observer interface {
	Observe(diagnostics.Observation)
}

// BlockWriter captures blocks, typically an *audio.Recorder.
type BlockWriter interface {
	WriteBlock(samples []int16) error
}

// Frame summarises one Step.
type Frame struct {
	Index       uint64
	Timestamp   time.Duration
	Valid       bool
	Spikes      int
	Offset      int16
	Level       conditioning.LevelResult
	GateOpen    bool
	GateChanged bool
	Loudness    float64
	Features    analysis.Features
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver reports every frame to o.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithRecorder writes every valid block to w. With conditioned set the
// block is written after conditioning, otherwise as captured.
func WithRecorder(w BlockWriter, conditioned bool) Option {
	return func(p *Pipeline) {
		p.tap = w
		p.tapConditioned = conditioned
	}
}

// published is the state readers see. Buffers are reused between frames.
type published struct {
	last     Frame
	features analysis.Features
	loudness float64
	raw      []int16
	cond     []int16
	mags     []float64
	binHz    float64
	hasValid bool
	frames   uint64
	invalid  uint64
	settings Settings
}

type Pipeline struct {
	source    audio.Source
	blockSize int

	stepMu         sync.Mutex
	buf            []int16
	cond           *conditioning.Conditioner
	proc           *analysis.FeatureProcessor
	observer       Observer
	tap            BlockWriter
	tapConditioned bool
	index          uint64

	pendingMu sync.Mutex
	pending   *Settings
	handlers  []func(*analysis.FeatureProcessor)

	stateMu sync.RWMutex
	state   published
}

// New builds a pipeline reading blockSize samples per frame from src.
func New(src audio.Source, blockSize int, s Settings, opts ...Option) (*Pipeline, error) {
	if src == nil {
		return nil, errors.New("pipeline needs a source")
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}
	win, err := validateSettings(s)
	if err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	cond, err := conditioning.NewConditioner(blockSize, conditioningSettings(s))
	if err != nil {
		return nil, err
	}
	proc, err := analysis.NewFeatureProcessor(blockSize, analysisSettings(s, win))
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		source:    src,
		blockSize: blockSize,
		buf:       make([]int16, blockSize),
		cond:      cond,
		proc:      proc,
		state: published{
			raw:      make([]int16, blockSize),
			cond:     make([]int16, blockSize),
			mags:     make([]float64, proc.Spectrum().Bins()),
			settings: s,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Step processes one block. Source failures are wrapped in ErrSourceFailed
// and clear the event flags of the published state, leaving everything else
// as it was. io.EOF is returned unwrapped.
func (p *Pipeline) Step() (Frame, error) {
	p.stepMu.Lock()
	defer p.stepMu.Unlock()

	p.applyPending()

	block, err := p.source.ReadBlock(p.buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, err
		}
		p.clearBeat()
		return Frame{}, fmt.Errorf("%w: %w", ErrSourceFailed, err)
	}
	p.index++

	if !block.Valid || len(block.Samples) != p.blockSize {
		return p.invalidFrame(block.Timestamp), nil
	}

	c := p.cond.Condition(block.Samples)
	f := p.proc.Process(c.Samples, block.Timestamp)
	frame := Frame{
		Index:       p.index,
		Timestamp:   block.Timestamp,
		Valid:       true,
		Spikes:      c.Spikes,
		Offset:      c.Offset,
		Level:       c.Level,
		GateOpen:    c.GateOpen,
		GateChanged: c.GateChanged,
		Loudness:    c.Loudness,
		Features:    f,
	}

	p.record(block.Samples, c.Samples)
	if p.observer != nil {
		p.observer.Observe(diagnostics.Observation{
			Valid:       true,
			Raw:         block.Samples,
			Spikes:      c.Spikes,
			RMS:         c.Level.RMS,
			Smoothed:    c.Loudness,
			Offset:      c.Offset,
			GateOpen:    c.GateOpen,
			GateChanged: c.GateChanged,
		})
	}

	p.publish(frame, block.Samples, c.Samples)
	p.proc.Emit(f)
	return frame, nil
}

func (p *Pipeline) invalidFrame(ts time.Duration) Frame {
	f := p.proc.ClearBeat()
	if p.observer != nil {
		p.observer.Observe(diagnostics.Observation{Valid: false})
	}

	p.stateMu.Lock()
	p.state.features = f
	p.state.frames++
	p.state.invalid++
	frame := Frame{
		Index:     p.index,
		Timestamp: ts,
		Loudness:  p.state.loudness,
		Features:  f,
	}
	p.state.last = frame
	p.stateMu.Unlock()
	return frame
}

// clearBeat drops the event flags from the published state after a failed
// read. Loudness, bins and the frame counters stay as they were.
func (p *Pipeline) clearBeat() {
	f := p.proc.ClearBeat()
	p.stateMu.Lock()
	p.state.features = f
	p.state.last.Features.ClearEvents()
	p.stateMu.Unlock()
}

func (p *Pipeline) record(raw, cond []int16) {
	if p.tap == nil {
		return
	}
	src := raw
	if p.tapConditioned {
		src = cond
	}
	if err := p.tap.WriteBlock(src); err != nil {
		applog.Errorf("Recording stopped: %v", err)
		p.tap = nil
	}
}

func (p *Pipeline) publish(frame Frame, raw, cond []int16) {
	sp := p.proc.Spectrum()

	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	s := &p.state
	s.last = frame
	s.features = frame.Features
	s.loudness = frame.Loudness
	copy(s.raw, raw)
	copy(s.cond, cond)
	if len(s.mags) != sp.Bins() {
		s.mags = make([]float64, sp.Bins())
	}
	_ = sp.MagnitudesInto(s.mags)
	s.binHz = sp.BinWidth()
	s.hasValid = true
	s.frames++
}

// applyPending installs handlers and settings queued since the last Step.
// Caller holds stepMu.
func (p *Pipeline) applyPending() {
	p.pendingMu.Lock()
	next := p.pending
	p.pending = nil
	adds := p.handlers
	p.handlers = nil
	p.pendingMu.Unlock()
	for _, add := range adds {
		add(p.proc)
	}
	if next == nil {
		return
	}

	win, err := validateSettings(*next)
	if err == nil {
		err = p.cond.Apply(conditioningSettings(*next))
	}
	if err == nil {
		err = p.proc.Apply(analysisSettings(*next, win))
	}
	if err != nil {
		applog.Warnf("Pipeline: settings not applied: %v", err)
		return
	}
	p.stateMu.Lock()
	p.state.settings = *next
	p.stateMu.Unlock()
	applog.Debugf("Pipeline: settings applied")
}

// SetSettings queues s for the next Step. Invalid settings are rejected
// immediately and the active ones kept.
func (p *Pipeline) SetSettings(s Settings) error {
	if _, err := validateSettings(s); err != nil {
		return err
	}
	p.pendingMu.Lock()
	p.pending = &s
	p.pendingMu.Unlock()
	return nil
}

// Settings returns the queued settings if any, else the active ones.
func (p *Pipeline) Settings() Settings {
	p.pendingMu.Lock()
	if p.pending != nil {
		s := *p.pending
		p.pendingMu.Unlock()
		return s
	}
	p.pendingMu.Unlock()

	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state.settings
}

// Run steps until ctx is cancelled or the source reaches io.EOF. Source
// failures are logged and retried after RetryDelay.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := p.Step()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			applog.Infof("Pipeline: source exhausted after %d frames", p.Frames())
			return nil
		default:
			applog.Warnf("Pipeline: %v, retrying in %s", err, RetryDelay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(RetryDelay):
			}
		}
	}
}

// BlockSize is the number of samples per frame.
func (p *Pipeline) BlockSize() int {
	return p.blockSize
}

// Loudness is the smoothed, gated level of the last valid frame.
func (p *Pipeline) Loudness() float64 {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state.loudness
}

// BandEnergies returns the bass, mid and treble levels.
func (p *Pipeline) BandEnergies() analysis.BandLevels {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state.features.BandLevels
}

// Features returns the latest feature set.
func (p *Pipeline) Features() analysis.Features {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state.features
}

// LastFrame returns the summary of the most recent Step.
func (p *Pipeline) LastFrame() Frame {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state.last
}

// Frames counts processed frames, valid or not.
func (p *Pipeline) Frames() uint64 {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state.frames
}

// FFTBins maps the latest spectrum onto count logarithmic bins between
// minHz and maxHz. It reports false until a valid frame has been analysed.
func (p *Pipeline) FFTBins(count int, minHz, maxHz float64) ([]float64, bool) {
	if count <= 0 || minHz <= 0 || maxHz <= minHz {
		return nil, false
	}
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	if !p.state.hasValid {
		return nil, false
	}
	out := analysis.MapBins(p.state.mags, p.state.binHz, count, minHz, maxHz, make([]float64, count))
	return out, len(out) == count
}

// DefaultFFTBins is FFTBins with the active count and range.
func (p *Pipeline) DefaultFFTBins() ([]float64, bool) {
	p.stateMu.RLock()
	s := p.state.settings
	p.stateMu.RUnlock()
	return p.FFTBins(s.FFTBins, s.FFTMinFreq, s.FFTMaxFreq)
}

// RawPCM returns a copy of the last valid block as captured.
func (p *Pipeline) RawPCM() []int16 {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	if !p.state.hasValid {
		return nil
	}
	return append([]int16(nil), p.state.raw...)
}

// ConditionedPCM returns a copy of the last valid block after conditioning.
func (p *Pipeline) ConditionedPCM() []int16 {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	if !p.state.hasValid {
		return nil
	}
	return append([]int16(nil), p.state.cond...)
}

// Snapshot is a consistent copy of the published state.
type Snapshot struct {
	Frame    Frame
	Features analysis.Features
	Loudness float64
	Bins     []float64 // Configured logarithmic bins, nil before the first valid frame.
	Frames   uint64
	Invalid  uint64
}

// Snapshot copies everything a publisher needs under one lock.
func (p *Pipeline) Snapshot() Snapshot {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	s := p.state.settings
	snap := Snapshot{
		Frame:    p.state.last,
		Features: p.state.features,
		Loudness: p.state.loudness,
		Frames:   p.state.frames,
		Invalid:  p.state.invalid,
	}
	if p.state.hasValid && s.FFTBins > 0 {
		snap.Bins = analysis.MapBins(p.state.mags, p.state.binHz, s.FFTBins, s.FFTMinFreq, s.FFTMaxFreq, make([]float64, s.FFTBins))
	}
	return snap
}

// Handler registration is safe from any goroutine, including from inside a
// handler. A handler takes effect at the start of the next Step.

func (p *Pipeline) OnBeat(fn analysis.EventHandler)        { p.register(func(h *analysis.FeatureProcessor) { h.OnBeat(fn) }) }
func (p *Pipeline) OnOnset(fn analysis.LevelHandler)       { p.register(func(h *analysis.FeatureProcessor) { h.OnOnset(fn) }) }
func (p *Pipeline) OnTempoChange(fn analysis.TempoHandler) { p.register(func(h *analysis.FeatureProcessor) { h.OnTempoChange(fn) }) }
func (p *Pipeline) OnBass(fn analysis.LevelHandler)        { p.register(func(h *analysis.FeatureProcessor) { h.OnBass(fn) }) }
func (p *Pipeline) OnMid(fn analysis.LevelHandler)         { p.register(func(h *analysis.FeatureProcessor) { h.OnMid(fn) }) }
func (p *Pipeline) OnTreble(fn analysis.LevelHandler)      { p.register(func(h *analysis.FeatureProcessor) { h.OnTreble(fn) }) }
func (p *Pipeline) OnEnergy(fn analysis.LevelHandler)      { p.register(func(h *analysis.FeatureProcessor) { h.OnEnergy(fn) }) }
func (p *Pipeline) OnPeak(fn analysis.LevelHandler)        { p.register(func(h *analysis.FeatureProcessor) { h.OnPeak(fn) }) }
func (p *Pipeline) OnFrame(fn analysis.EventHandler)       { p.register(func(h *analysis.FeatureProcessor) { h.OnFrame(fn) }) }

func (p *Pipeline) register(add func(*analysis.FeatureProcessor)) {
	p.pendingMu.Lock()
	p.handlers = append(p.handlers, add)
	p.pendingMu.Unlock()
}
