// SPDX-License-Identifier: MIT
/*
Package diagnostics keeps rolling calibration statistics about the blocks the
pipeline processes. It only observes: nothing here feeds back into gating,
smoothing or feature extraction, and the pipeline runs the same whether or
not an Aggregator is attached.
*/
package diagnostics

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	applog "soundreactive/internal/log"
)

// Observation is what the pipeline reports about one frame. Raw is only
// read during Observe and is not retained.
type Observation struct {
	Valid       bool
	Raw         []int16
	Spikes      int
	RMS         float64 // Conditioned RMS before gating.
	Smoothed    float64 // Loudness after gating and smoothing.
	Offset      int16
	GateOpen    bool
	GateChanged bool
}

// Summary is a point-in-time copy of the counters. Counters wrap at 2^64.
type Summary struct {
	Total   uint64 `json:"total"`
	Valid   uint64 `json:"valid"`
	Invalid uint64 `json:"invalid"`
	Clean   uint64 `json:"clean"`
	Spiky   uint64 `json:"spiky"`
	Spikes  uint64 `json:"spikes"`
}

// SpikyPercent is the share of valid blocks that contained a spike.
func (s Summary) SpikyPercent() float64 {
	n := s.Clean + s.Spiky
	if n == 0 {
		return 0
	}
	return float64(s.Spiky) * 100 / float64(n)
}

func (s Summary) String() string {
	return fmt.Sprintf("%d clean blocks, %d with spikes (%.1f%%)", s.Clean, s.Spiky, s.SpikyPercent())
}

// Config controls periodic reporting. Zero intervals disable that report.
type Config struct {
	Interval        time.Duration // Calibration CSV line.
	SummaryInterval time.Duration // Clean/spiky summary and validity counts.
	MeterProvider   metric.MeterProvider
}

// Aggregator accumulates counters and emits periodic reports. Observe is
// called from the pipeline goroutine; Summary and Last are safe from any
// goroutine.
type Aggregator struct {
	cfg     Config
	metrics *Metrics

	total, valid, invalid atomic.Uint64
	clean, spiky, spikes  atomic.Uint64

	mu          sync.Mutex
	last        BlockStats
	lastObs     Observation
	lastCSV     time.Time
	lastSummary time.Time
	header      bool
}

// New returns an Aggregator. Metrics go to cfg.MeterProvider when set.
func New(cfg Config) (*Aggregator, error) {
	m, err := NewMetrics(cfg.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("diagnostics metrics: %w", err)
	}
	return &Aggregator{cfg: cfg, metrics: m}, nil
}

// Observe records one frame.
func (a *Aggregator) Observe(o Observation) {
	a.total.Add(1)
	a.metrics.record(context.Background(), o)

	if !o.Valid {
		a.invalid.Add(1)
		return
	}
	a.valid.Add(1)
	if o.Spikes > 0 {
		a.spiky.Add(1)
		a.spikes.Add(uint64(o.Spikes))
	} else {
		a.clean.Add(1)
	}

	stats := Measure(o.Raw)
	a.mu.Lock()
	a.last = stats
	a.lastObs = o
	a.lastObs.Raw = nil
	a.mu.Unlock()
}

// Summary returns the current counters.
func (a *Aggregator) Summary() Summary {
	return Summary{
		Total:   a.total.Load(),
		Valid:   a.valid.Load(),
		Invalid: a.invalid.Load(),
		Clean:   a.clean.Load(),
		Spiky:   a.spiky.Load(),
		Spikes:  a.spikes.Load(),
	}
}

// Last returns calibration statistics of the latest valid block.
func (a *Aggregator) Last() BlockStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Report returns the report lines due at now and logs them. The first call
// starts both intervals, so nothing is due until one interval has passed.
func (a *Aggregator) Report(now time.Time) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lastCSV.IsZero() {
		a.lastCSV, a.lastSummary = now, now
		return nil
	}

	var lines []string
	if a.cfg.Interval > 0 && now.Sub(a.lastCSV) >= a.cfg.Interval {
		a.lastCSV = now
		if a.valid.Load() > 0 {
			if !a.header {
				lines = append(lines, CSVHeader)
				a.header = true
			}
			lines = append(lines, CSVLine(a.lastObs.Spikes, a.last, a.lastObs.Smoothed, a.lastObs.Offset))
		}
	}
	if a.cfg.SummaryInterval > 0 && now.Sub(a.lastSummary) >= a.cfg.SummaryInterval {
		a.lastSummary = now
		s := a.Summary()
		lines = append(lines, s.String())
		if s.Invalid > 0 {
			lines = append(lines, fmt.Sprintf("blocks: %d total, %d valid, %d invalid", s.Total, s.Valid, s.Invalid))
		}
	}

	for _, l := range lines {
		applog.Infof("Diagnostics: %s", l)
	}
	return lines
}

// Run calls Report every tick until ctx is done.
func (a *Aggregator) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		return
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.Report(now)
		}
	}
}
