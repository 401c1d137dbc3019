// SPDX-License-Identifier: MIT
package diagnostics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope for all pipeline metrics.
const meterName = "soundreactive/pipeline"

// Metrics holds the OpenTelemetry instruments the aggregator records to.
// The OTel types handle their own synchronisation.
type Metrics struct {
	// Blocks counts blocks read. Attribute status is "valid" or "invalid".
	Blocks metric.Int64Counter

	// SpikeBlocks counts valid blocks. Attribute kind is "clean" or "spiky".
	SpikeBlocks metric.Int64Counter

	// Spikes counts individual spike samples.
	Spikes metric.Int64Counter

	// GateTransitions counts gate state changes. Attribute state is the new
	// state, "open" or "closed".
	GateTransitions metric.Int64Counter

	// Level records the conditioned block RMS.
	Level metric.Float64Gauge
}

var (
	attrValid   = metric.WithAttributes(attribute.String("status", "valid"))
	attrInvalid = metric.WithAttributes(attribute.String("status", "invalid"))
	attrClean   = metric.WithAttributes(attribute.String("kind", "clean"))
	attrSpiky   = metric.WithAttributes(attribute.String("kind", "spiky"))
	attrOpen    = metric.WithAttributes(attribute.String("state", "open"))
	attrClosed  = metric.WithAttributes(attribute.String("state", "closed"))
)

// NewMetrics creates the instruments on mp. A nil provider records nothing.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Blocks, err = m.Int64Counter("soundreactive.blocks",
		metric.WithDescription("Blocks read from the audio source by validity."),
	); err != nil {
		return nil, err
	}
	if met.SpikeBlocks, err = m.Int64Counter("soundreactive.spike_blocks",
		metric.WithDescription("Valid blocks with and without spikes."),
	); err != nil {
		return nil, err
	}
	if met.Spikes, err = m.Int64Counter("soundreactive.spikes",
		metric.WithDescription("Spike samples rejected by the spike filter."),
	); err != nil {
		return nil, err
	}
	if met.GateTransitions, err = m.Int64Counter("soundreactive.gate.transitions",
		metric.WithDescription("Noise gate state changes by new state."),
	); err != nil {
		return nil, err
	}
	if met.Level, err = m.Float64Gauge("soundreactive.level",
		metric.WithDescription("RMS of the latest conditioned block in sample units."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

func (m *Metrics) record(ctx context.Context, o Observation) {
	if !o.Valid {
		m.Blocks.Add(ctx, 1, attrInvalid)
		return
	}
	m.Blocks.Add(ctx, 1, attrValid)
	if o.Spikes > 0 {
		m.SpikeBlocks.Add(ctx, 1, attrSpiky)
		m.Spikes.Add(ctx, int64(o.Spikes))
	} else {
		m.SpikeBlocks.Add(ctx, 1, attrClean)
	}
	if o.GateChanged {
		if o.GateOpen {
			m.GateTransitions.Add(ctx, 1, attrOpen)
		} else {
			m.GateTransitions.Add(ctx, 1, attrClosed)
		}
	}
	m.Level.Record(ctx, o.RMS)
}
