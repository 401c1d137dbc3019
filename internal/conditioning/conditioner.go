// SPDX-License-Identifier: MIT
package conditioning

import "fmt"

// Conditioned is the outcome of conditioning one block.
type Conditioned struct {
	// Samples is the spike-free, DC-corrected and gated block. It aliases
	// the conditioner's scratch buffer and is overwritten by the next call.
	Samples []int16

	Spikes      int
	Offset      int16
	Level       LevelResult
	GateOpen    bool
	GateChanged bool

	// Loudness is the smoothed level after gating.
	Loudness float64
}

// Settings groups the tunables of a Conditioner.
type Settings struct {
	SpikeThreshold int
	GateEnabled    bool
	GateOpen       float64
	GateClose      float64
	AttackWeight   float64
	DecayWeight    float64
}

// Conditioner runs the full conditioning chain over fixed-size blocks.
type Conditioner struct {
	threshold int
	gate      *Gate
	smoother  *Smoother
	scratch   []int16
}

// NewConditioner allocates a conditioner for blocks of up to blockSize
// samples.
func NewConditioner(blockSize int, s Settings) (*Conditioner, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}
	gate, err := NewGate(s.GateOpen, s.GateClose)
	if err != nil {
		return nil, err
	}
	c := &Conditioner{
		gate:     gate,
		smoother: NewSmoother(s.AttackWeight, s.DecayWeight),
		scratch:  make([]int16, blockSize),
	}
	if err := c.Apply(s); err != nil {
		return nil, err
	}
	return c, nil
}

// Apply changes the tunables. Gate and smoother state carry over.
func (c *Conditioner) Apply(s Settings) error {
	if s.SpikeThreshold <= 0 {
		return fmt.Errorf("spike threshold must be positive, got %d", s.SpikeThreshold)
	}
	if err := c.gate.SetThresholds(s.GateOpen, s.GateClose); err != nil {
		return err
	}
	if s.GateEnabled {
		c.gate.Enable()
	} else {
		c.gate.Disable()
	}
	c.threshold = s.SpikeThreshold
	c.smoother.SetWeights(s.AttackWeight, s.DecayWeight)
	return nil
}

// Condition processes raw. raw itself is never modified.
func (c *Conditioner) Condition(raw []int16) Conditioned {
	if cap(c.scratch) < len(raw) {
		c.scratch = make([]int16, len(raw))
	}
	out := c.scratch[:len(raw)]

	spikes := FilterSpikes(raw, out, c.threshold)
	offset := CorrectDC(raw, out, c.threshold)
	level := MeasureLevel(raw, out, spikes)

	open, changed := c.gate.Update(level.RMS)
	gated := level.RMS
	if !open {
		clear(out)
		gated = 0
	}

	return Conditioned{
		Samples:     out,
		Spikes:      spikes,
		Offset:      offset,
		Level:       level,
		GateOpen:    open,
		GateChanged: changed,
		Loudness:    c.smoother.Update(gated),
	}
}

// Loudness returns the last smoothed level.
func (c *Conditioner) Loudness() float64 {
	return c.smoother.Value()
}

func (c *Conditioner) Gate() *Gate {
	return c.gate
}

// Reset returns the gate to closed and clears the loudness history.
func (c *Conditioner) Reset() {
	c.gate.open = false
	c.smoother.Reset()
}
