// SPDX-License-Identifier: MIT
package conditioning

import "fmt"

// Gate is a hysteretic noise gate. It opens when the level reaches the open
// threshold and closes only when the level falls below the lower close
// threshold, so a level sitting between the two never toggles the state.
type Gate struct {
	enabled        bool
	open           bool
	openThreshold  float64
	closeThreshold float64
}

// NewGate returns a closed, enabled gate.
func NewGate(openThreshold, closeThreshold float64) (*Gate, error) {
	g := &Gate{enabled: true}
	if err := g.SetThresholds(openThreshold, closeThreshold); err != nil {
		return nil, err
	}
	return g, nil
}

// SetThresholds changes both thresholds. The gate state is kept.
func (g *Gate) SetThresholds(openThreshold, closeThreshold float64) error {
	if openThreshold <= closeThreshold {
		return fmt.Errorf("gate open threshold %.1f must be above close threshold %.1f", openThreshold, closeThreshold)
	}
	if closeThreshold < 0 {
		return fmt.Errorf("gate close threshold %.1f must not be negative", closeThreshold)
	}
	g.openThreshold = openThreshold
	g.closeThreshold = closeThreshold
	return nil
}

func (g *Gate) Enable() {
	g.enabled = true
}

// Disable makes the gate pass every block. The hysteresis state is reset to
// closed so re-enabling starts from silence.
func (g *Gate) Disable() {
	g.enabled = false
	g.open = false
}

func (g *Gate) Enabled() bool {
	return g.enabled
}

// IsOpen reports whether blocks currently pass. A disabled gate is always
// open.
func (g *Gate) IsOpen() bool {
	return !g.enabled || g.open
}

// Thresholds returns the open and close thresholds.
func (g *Gate) Thresholds() (openThreshold, closeThreshold float64) {
	return g.openThreshold, g.closeThreshold
}

// Update feeds the level of the current block and returns whether the gate
// is open for it and whether the state changed.
func (g *Gate) Update(rms float64) (open, changed bool) {
	if !g.enabled {
		return true, false
	}

	prev := g.open
	if rms >= g.openThreshold {
		g.open = true
	} else if rms < g.closeThreshold {
		g.open = false
	}
	return g.open, g.open != prev
}

// Apply zeroes block when the gate is closed.
func (g *Gate) Apply(block []int16) {
	if g.IsOpen() {
		return
	}
	clear(block)
}
