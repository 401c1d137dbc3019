// SPDX-License-Identifier: MIT
package analysis

// Handler types. Every handler also receives the frame's Features by value.
type (
	EventHandler func(f Features)
	LevelHandler func(level float64, f Features)
	TempoHandler func(bpm, confidence float64, f Features)
)

// Handlers is a set of typed handler slots. Dispatch runs synchronously in
// a fixed order: bass, mid, treble, energy, peak, onset, beat, tempo and
// finally frame handlers. Registration is not safe concurrently with
// Dispatch; callers serialise the two.
type Handlers struct {
	beat   []EventHandler
	onset  []LevelHandler
	tempo  []TempoHandler
	bass   []LevelHandler
	mid    []LevelHandler
	treble []LevelHandler
	energy []LevelHandler
	peak   []LevelHandler
	frame  []EventHandler
}

func (h *Handlers) OnBeat(fn EventHandler)        { h.beat = append(h.beat, fn) }
func (h *Handlers) OnOnset(fn LevelHandler)       { h.onset = append(h.onset, fn) }
func (h *Handlers) OnTempoChange(fn TempoHandler) { h.tempo = append(h.tempo, fn) }
func (h *Handlers) OnBass(fn LevelHandler)        { h.bass = append(h.bass, fn) }
func (h *Handlers) OnMid(fn LevelHandler)         { h.mid = append(h.mid, fn) }
func (h *Handlers) OnTreble(fn LevelHandler)      { h.treble = append(h.treble, fn) }
func (h *Handlers) OnEnergy(fn LevelHandler)      { h.energy = append(h.energy, fn) }
func (h *Handlers) OnPeak(fn LevelHandler)        { h.peak = append(h.peak, fn) }

// OnFrame registers a handler called once for every analysed frame.
func (h *Handlers) OnFrame(fn EventHandler) { h.frame = append(h.frame, fn) }

// Len returns the number of registered handlers.
func (h *Handlers) Len() int {
	return len(h.beat) + len(h.onset) + len(h.tempo) + len(h.bass) + len(h.mid) +
		len(h.treble) + len(h.energy) + len(h.peak) + len(h.frame)
}

// Dispatch invokes the handlers for f. Level handlers run every frame;
// onset, beat and tempo handlers only in frames where the event fired.
func (h *Handlers) Dispatch(f Features) {
	for _, fn := range h.bass {
		fn(f.Bass, f)
	}
	for _, fn := range h.mid {
		fn(f.Mid, f)
	}
	for _, fn := range h.treble {
		fn(f.Treble, f)
	}
	for _, fn := range h.energy {
		fn(f.Energy, f)
	}
	for _, fn := range h.peak {
		fn(f.Peak, f)
	}
	if f.Onset {
		for _, fn := range h.onset {
			fn(f.OnsetStrength, f)
		}
	}
	if f.Beat {
		for _, fn := range h.beat {
			fn(f)
		}
	}
	if f.TempoChanged {
		for _, fn := range h.tempo {
			fn(f.BPM, f.TempoConfidence, f)
		}
	}
	for _, fn := range h.frame {
		fn(f)
	}
}
