// SPDX-License-Identifier: MIT
package conditioning

// HistorySize is the number of recent levels the smoother takes the median
// over.
const HistorySize = 4

// Smoother stabilises a stream of block levels into a loudness value. Each
// input goes into a ring of recent levels; the median of the ring is then
// blended into the output with a heavier weight when rising (attack) than
// when falling (decay).
//
// The ring starts zero-filled, so a single outlier in a quiet stream is
// rejected by the median.
type Smoother struct {
	history      [HistorySize]float64
	next         int
	value        float64
	attackWeight float64
	decayWeight  float64
}

// NewSmoother returns a smoother whose output starts at zero. The weights
// are the share of the new median in the blended output and must lie in
// (0, 1].
func NewSmoother(attackWeight, decayWeight float64) *Smoother {
	return &Smoother{
		attackWeight: clampWeight(attackWeight),
		decayWeight:  clampWeight(decayWeight),
	}
}

// SetWeights changes the attack and decay weights without touching the
// history.
func (s *Smoother) SetWeights(attackWeight, decayWeight float64) {
	s.attackWeight = clampWeight(attackWeight)
	s.decayWeight = clampWeight(decayWeight)
}

// Update records rms and returns the new loudness.
func (s *Smoother) Update(rms float64) float64 {
	s.history[s.next] = rms
	s.next = (s.next + 1) % HistorySize

	median := s.median()
	w := s.decayWeight
	if median > s.value {
		w = s.attackWeight
	}
	s.value = w*median + (1-w)*s.value
	return s.value
}

// Value returns the current loudness without updating it.
func (s *Smoother) Value() float64 {
	return s.value
}

// Reset clears the history and output.
func (s *Smoother) Reset() {
	s.history = [HistorySize]float64{}
	s.next = 0
	s.value = 0
}

func (s *Smoother) median() float64 {
	sorted := s.history
	for i := 1; i < HistorySize; i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	mid := HistorySize / 2
	return (sorted[mid-1] + sorted[mid]) / 2
}

func clampWeight(w float64) float64 {
	switch {
	case w <= 0:
		return 0.01
	case w > 1:
		return 1
	default:
		return w
	}
}
