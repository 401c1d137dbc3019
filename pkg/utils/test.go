// SPDX-License-Identifier: MIT

// Package utils holds synthetic signal generators and a capturing transport
// shared by the tests of the conditioning, analysis and pipeline packages.
package utils

import (
	"math"
	"sync"
)

// MockTransport implements the transport.Transport interface for testing.
type MockTransport struct {
	mu     sync.Mutex
	Sent   []any
	Closed bool
}

// Send records data for later inspection instead of transmitting.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, data)
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *MockTransport) Messages() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.Sent))
	copy(out, m.Sent)
	return out
}

// GenerateSineWave returns size samples of a sine at frequency whose RMS is
// rms (peak = rms * sqrt 2), clamped to the int16 range.
func GenerateSineWave(size int, sampleRate, frequency, rms float64) []int16 {
	buffer := make([]int16, size)
	amp := rms * math.Sqrt2
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = toInt16(amp * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// GenerateComplexWave returns a 440 Hz fundamental with two harmonics at the
// given peak amplitude.
func GenerateComplexWave(size int, sampleRate, peak float64) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = toInt16(signal * peak)
	}
	return buffer
}

// GenerateSpikeBlock returns size samples of fill with value written at
// every index in positions.
func GenerateSpikeBlock(size int, fill, value int16, positions ...int) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		buffer[i] = fill
	}
	for _, p := range positions {
		if p >= 0 && p < size {
			buffer[p] = value
		}
	}
	return buffer
}

// GenerateConstant returns size copies of v.
func GenerateConstant(size int, v int16) []int16 {
	return GenerateSpikeBlock(size, v, v)
}

// FindPeakBin returns the index of the largest magnitude in
// magnitudes[startBin:endBin+1].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}

func toInt16(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
