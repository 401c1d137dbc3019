// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	applog "soundreactive/internal/log"

	"github.com/gordonklaus/portaudio"
)

// PortAudioSource captures mono int16 blocks from an input device using a
// blocking PortAudio stream.
type PortAudioSource struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16 // Stream buffer; PortAudio reads into it on every Read.
	start  time.Time
	closed bool

	sampleRate float64
	overflows  uint64
}

// NewPortAudioSource opens and starts a mono capture stream on deviceID.
// Initialize must have been called first.
func NewPortAudioSource(deviceID int, sampleRate float64, blockSize int, lowLatency bool) (*PortAudioSource, error) {
	device, err := InputDevice(deviceID)
	if err != nil {
		return nil, err
	}

	latency := device.DefaultHighInputLatency
	if lowLatency {
		latency = device.DefaultLowInputLatency
	}

	s := &PortAudioSource{
		buf:        make([]int16, blockSize),
		sampleRate: sampleRate,
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 1,
			Device:   device,
			Latency:  latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: blockSize,
		SampleRate:      sampleRate,
	}

	// Passing a buffer instead of a callback selects the blocking API.
	stream, err := portaudio.OpenStream(params, s.buf)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream on %q: %w", device.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start input stream on %q: %w", device.Name, err)
	}

	s.stream = stream
	s.start = time.Now()
	applog.Infof("audio: capturing from %q (%.0f Hz, %d samples/block, latency %s)",
		device.Name, sampleRate, blockSize, latency)
	return s, nil
}

// ReadBlock waits for the next block from the device. An input overflow
// yields an invalid block rather than an error.
func (s *PortAudioSource) ReadBlock(buf []int16) (Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Block{}, ErrSourceClosed
	}

	err := s.stream.Read()
	ts := time.Since(s.start)
	n := copy(buf, s.buf)
	block := Block{Samples: buf[:n], Timestamp: ts, Valid: n == len(s.buf)}

	if errors.Is(err, portaudio.InputOverflowed) {
		s.overflows++
		block.Valid = false
		return block, nil
	}
	if err != nil {
		return Block{Timestamp: ts}, fmt.Errorf("read input stream: %w", err)
	}
	return block, nil
}

// Overflows returns how many reads reported an input overflow.
func (s *PortAudioSource) Overflows() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overflows
}

// Close stops and closes the stream. It is safe to call more than once.
func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.stream.Stop(); err != nil {
		s.stream.Close()
		return fmt.Errorf("failed to stop input stream: %w", err)
	}
	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("failed to close input stream: %w", err)
	}
	return nil
}

var _ Source = (*PortAudioSource)(nil)
