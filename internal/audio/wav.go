// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	applog "soundreactive/internal/log"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVSource replays a WAV file block by block. Multi-channel files are
// reduced to their first channel and every bit depth is rescaled to int16.
// Timestamps are derived from the sample position, so replays are
// deterministic.
type WAVSource struct {
	file     io.ReadSeekCloser
	decoder  *wav.Decoder
	scratch  *goaudio.IntBuffer
	channels int
	bitDepth int
	rate     float64
	loop     bool

	position int64 // Samples per channel delivered so far.
	closed   bool
}

// OpenWAVSource opens path and prepares it for reading blockSize samples per block.
// When loop is set the file is rewound at its end instead of reporting io.EOF.
func OpenWAVSource(path string, blockSize int, loop bool) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav file: %w", err)
	}
	src, err := NewWAVSource(f, blockSize, loop)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return src, nil
}

// NewWAVSource wraps an already opened WAV stream.
func NewWAVSource(r io.ReadSeekCloser, blockSize int, loop bool) (*WAVSource, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("not a valid wav file")
	}
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("failed to read wav header: %w", err)
	}

	channels := int(d.NumChans)
	if channels < 1 {
		return nil, fmt.Errorf("wav file has no channels")
	}
	bitDepth := int(d.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported wav bit depth %d", bitDepth)
	}

	applog.Infof("audio: replaying wav (%d Hz, %d-bit, %d channel(s))", d.SampleRate, bitDepth, channels)

	return &WAVSource{
		file:    r,
		decoder: d,
		scratch: &goaudio.IntBuffer{
			Format: &goaudio.Format{NumChannels: channels, SampleRate: int(d.SampleRate)},
			Data:   make([]int, blockSize*channels),
		},
		channels: channels,
		bitDepth: bitDepth,
		rate:     float64(d.SampleRate),
		loop:     loop,
	}, nil
}

// SampleRate returns the sample rate declared by the file header.
func (s *WAVSource) SampleRate() float64 {
	return s.rate
}

// ReadBlock decodes the next block into buf. A short final block is
// zero-padded and still valid. At the end of the file io.EOF is returned
// unless the source loops.
func (s *WAVSource) ReadBlock(buf []int16) (Block, error) {
	if s.closed {
		return Block{}, ErrSourceClosed
	}

	want := len(buf) * s.channels
	if cap(s.scratch.Data) < want {
		s.scratch.Data = make([]int, want)
	}
	s.scratch.Data = s.scratch.Data[:want]

	n, err := s.decoder.PCMBuffer(s.scratch)
	if err != nil && !errors.Is(err, io.EOF) {
		return Block{}, fmt.Errorf("decode wav: %w", err)
	}
	if n == 0 {
		if !s.loop {
			return Block{}, io.EOF
		}
		if err := s.decoder.Rewind(); err != nil {
			return Block{}, fmt.Errorf("rewind wav: %w", err)
		}
		if n, _ = s.decoder.PCMBuffer(s.scratch); n == 0 {
			return Block{}, fmt.Errorf("wav file has no samples to loop")
		}
	}

	frames := n / s.channels
	for i := range buf {
		if i < frames {
			buf[i] = s.toInt16(s.scratch.Data[i*s.channels])
		} else {
			buf[i] = 0
		}
	}

	ts := sampleDuration(s.position, s.rate)
	s.position += int64(frames)
	return Block{Samples: buf, Timestamp: ts, Valid: frames > 0}, nil
}

func (s *WAVSource) toInt16(v int) int16 {
	switch s.bitDepth {
	case 8:
		// 8-bit WAV is unsigned.
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}

// Close releases the underlying file.
func (s *WAVSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

var _ Source = (*WAVSource)(nil)
