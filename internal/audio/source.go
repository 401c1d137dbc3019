// SPDX-License-Identifier: MIT
/*
Package audio provides the PCM block sources feeding the conditioning
pipeline and the taps that capture blocks back to disk:

  - PortAudioSource: blocking capture from a microphone
  - WAVSource: deterministic replay of a recorded file
  - Recorder: WAV capture of raw or conditioned blocks for calibration

A source fills a caller-owned buffer once per frame. The pipeline owns that
buffer, so a Block is never shared between invocations.
*/
package audio

import (
	"errors"
	"time"
)

// ErrSourceClosed is returned by ReadBlock after Close.
var ErrSourceClosed = errors.New("audio source closed")

// Block is one fixed-length batch of signed 16-bit PCM samples captured
// together with one timestamp.
type Block struct {
	Samples   []int16       // Borrowed from the buffer passed to ReadBlock.
	Timestamp time.Duration // Monotonic capture time since the source started.
	Valid     bool          // False when the source reports a glitch (overflow, short read).
}

// Source produces PCM blocks. ReadBlock may block until a full block is
// available; it is the only place the pipeline waits.
type Source interface {
	// ReadBlock fills buf with the next block. A non-nil error means the
	// source itself is unhealthy; an invalid block is reported through
	// Block.Valid instead.
	ReadBlock(buf []int16) (Block, error)
	Close() error
}

// sampleDuration converts a running sample count into a timestamp.
func sampleDuration(samples int64, sampleRate float64) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(samples) * float64(time.Second) / sampleRate)
}
