// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Recorder writes mono 16-bit blocks to a WAV file. It is used as a frame
// tap for calibration captures and never alters the blocks it is given.
type Recorder struct {
	mu        sync.Mutex
	file      *os.File
	encoder   *wav.Encoder
	sampleBuf *goaudio.IntBuffer // Reusable buffer for format conversion
	written   int64
}

// NewRecorder creates filename and prepares a 16-bit mono WAV encoder.
func NewRecorder(filename string, sampleRate float64, blockSize int) (*Recorder, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}

	return &Recorder{
		file:    file,
		encoder: wav.NewEncoder(file, int(sampleRate), 16, 1, 1),
		sampleBuf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 1, SampleRate: int(sampleRate)},
			Data:           make([]int, blockSize),
			SourceBitDepth: 16,
		},
	}, nil
}

// WriteBlock appends samples to the recording.
func (r *Recorder) WriteBlock(samples []int16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return fmt.Errorf("recorder closed")
	}

	if cap(r.sampleBuf.Data) < len(samples) {
		r.sampleBuf.Data = make([]int, len(samples))
	}
	r.sampleBuf.Data = r.sampleBuf.Data[:len(samples)]
	for i, sample := range samples {
		r.sampleBuf.Data[i] = int(sample)
	}

	if err := r.encoder.Write(r.sampleBuf); err != nil {
		return fmt.Errorf("write wav block: %w", err)
	}
	r.written += int64(len(samples))
	return nil
}

// Written returns the number of samples recorded so far.
func (r *Recorder) Written() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Close finalises the WAV header and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return nil
	}

	err := r.encoder.Close()
	r.encoder = nil
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	r.file = nil
	if err != nil {
		return fmt.Errorf("failed to finalise recording: %w", err)
	}
	return nil
}
