// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	applog "soundreactive/internal/log"
	"soundreactive/pkg/bitint"
)

// WindowFunc defines the type for selecting an FFT window function.
type WindowFunc int

// Enum for available window functions.
const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

var windowNames = [...]string{
	BartlettHann:    "BartlettHann",
	Blackman:        "Blackman",
	BlackmanNuttall: "BlackmanNuttall",
	Hann:            "Hann",
	Hamming:         "Hamming",
	Lanczos:         "Lanczos",
	Nuttall:         "Nuttall",
}

func (w WindowFunc) String() string {
	if w < 0 || int(w) >= len(windowNames) {
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
	return windowNames[w]
}

// Pre-allocated buffers for FFT calculations.
type fftWorkspace struct {
	input     []float64    // Windowed, zero-padded transform input.
	fftOutput []complex128 // Complex coefficients, fftSize/2 + 1 of them.
	magnitude []float64    // Normalised magnitude per bin.
	window    []float64    // Window coefficients over the block length.
}

// Spectrum computes the magnitude spectrum of one block at a time. Input
// blocks are windowed over their own length and zero padded up to the next
// power of two. Magnitudes are scaled so a full-scale sine reads about 1.0
// in its peak bin.
//
// A Spectrum is owned by a single goroutine.
type Spectrum struct {
	fftCalculator *fourier.FFT
	fftSize       int
	blockSize     int
	sampleRate    float64
	windowType    WindowFunc
	scale         float64
	workspace     fftWorkspace
}

var _ FFTResultProvider = (*Spectrum)(nil)

// NewSpectrum sizes the transform for blocks of blockSize samples.
func NewSpectrum(blockSize int, sampleRate float64, windowType WindowFunc) (*Spectrum, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	fftSize := bitint.NextPowerOfTwo(blockSize)
	windowCoeffs := make([]float64, blockSize)
	applyWindow(windowCoeffs, windowType)

	var coherentGain float64
	for _, c := range windowCoeffs {
		coherentGain += c
	}
	scale := 0.0
	if coherentGain > 0 {
		scale = 2 / coherentGain
	}

	magnitudeSize := fftSize/2 + 1

	applog.Debugf("Analysis: Initializing Spectrum (Size: %d, Block: %d, SampleRate: %.1f Hz, Window: %v)",
		fftSize, blockSize, sampleRate, windowType)

	return &Spectrum{
		fftCalculator: fourier.NewFFT(fftSize),
		fftSize:       fftSize,
		blockSize:     blockSize,
		sampleRate:    sampleRate,
		windowType:    windowType,
		scale:         scale,
		workspace: fftWorkspace{
			input:     make([]float64, fftSize),
			fftOutput: make([]complex128, magnitudeSize),
			magnitude: make([]float64, magnitudeSize),
			window:    windowCoeffs,
		},
	}, nil
}

// Process windows samples, runs the FFT and refreshes the magnitudes.
// Samples beyond the configured block size are ignored.
func (s *Spectrum) Process(samples []int16) {
	const normFactor = 1.0 / 32768.0

	n := min(len(samples), s.blockSize)
	for i := range s.fftSize {
		if i < n {
			s.workspace.input[i] = float64(samples[i]) * normFactor * s.workspace.window[i]
		} else {
			s.workspace.input[i] = 0
		}
	}

	s.fftCalculator.Coefficients(s.workspace.fftOutput, s.workspace.input)

	for i, c := range s.workspace.fftOutput {
		s.workspace.magnitude[i] = cmplx.Abs(c) * s.scale
	}
}

// Magnitudes returns the internal magnitude buffer. It is overwritten by the
// next Process call and must not be modified.
func (s *Spectrum) Magnitudes() []float64 {
	return s.workspace.magnitude
}

// MagnitudesInto copies the magnitudes into dest, which must have exactly
// Bins() elements.
func (s *Spectrum) MagnitudesInto(dest []float64) error {
	if len(dest) != len(s.workspace.magnitude) {
		return fmt.Errorf("destination slice length %d does not match required length %d", len(dest), len(s.workspace.magnitude))
	}
	copy(dest, s.workspace.magnitude)
	return nil
}

// FrequencyForBin returns the centre frequency (Hz) of binIndex, or 0 when
// it is out of range.
func (s *Spectrum) FrequencyForBin(binIndex int) float64 {
	if binIndex < 0 || binIndex >= len(s.workspace.magnitude) {
		return 0.0
	}
	return s.fftCalculator.Freq(binIndex) * s.sampleRate
}

// BinWidth is the frequency resolution in Hz.
func (s *Spectrum) BinWidth() float64 {
	return s.sampleRate / float64(s.fftSize)
}

func (s *Spectrum) Bins() int              { return len(s.workspace.magnitude) }
func (s *Spectrum) FFTSize() int           { return s.fftSize }
func (s *Spectrum) SampleRate() float64    { return s.sampleRate }
func (s *Spectrum) WindowType() WindowFunc { return s.windowType }

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Hann) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// applyWindow fills coeffs with the selected window. Unknown types fall
// back to Hann.
func applyWindow(coeffs []float64, windowType WindowFunc) {
	// gonum windows multiply in place, so start from ones.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		applog.Warnf("Analysis: Unknown window function type %d, defaulting to Hann", windowType)
		window.Hann(coeffs)
	}
}
