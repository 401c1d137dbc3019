// SPDX-License-Identifier: MIT
package analysis

// FFTResultProvider exposes the latest magnitude spectrum. Band splitting,
// onset detection and bin mapping read through it so they stay decoupled
// from the transform itself.
type FFTResultProvider interface {
	Magnitudes() []float64                // Magnitudes returns the latest spectrum; callers must not retain or modify it.
	FrequencyForBin(binIndex int) float64 // FrequencyForBin returns the centre frequency (Hz) of a bin.
	BinWidth() float64                    // BinWidth returns the frequency resolution in Hz.
	FFTSize() int                         // FFTSize returns the number of transform points.
	SampleRate() float64                  // SampleRate returns the sample rate used for the analysis.
}
