// SPDX-License-Identifier: MIT
package analysis

import "math"

// Default band edges in Hz. Treble runs to the Nyquist frequency.
const (
	BassLowHz   = 20.0
	BassHighHz  = 250.0
	MidHighHz   = 4000.0
	bandsMaxBin = -1
)

// FrequencyBand defines the name and frequency range for an energy band.
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64

	first, last int // Inclusive bin range, resolved against the spectrum.
}

// BandLevels holds one energy value per band.
type BandLevels struct {
	Bass   float64 `json:"bass"`
	Mid    float64 `json:"mid"`
	Treble float64 `json:"treble"`
}

// BandSplitter reduces a magnitude spectrum to bass, mid and treble
// energies. Each band's energy is the root of the summed power of the bins
// whose centre frequency falls in [LowHz, HighHz), so a tone reads the same
// whichever band width it lands in.
type BandSplitter struct {
	bands [3]FrequencyBand
}

// NewBandSplitter resolves the default bands against provider's bin layout.
func NewBandSplitter(provider FFTResultProvider) *BandSplitter {
	nyquist := provider.SampleRate() / 2
	b := &BandSplitter{
		bands: [3]FrequencyBand{
			{Name: "bass", LowHz: BassLowHz, HighHz: BassHighHz},
			{Name: "mid", LowHz: BassHighHz, HighHz: MidHighHz},
			{Name: "treble", LowHz: MidHighHz, HighHz: nyquist + provider.BinWidth()},
		},
	}
	bins := provider.FFTSize()/2 + 1
	for i := range b.bands {
		b.bands[i].first, b.bands[i].last = binRange(provider, bins, b.bands[i].LowHz, b.bands[i].HighHz)
	}
	return b
}

// binRange returns the inclusive bin indices with centre in [lowHz, highHz),
// or (0, bandsMaxBin) when the band holds no bin.
func binRange(provider FFTResultProvider, bins int, lowHz, highHz float64) (first, last int) {
	first, last = 0, bandsMaxBin
	found := false
	for i := 0; i < bins; i++ {
		f := provider.FrequencyForBin(i)
		if f >= lowHz && f < highHz {
			if !found {
				first = i
				found = true
			}
			last = i
		}
	}
	return first, last
}

// Bands returns the resolved band definitions.
func (b *BandSplitter) Bands() []FrequencyBand {
	return b.bands[:]
}

// Split computes band energies from mags.
func (b *BandSplitter) Split(mags []float64) BandLevels {
	return BandLevels{
		Bass:   bandEnergy(mags, b.bands[0]),
		Mid:    bandEnergy(mags, b.bands[1]),
		Treble: bandEnergy(mags, b.bands[2]),
	}
}

func bandEnergy(mags []float64, band FrequencyBand) float64 {
	last := min(band.last, len(mags)-1)
	if last < band.first {
		return 0
	}
	var sum float64
	for _, m := range mags[band.first : last+1] {
		sum += m * m
	}
	return math.Sqrt(sum)
}
