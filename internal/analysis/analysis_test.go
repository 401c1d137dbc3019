// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"slices"
	"testing"
	"time"

	"soundreactive/pkg/utils"
)

const (
	testBlockSize  = 512
	testSampleRate = 44100.0
	testBinWidth   = testSampleRate / testBlockSize
)

var frameDur = time.Duration(testBlockSize) * time.Second / time.Duration(testSampleRate)

func testSettings() Settings {
	return Settings{
		SampleRate:  testSampleRate,
		Window:      Hann,
		Gain:        1,
		Sensitivity: 1,
		Attack:      50 * time.Millisecond,
		Decay:       200 * time.Millisecond,
	}
}

func newTestProcessor(t testing.TB) *FeatureProcessor {
	t.Helper()
	p, err := NewFeatureProcessor(testBlockSize, testSettings())
	if err != nil {
		t.Fatalf("NewFeatureProcessor: %v", err)
	}
	return p
}

func ts(frame int) time.Duration {
	return time.Duration(frame) * frameDur
}

func bassBurst() []int16 {
	return utils.GenerateSineWave(testBlockSize, testSampleRate, 100, 8000)
}

func TestNewSpectrumValidation(t *testing.T) {
	if _, err := NewSpectrum(0, testSampleRate, Hann); err == nil {
		t.Error("expected error for zero block size")
	}
	if _, err := NewSpectrum(testBlockSize, 0, Hann); err == nil {
		t.Error("expected error for zero sample rate")
	}
	s, err := NewSpectrum(500, testSampleRate, Hamming)
	if err != nil {
		t.Fatal(err)
	}
	if s.FFTSize() != 512 || s.Bins() != 257 {
		t.Errorf("FFTSize=%d Bins=%d, want 512 and 257", s.FFTSize(), s.Bins())
	}
}

func TestSpectrumPeakBin(t *testing.T) {
	s, err := NewSpectrum(testBlockSize, testSampleRate, Hann)
	if err != nil {
		t.Fatal(err)
	}

	const bin = 20
	sine := utils.GenerateSineWave(testBlockSize, testSampleRate, bin*testBinWidth, 4000)
	s.Process(sine)

	mags := s.Magnitudes()
	if got := utils.FindPeakBin(mags, 0, len(mags)-1); got != bin {
		t.Errorf("peak bin = %d, want %d", got, bin)
	}
	want := 4000 * math.Sqrt2 / 32768
	if math.Abs(mags[bin]-want) > want*0.05 {
		t.Errorf("peak magnitude = %.4f, want %.4f", mags[bin], want)
	}
	if f := s.FrequencyForBin(bin); math.Abs(f-bin*testBinWidth) > 1e-6 {
		t.Errorf("FrequencyForBin(%d) = %f, want %f", bin, f, bin*testBinWidth)
	}
	if f := s.FrequencyForBin(-1); f != 0 {
		t.Errorf("FrequencyForBin(-1) = %f, want 0", f)
	}
	if f := s.FrequencyForBin(s.Bins()); f != 0 {
		t.Errorf("FrequencyForBin(out of range) = %f, want 0", f)
	}
}

func TestSpectrumMagnitudesInto(t *testing.T) {
	s, _ := NewSpectrum(testBlockSize, testSampleRate, Hann)
	s.Process(utils.GenerateComplexWave(testBlockSize, testSampleRate, 10000))

	if err := s.MagnitudesInto(make([]float64, 3)); err == nil {
		t.Error("expected length mismatch error")
	}
	dst := make([]float64, s.Bins())
	if err := s.MagnitudesInto(dst); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(dst, s.Magnitudes()) {
		t.Error("MagnitudesInto copy differs from Magnitudes")
	}
}

func TestSpectrumHotPathZeroAllocs(t *testing.T) {
	s, _ := NewSpectrum(testBlockSize, testSampleRate, Hann)
	block := utils.GenerateComplexWave(testBlockSize, testSampleRate, 10000)

	// Warm-up call so lazy initialisation does not count.
	s.Process(block)
	allocs := testing.AllocsPerRun(100, func() {
		s.Process(block)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Spectrum.Process, got %.1f", allocs)
	}
}

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		name    string
		want    WindowFunc
		wantErr bool
	}{
		{"Hann", Hann, false},
		{"hanning", Hann, false},
		{"BLACKMAN", Blackman, false},
		{"blackmannuttall", BlackmanNuttall, false},
		{"bartletthann", BartlettHann, false},
		{"hamming", Hamming, false},
		{"lanczos", Lanczos, false},
		{"nuttall", Nuttall, false},
		{"triangle", Hann, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindowFunc(tt.name)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseWindowFunc(%q) = %v, %v", tt.name, got, err)
			}
		})
	}
	if Nuttall.String() != "Nuttall" || WindowFunc(42).String() != "WindowFunc(42)" {
		t.Error("unexpected WindowFunc.String output")
	}
}

func TestBandSplitterSeparatesBands(t *testing.T) {
	s, _ := NewSpectrum(testBlockSize, testSampleRate, Hann)
	splitter := NewBandSplitter(s)

	tests := []struct {
		name string
		freq float64
		pick func(BandLevels) (float64, float64, float64)
	}{
		{"bass", 100, func(l BandLevels) (float64, float64, float64) { return l.Bass, l.Mid, l.Treble }},
		{"mid", 1000, func(l BandLevels) (float64, float64, float64) { return l.Mid, l.Bass, l.Treble }},
		{"treble", 8000, func(l BandLevels) (float64, float64, float64) { return l.Treble, l.Bass, l.Mid }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.Process(utils.GenerateSineWave(testBlockSize, testSampleRate, tt.freq, 4000))
			levels := splitter.Split(s.Magnitudes())
			own, a, b := tt.pick(levels)
			if own <= 0 || own < 5*a || own < 5*b {
				t.Errorf("levels = %+v, want %s dominant", levels, tt.name)
			}
		})
	}

	bands := splitter.Bands()
	if bands[0].LowHz != BassLowHz || bands[1].LowHz != BassHighHz || bands[2].LowHz != MidHighHz {
		t.Errorf("unexpected band edges: %+v", bands)
	}
}

func TestBandSplitterSilence(t *testing.T) {
	s, _ := NewSpectrum(testBlockSize, testSampleRate, Hann)
	s.Process(make([]int16, testBlockSize))
	if got := NewBandSplitter(s).Split(s.Magnitudes()); got != (BandLevels{}) {
		t.Errorf("silence levels = %+v, want zero", got)
	}
}

func TestBeatFlagSetForExactlyOneFrame(t *testing.T) {
	p := newTestProcessor(t)
	silence := make([]int16, testBlockSize)
	burst := bassBurst()

	beatFrames := []int{}
	frame := 0
	feed := func(block []int16, n int) {
		for i := 0; i < n; i++ {
			if f := p.Process(block, ts(frame)); f.Beat {
				beatFrames = append(beatFrames, frame)
			}
			frame++
		}
	}

	feed(silence, 20)
	feed(burst, 3)
	feed(silence, 20)

	if !slices.Equal(beatFrames, []int{20}) {
		t.Errorf("beat frames = %v, want [20]", beatFrames)
	}
	if f := p.Features(); f.Beat || f.BeatCount != 1 || f.LastBeat != ts(20) {
		t.Errorf("features after silence = %+v, want beat cleared, count 1, last beat %s", f, ts(20))
	}
	if last, ok := p.beat.LastBeat(); !ok || last != ts(20) {
		t.Errorf("detector LastBeat() = %s, %v, want %s", last, ok, ts(20))
	}
}

func TestBeatPulseTrain(t *testing.T) {
	p := newTestProcessor(t)
	silence := make([]int16, testBlockSize)
	burst := bassBurst()

	// One two-frame burst every 43 frames, about 120 BPM.
	var beats []int
	for frame := 0; frame < 43*8; frame++ {
		block := silence
		if frame >= 43 && frame%43 < 2 {
			block = burst
		}
		if p.Process(block, ts(frame)).Beat {
			beats = append(beats, frame)
		}
	}

	want := []int{43, 86, 129, 172, 215, 258, 301}
	if !slices.Equal(beats, want) {
		t.Fatalf("beat frames = %v, want %v", beats, want)
	}
	f := p.Features()
	if math.Abs(f.BPM-120) > 2 {
		t.Errorf("BPM = %.2f, want about 120", f.BPM)
	}
	if f.TempoConfidence < 0.95 {
		t.Errorf("confidence = %.3f, want near 1 for a steady pulse", f.TempoConfidence)
	}
}

func TestOnsetOnBurst(t *testing.T) {
	p := newTestProcessor(t)
	silence := make([]int16, testBlockSize)

	for i := 0; i < 10; i++ {
		if f := p.Process(silence, ts(i)); f.Onset {
			t.Fatalf("silence frame %d produced an onset", i)
		}
	}

	f := p.Process(utils.GenerateComplexWave(testBlockSize, testSampleRate, 12000), ts(10))
	if !f.Onset || f.OnsetStrength <= 1 || f.OnsetCount != 1 {
		t.Errorf("burst features = %+v, want an onset with strength above 1", f)
	}

	strength := f.OnsetStrength
	next := p.Process(silence, ts(11))
	if next.Onset || next.OnsetStrength != 0 {
		t.Errorf("onset flag persisted into the next frame: %+v", next)
	}
	if next.LastOnsetStrength != strength {
		t.Errorf("LastOnsetStrength = %g, want %g carried from the burst", next.LastOnsetStrength, strength)
	}
}

func TestEnergyPeakAndGain(t *testing.T) {
	sine := utils.GenerateSineWave(testBlockSize, testSampleRate, 1000, 4000)

	p := newTestProcessor(t)
	f := p.Process(sine, 0)
	if math.Abs(f.Energy-4000.0/32768) > 0.005 {
		t.Errorf("Energy = %.4f, want %.4f", f.Energy, 4000.0/32768)
	}
	if math.Abs(f.Peak-4000*math.Sqrt2/32768) > 0.005 {
		t.Errorf("Peak = %.4f, want %.4f", f.Peak, 4000*math.Sqrt2/32768)
	}
	if f.Mid <= 0 {
		t.Error("sine should report nonzero mid band energy")
	}

	s := testSettings()
	s.Gain = 2
	if err := p.Apply(s); err != nil {
		t.Fatal(err)
	}
	g := p.Process(sine, frameDur)
	if math.Abs(g.Energy-2*f.Energy) > 1e-9 {
		t.Errorf("Energy with gain 2 = %.4f, want %.4f", g.Energy, 2*f.Energy)
	}
}

func TestAGCNormalisesQuietInput(t *testing.T) {
	quiet := utils.GenerateSineWave(testBlockSize, testSampleRate, 1000, 200)

	plain := newTestProcessor(t)
	s := testSettings()
	s.AGCEnabled = true
	agc, err := NewFeatureProcessor(testBlockSize, s)
	if err != nil {
		t.Fatal(err)
	}

	var fp, fa Features
	for i := 0; i < 60; i++ {
		fp = plain.Process(quiet, ts(i))
		fa = agc.Process(quiet, ts(i))
	}
	if fp.Mid > 0.05 {
		t.Errorf("mid without AGC = %.3f, want small", fp.Mid)
	}
	if fa.Mid < 0.9 {
		t.Errorf("mid with AGC = %.3f, want near 1", fa.Mid)
	}
}

func TestApplyRebuildsSpectrum(t *testing.T) {
	p := newTestProcessor(t)
	s := testSettings()
	s.SampleRate = 48000
	s.Window = Blackman
	if err := p.Apply(s); err != nil {
		t.Fatal(err)
	}
	if p.Spectrum().SampleRate() != 48000 || p.Spectrum().WindowType() != Blackman {
		t.Error("Apply did not rebuild the spectrum")
	}
	if p.Settings() != s {
		t.Errorf("Settings() = %+v, want %+v", p.Settings(), s)
	}

	s.SampleRate = 0
	if err := p.Apply(s); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestHandlersDispatchOrder(t *testing.T) {
	p := newTestProcessor(t)

	var calls []string
	record := func(name string) LevelHandler {
		return func(float64, Features) { calls = append(calls, name) }
	}
	p.OnBass(record("bass"))
	p.OnMid(record("mid"))
	p.OnTreble(record("treble"))
	p.OnEnergy(record("energy"))
	p.OnPeak(record("peak"))
	p.OnOnset(record("onset"))
	p.OnBeat(func(Features) { calls = append(calls, "beat") })
	p.OnTempoChange(func(float64, float64, Features) { calls = append(calls, "tempo") })
	p.OnFrame(func(Features) { calls = append(calls, "frame") })

	if p.Len() != 9 {
		t.Fatalf("Len() = %d, want 9", p.Len())
	}

	silence := make([]int16, testBlockSize)
	for i := 0; i < 10; i++ {
		p.Emit(p.Process(silence, ts(i)))
	}
	want := []string{"bass", "mid", "treble", "energy", "peak", "frame"}
	if !slices.Equal(calls[len(calls)-6:], want) {
		t.Errorf("silent frame calls = %v, want %v", calls[len(calls)-6:], want)
	}

	calls = nil
	p.Emit(p.Process(bassBurst(), ts(10)))
	want = []string{"bass", "mid", "treble", "energy", "peak", "onset", "beat", "frame"}
	if !slices.Equal(calls, want) {
		t.Errorf("burst frame calls = %v, want %v", calls, want)
	}
}

func TestHandlersReceiveFrameValues(t *testing.T) {
	p := newTestProcessor(t)
	var gotBass float64
	var gotFrame Features
	p.OnBass(func(level float64, f Features) {
		gotBass = level
		if level != f.Bass {
			t.Errorf("level %g does not match frame bass %g", level, f.Bass)
		}
	})
	p.OnFrame(func(f Features) { gotFrame = f })

	f := p.Process(bassBurst(), 0)
	p.Emit(f)
	if gotBass != f.Bass || gotFrame != f {
		t.Error("handlers did not receive the emitted frame")
	}
}

func TestClearBeat(t *testing.T) {
	p := newTestProcessor(t)
	silence := make([]int16, testBlockSize)
	for i := 0; i < 10; i++ {
		p.Process(silence, ts(i))
	}
	if f := p.Process(bassBurst(), ts(10)); !f.Beat {
		t.Fatal("expected a beat on the burst frame")
	}
	f := p.ClearBeat()
	if f.Beat || f.BeatCount != 1 || f.Bass == 0 {
		t.Errorf("ClearBeat() = %+v, want beat cleared with levels kept", f)
	}
}

func TestTempoEstimatorSteadyPulse(t *testing.T) {
	e := NewTempoEstimator()
	var changes int
	for i := 0; i < 12; i++ {
		if e.AddBeat(time.Duration(i) * 500 * time.Millisecond) {
			changes++
		}
	}
	bpm, conf := e.Tempo()
	if math.Abs(bpm-120) > 1e-6 || conf != 1 {
		t.Errorf("Tempo() = (%g, %g), want (120, 1)", bpm, conf)
	}
	if changes != 1 {
		t.Errorf("tempo changed %d times, want once", changes)
	}
}

func TestTempoEstimatorFoldsRange(t *testing.T) {
	tests := []struct {
		interval time.Duration
		want     float64
	}{
		{250 * time.Millisecond, 120}, // 240 BPM halves.
		{1500 * time.Millisecond, 80},
		{2 * time.Second, 60},
	}
	for _, tt := range tests {
		e := NewTempoEstimator()
		for i := 0; i < 6; i++ {
			e.AddBeat(time.Duration(i) * tt.interval)
		}
		if bpm, _ := e.Tempo(); math.Abs(bpm-tt.want) > 1e-6 {
			t.Errorf("interval %s: bpm = %g, want %g", tt.interval, bpm, tt.want)
		}
	}
}

func TestTempoEstimatorConfidenceDrops(t *testing.T) {
	e := NewTempoEstimator()
	offsets := []time.Duration{0, 400, 1000, 1350, 2100, 2400}
	for _, ms := range offsets {
		e.AddBeat(ms * time.Millisecond)
	}
	if _, conf := e.Tempo(); conf >= 0.9 {
		t.Errorf("confidence = %g, want lower for an irregular pulse", conf)
	}
}

func TestMapBinsDeterministic(t *testing.T) {
	s, _ := NewSpectrum(testBlockSize, testSampleRate, Hann)
	const freq = 12 * testBinWidth
	s.Process(utils.GenerateSineWave(testBlockSize, testSampleRate, freq, 4000))

	a := MapBins(s.Magnitudes(), s.BinWidth(), 16, 174.6, 4698.3, nil)
	b := MapBins(s.Magnitudes(), s.BinWidth(), 16, 174.6, 4698.3, make([]float64, 0, 16))
	if len(a) != 16 || !slices.Equal(a, b) {
		t.Fatalf("MapBins not deterministic: %v vs %v", a, b)
	}

	edges := BinEdges(16, 174.6, 4698.3)
	want := -1
	for i := 0; i < 16; i++ {
		if freq >= edges[i] && freq < edges[i+1] {
			want = i
		}
	}
	if got := utils.FindPeakBin(a, 0, len(a)-1); got != want {
		t.Errorf("loudest output bin = %d, want %d (edges %v)", got, want, edges)
	}
	for i, v := range a {
		if v < 0 || math.IsNaN(v) {
			t.Errorf("bin %d = %g", i, v)
		}
	}
}

func TestMapBinsInvalidArguments(t *testing.T) {
	mags := []float64{1, 2, 3}
	tests := []struct {
		name             string
		count            int
		binHz, minHz, mx float64
	}{
		{"zero count", 0, 10, 10, 20},
		{"zero bin width", 4, 0, 10, 20},
		{"inverted range", 4, 10, 20, 10},
		{"zero min", 4, 10, 0, 20},
	}
	for _, tt := range tests {
		if got := MapBins(mags, tt.binHz, tt.count, tt.minHz, tt.mx, nil); len(got) != 0 {
			t.Errorf("%s: MapBins = %v, want empty", tt.name, got)
		}
	}
	if BinEdges(0, 1, 2) != nil {
		t.Error("BinEdges(0) should be nil")
	}
}

func TestFeatureProcessorZeroAllocs(t *testing.T) {
	p := newTestProcessor(t)
	block := utils.GenerateSineWave(testBlockSize, testSampleRate, 1000, 3000)
	p.Process(block, 0)

	frame := 1
	allocs := testing.AllocsPerRun(100, func() {
		p.Process(block, ts(frame))
		frame++
	})
	if allocs > 0 {
		t.Errorf("Process allocated: got %.1f allocs, want 0", allocs)
	}
}

func BenchmarkFeatureProcessor(b *testing.B) {
	p := newTestProcessor(b)
	block := utils.GenerateComplexWave(testBlockSize, testSampleRate, 10000)

	b.ReportAllocs()
	frame := 0
	for b.Loop() {
		p.Process(block, ts(frame))
		frame++
	}
}
