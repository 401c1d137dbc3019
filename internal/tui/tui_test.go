// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"soundreactive/internal/analysis"
	"soundreactive/internal/audio"
	"soundreactive/internal/config"
	"soundreactive/internal/pipeline"
)

type fakeController struct {
	snap     pipeline.Snapshot
	settings pipeline.Settings
	setErr   error
	sets     int
}

func (f *fakeController) Snapshot() pipeline.Snapshot  { return f.snap }
func (f *fakeController) Settings() pipeline.Settings  { return f.settings }
func (f *fakeController) SetSettings(s pipeline.Settings) error {
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.settings = s
	return nil
}

func newController() *fakeController {
	return &fakeController{settings: config.DefaultPipelineSettings()}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestMeterBeatIndicatorHolds(t *testing.T) {
	ctrl := newController()
	var m tea.Model = NewMeterModel(ctrl, time.Millisecond)

	ctrl.snap = pipeline.Snapshot{Features: analysis.Features{BeatCount: 1, BPM: 120, TempoConfidence: 0.9}, Frames: 10}
	m, _ = m.Update(tickMsg(time.Now()))
	if !strings.Contains(m.View(), "●") {
		t.Fatal("beat indicator not lit after a new beat")
	}
	if !strings.Contains(m.View(), "BPM 120.0") {
		t.Errorf("tempo missing from view:\n%s", m.View())
	}

	for i := 0; i < beatHoldTicks; i++ {
		m, _ = m.Update(tickMsg(time.Now()))
	}
	if strings.Contains(m.View(), "●") {
		t.Error("beat indicator still lit without new beats")
	}
}

func TestMeterKeysChangeSettings(t *testing.T) {
	tests := []struct {
		key   string
		check func(pipeline.Settings) bool
	}{
		{"g", func(s pipeline.Settings) bool { return !s.GateEnabled }},
		{"a", func(s pipeline.Settings) bool { return s.AGCEnabled }},
		{"+", func(s pipeline.Settings) bool { return s.Sensitivity == 1.1 }},
		{"-", func(s pipeline.Settings) bool { return s.Sensitivity == 0.91 }},
		{"]", func(s pipeline.Settings) bool { return s.Gain == 1.1 }},
		{"[", func(s pipeline.Settings) bool { return s.Gain == 0.91 }},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			ctrl := newController()
			m := NewMeterModel(ctrl, time.Millisecond)
			m.Update(runes(tt.key))
			if ctrl.sets != 1 || !tt.check(ctrl.settings) {
				t.Errorf("after %q: %d updates, settings %+v", tt.key, ctrl.sets, ctrl.settings)
			}
		})
	}
}

func TestMeterShowsSettingsError(t *testing.T) {
	ctrl := newController()
	ctrl.setErr = errors.New("gain and sensitivity must be positive")
	var m tea.Model = NewMeterModel(ctrl, time.Millisecond)
	m, _ = m.Update(runes("+"))
	if !strings.Contains(m.View(), "must be positive") {
		t.Error("settings error not shown")
	}
}

func TestMeterQuit(t *testing.T) {
	m := NewMeterModel(newController(), time.Millisecond)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c did not quit")
	}
}

func TestStepClamps(t *testing.T) {
	if got := step(4.9, stepFactor, sensitivityMin, sensitivityMax); got != sensitivityMax {
		t.Errorf("step up = %v, want clamp at %v", got, sensitivityMax)
	}
	if got := step(0.1, 1/stepFactor, sensitivityMin, sensitivityMax); got != sensitivityMin {
		t.Errorf("step down = %v, want clamp at %v", got, sensitivityMin)
	}
}

func TestSpark(t *testing.T) {
	tests := []struct {
		name string
		bins []float64
		want string
	}{
		{"Empty", nil, "-"},
		{"Silence", []float64{0, 0}, "▁▁"},
		{"Full Scale", []float64{1, 2}, "██"},
		{"Ramp", []float64{0.001, 0.0317, 1}, "▁▅█"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Spark(tt.bins); got != tt.want {
				t.Errorf("Spark(%v) = %q, want %q", tt.bins, got, tt.want)
			}
		})
	}
}

func testDevices() ([]audio.Device, error) {
	return []audio.Device{
		{ID: 0, Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 48000},
		{ID: 1, Name: "USB Mic", MaxInputChannels: 1, DefaultSampleRate: 44100},
		{ID: 2, Name: "Interface", MaxInputChannels: 2, MaxOutputChannels: 2, DefaultSampleRate: 32000},
	}, nil
}

func initDevices(t *testing.T, fetch DeviceFetcher) tea.Model {
	t.Helper()
	var m tea.Model = NewDeviceListModel(fetch)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = m.Update(m.Init()())
	return m
}

func TestDevicePickerFlow(t *testing.T) {
	m := initDevices(t, testDevices)
	if v := m.View(); strings.Contains(v, "Speakers") || !strings.Contains(v, "USB Mic") {
		t.Fatalf("list should show only inputs:\n%s", v)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !strings.Contains(m.View(), "32000 Hz") {
		t.Fatalf("device default rate missing from config screen:\n%s", m.View())
	}

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("confirming should quit the picker")
	}
	sel, ok := m.(DeviceListModel).Selected()
	if !ok || sel.DeviceID != 2 || sel.SampleRate != 32000 {
		t.Errorf("Selected() = %+v, %v", sel, ok)
	}
}

func TestDevicePickerBackAndQuit(t *testing.T) {
	m := initDevices(t, testDevices)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if !strings.Contains(m.View(), "Input Devices") {
		t.Error("esc should return to the list")
	}
	m, _ = m.Update(runes("q"))
	if _, ok := m.(DeviceListModel).Selected(); ok {
		t.Error("quitting should not select a device")
	}
}

func TestDevicePickerError(t *testing.T) {
	m := initDevices(t, func() ([]audio.Device, error) { return nil, audio.ErrNoDevice })
	if !strings.Contains(m.View(), "no input device") {
		t.Errorf("error not shown:\n%s", m.View())
	}
}
