// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"soundreactive/internal/pipeline"
)

const (
	// LoudnessFullScale is the loudness drawn as a full bar.
	LoudnessFullScale = 8000.0

	beatHoldTicks  = 4
	sensitivityMin = 0.1
	sensitivityMax = 5.0
	gainMin        = 0.1
	gainMax        = 10.0
	stepFactor     = 1.1
)

// Controller is the part of the pipeline the meter reads and tunes.
type Controller interface {
	Snapshot() pipeline.Snapshot
	Settings() pipeline.Settings
	SetSettings(pipeline.Settings) error
}

type meterKeys struct {
	Quit     key.Binding
	Gate     key.Binding
	AGC      key.Binding
	SensUp   key.Binding
	SensDown key.Binding
	GainUp   key.Binding
	GainDown key.Binding
}

func (k meterKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Gate, k.AGC, k.SensUp, k.SensDown, k.GainUp, k.GainDown, k.Quit}
}

func (k meterKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func defaultMeterKeys() meterKeys {
	return meterKeys{
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Gate:     key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "gate")),
		AGC:      key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "agc")),
		SensUp:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "sens up")),
		SensDown: key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "sens down")),
		GainUp:   key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "gain up")),
		GainDown: key.NewBinding(key.WithKeys("["), key.WithHelp("[", "gain down")),
	}
}

type tickMsg time.Time

// MeterModel renders the live pipeline state and maps keys to settings
// changes.
type MeterModel struct {
	ctrl     Controller
	interval time.Duration
	keys     meterKeys
	help     help.Model
	bar      progress.Model

	snap      pipeline.Snapshot
	settings  pipeline.Settings
	lastBeats uint64
	beatHold  int
	err       error
}

// NewMeterModel polls ctrl every interval.
func NewMeterModel(ctrl Controller, interval time.Duration) MeterModel {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	return MeterModel{
		ctrl:     ctrl,
		interval: interval,
		keys:     defaultMeterKeys(),
		help:     help.New(),
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40), progress.WithoutPercentage()),
		settings: ctrl.Settings(),
	}
}

func (m MeterModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m MeterModel) Init() tea.Cmd {
	return m.tick()
}

func (m MeterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.refresh()
		return m, m.tick()

	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-24, 10), 60)
		m.help.Width = msg.Width

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		s := m.ctrl.Settings()
		switch {
		case key.Matches(msg, m.keys.Gate):
			s.GateEnabled = !s.GateEnabled
		case key.Matches(msg, m.keys.AGC):
			s.AGCEnabled = !s.AGCEnabled
		case key.Matches(msg, m.keys.SensUp):
			s.Sensitivity = step(s.Sensitivity, stepFactor, sensitivityMin, sensitivityMax)
		case key.Matches(msg, m.keys.SensDown):
			s.Sensitivity = step(s.Sensitivity, 1/stepFactor, sensitivityMin, sensitivityMax)
		case key.Matches(msg, m.keys.GainUp):
			s.Gain = step(s.Gain, stepFactor, gainMin, gainMax)
		case key.Matches(msg, m.keys.GainDown):
			s.Gain = step(s.Gain, 1/stepFactor, gainMin, gainMax)
		default:
			return m, nil
		}
		m.err = m.ctrl.SetSettings(s)
		m.settings = m.ctrl.Settings()
	}
	return m, nil
}

func (m *MeterModel) refresh() {
	m.snap = m.ctrl.Snapshot()
	m.settings = m.ctrl.Settings()
	if beats := m.snap.Features.BeatCount; beats > m.lastBeats {
		m.lastBeats = beats
		m.beatHold = beatHoldTicks
	} else if m.beatHold > 0 {
		m.beatHold--
	}
}

func step(v, factor, lo, hi float64) float64 {
	v = math.Round(v*factor*100) / 100
	return min(max(v, lo), hi)
}

func (m MeterModel) View() string {
	var sb strings.Builder
	f := m.snap.Features

	sb.WriteString(titleStyle.Render("Sound Reactive"))
	sb.WriteString("\n\n")

	m.row(&sb, "Loudness", m.snap.Loudness/LoudnessFullScale, fmt.Sprintf("%6.0f", m.snap.Loudness))
	m.row(&sb, "Bass", f.Bass, fmt.Sprintf("%6.3f", f.Bass))
	m.row(&sb, "Mid", f.Mid, fmt.Sprintf("%6.3f", f.Mid))
	m.row(&sb, "Treble", f.Treble, fmt.Sprintf("%6.3f", f.Treble))
	m.row(&sb, "Energy", f.Energy, fmt.Sprintf("%6.3f", f.Energy))
	m.row(&sb, "Peak", f.Peak, fmt.Sprintf("%6.3f", f.Peak))

	sb.WriteString(labelStyle.Render("Spectrum"))
	sb.WriteString(Spark(m.snap.Bins))
	sb.WriteString("\n\n")

	beat := "○"
	if m.beatHold > 0 {
		beat = beatStyle.Render("●")
	}
	fmt.Fprintf(&sb, "%s %s  beats %d  onsets %d\n", labelStyle.Render("Beat"), beat, f.BeatCount, f.OnsetCount)
	if f.BPM > 0 {
		fmt.Fprintf(&sb, "%s BPM %.1f (confidence %.0f%%)\n", labelStyle.Render("Tempo"), f.BPM, f.TempoConfidence*100)
	} else {
		fmt.Fprintf(&sb, "%s waiting for beats\n", labelStyle.Render("Tempo"))
	}

	gate := "closed"
	switch {
	case !m.settings.GateEnabled:
		gate = "disabled"
	case m.snap.Frame.GateOpen:
		gate = highlightStyle.Render("open")
	}
	fmt.Fprintf(&sb, "%s %s  spikes %d  dc %d\n", labelStyle.Render("Gate"), gate, m.snap.Frame.Spikes, m.snap.Frame.Offset)
	fmt.Fprintf(&sb, "%s %d (%d invalid)\n\n", labelStyle.Render("Frames"), m.snap.Frames, m.snap.Invalid)

	agc := "off"
	if m.settings.AGCEnabled {
		agc = "on"
	}
	sb.WriteString(infoStyle.Render(fmt.Sprintf("gain %.2f  sensitivity %.2f  agc %s", m.settings.Gain, m.settings.Sensitivity, agc)))
	sb.WriteString("\n")
	if m.err != nil {
		sb.WriteString(errorStyle.Render(m.err.Error()))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

func (m MeterModel) row(sb *strings.Builder, label string, level float64, value string) {
	sb.WriteString(labelStyle.Render(label))
	sb.WriteString(m.bar.ViewAs(min(max(level, 0), 1)))
	sb.WriteString(" ")
	sb.WriteString(value)
	sb.WriteString("\n")
}

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// Spark draws bins as a bar sparkline on a -60..0 dB scale.
func Spark(bins []float64) string {
	if len(bins) == 0 {
		return "-"
	}
	out := make([]rune, len(bins))
	for i, v := range bins {
		level := 0.0
		if v > 0 {
			level = (20*math.Log10(v) + 60) / 60
		}
		level = min(max(level, 0), 1)
		out[i] = sparkLevels[int(math.Round(level*float64(len(sparkLevels)-1)))]
	}
	return string(out)
}

// RunMeter shows the meter until the user quits or ctx is done.
func RunMeter(ctx context.Context, ctrl Controller, interval time.Duration) error {
	p := tea.NewProgram(NewMeterModel(ctrl, interval), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
