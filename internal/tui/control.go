// SPDX-License-Identifier: MIT
//
// Package tui is the interactive front panel: it shows the engine state,
// the live level and the endpoint lists, and turns key presses into engine
// intents.
package tui

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"strings"
	"time"

	"passthru/internal/audio"
	"passthru/internal/dsp"
	"passthru/internal/engine"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	RefreshInterval = 50 * time.Millisecond

	GainStep      float32 = 0.1
	ThresholdStep float32 = 0.005

	meterWidth = 30
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F25D94")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))
)

// Controller is the part of the engine the panel drives.
type Controller interface {
	Status() engine.Status
	Level() float32
	GateSmoothing() float32
	SetDesiredRunning(on bool) error
	SetInputEndpoint(ep audio.Endpoint) error
	SetOutputEndpoint(ep audio.Endpoint) error
	UpdateConfig(fn func(*engine.Config)) error
}

// Endpoints lists what the user can pick from.
type Endpoints interface {
	ListInputs() iter.Seq[audio.Endpoint]
	ListOutputs() iter.Seq[audio.Endpoint]
}

type tickMsg time.Time

// resultMsg carries the outcome of an engine call made off the UI loop.
type resultMsg struct {
	action string
	err    error
}

// statusMsg is sent by the engine observer.
type statusMsg engine.Status

// Model is the Bubble Tea model for the control panel.
type Model struct {
	ctl       Controller
	endpoints Endpoints

	keys     keyMap
	help     help.Model
	viewport viewport.Model
	ready    bool

	status engine.Status
	level  float32
	gate   float32
	err    error
}

// NewModel creates a panel over ctl.
func NewModel(ctl Controller, endpoints Endpoints) Model {
	return Model{
		ctl:       ctl,
		endpoints: endpoints,
		keys:      defaultKeyMap(),
		help:      help.New(),
		status:    ctl.Status(),
	}
}

// StatusMsg wraps a status snapshot for delivery through tea.Program.Send.
func StatusMsg(s engine.Status) tea.Msg {
	return statusMsg(s)
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the level refresh.
func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) call(action string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return resultMsg{action: action, err: fn()}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h := msg.Height - lipgloss.Height(m.header()) - 4
		if !m.ready {
			m.viewport = viewport.New(msg.Width, h)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = h
		}
		m.help.Width = msg.Width
		m.viewport.SetContent(m.renderEndpoints())

	case tickMsg:
		m.level = m.ctl.Level()
		m.gate = m.ctl.GateSmoothing()
		m.status = m.ctl.Status()
		cmds = append(cmds, tick())

	case statusMsg:
		m.status = engine.Status(msg)
		if m.ready {
			m.viewport.SetContent(m.renderEndpoints())
		}

	case resultMsg:
		// The last action decides what is shown; a later success clears
		// an earlier failure.
		m.err = nil
		if msg.err != nil {
			m.err = fmt.Errorf("%s: %w", msg.action, msg.err)
		}
		m.status = m.ctl.Status()
		if m.ready {
			m.viewport.SetContent(m.renderEndpoints())
		}

	case tea.KeyMsg:
		if cmd := m.handleKey(msg); cmd != nil {
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return nil

	case key.Matches(msg, m.keys.Toggle):
		on := !m.status.DesiredRunning
		return m.call("start", func() error { return m.ctl.SetDesiredRunning(on) })

	case key.Matches(msg, m.keys.Gate):
		return m.configure("gate", func(c *engine.Config) { c.GateEnabled = !c.GateEnabled })

	case key.Matches(msg, m.keys.Metering):
		return m.configure("metering", func(c *engine.Config) { c.MeteringEnabled = !c.MeteringEnabled })

	case key.Matches(msg, m.keys.GainUp):
		return m.configure("gain", func(c *engine.Config) { c.Gain = stepClamp(c.Gain, GainStep, 0, engine.MaxGain) })

	case key.Matches(msg, m.keys.GainDown):
		return m.configure("gain", func(c *engine.Config) { c.Gain = stepClamp(c.Gain, -GainStep, 0, engine.MaxGain) })

	case key.Matches(msg, m.keys.ThreshUp):
		return m.configure("threshold", func(c *engine.Config) {
			c.GateThreshold = stepClamp(c.GateThreshold, ThresholdStep, 0, dsp.MaxGateThreshold)
		})

	case key.Matches(msg, m.keys.ThreshDn):
		return m.configure("threshold", func(c *engine.Config) {
			c.GateThreshold = stepClamp(c.GateThreshold, -ThresholdStep, 0, dsp.MaxGateThreshold)
		})

	case key.Matches(msg, m.keys.NextInput):
		next := cycle(m.endpoints.ListInputs(), m.status.Input)
		return m.call("input", func() error { return m.ctl.SetInputEndpoint(next) })

	case key.Matches(msg, m.keys.NextOut):
		next := cycle(m.endpoints.ListOutputs(), m.status.Output)
		return m.call("output", func() error { return m.ctl.SetOutputEndpoint(next) })
	}
	return nil
}

func (m Model) configure(action string, fn func(*engine.Config)) tea.Cmd {
	return m.call(action, func() error { return m.ctl.UpdateConfig(fn) })
}

// stepClamp adds step to v and keeps the result in [lo, hi], rounded to
// three decimals so repeated steps do not drift.
func stepClamp(v, step, lo, hi float32) float32 {
	n := float32(math.Round(float64(v+step)*1000) / 1000)
	return min(max(n, lo), hi)
}

// cycle returns the endpoint after current in seq. The zero endpoint,
// meaning "follow the system default", sits before the first entry.
func cycle(seq iter.Seq[audio.Endpoint], current audio.Endpoint) audio.Endpoint {
	var first audio.Endpoint
	found := current.IsZero()
	for ep := range seq {
		if found {
			return ep
		}
		if first.IsZero() {
			first = ep
		}
		if ep.Equal(current) {
			found = true
		}
	}
	if found {
		return audio.Endpoint{}
	}
	// The selection vanished from the list; start over.
	return first
}

// View renders the panel.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	return fmt.Sprintf("%s\n\n%s\n%s", m.header(), m.viewport.View(), m.help.View(m.keys))
}

func (m Model) header() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Mic Passthrough"))
	sb.WriteString("  ")
	sb.WriteString(renderState(m.status.State))
	sb.WriteString("\n\n")

	cfg := m.status.Config
	fmt.Fprintf(&sb, "Level   %s\n", meterBar(m.level, meterWidth))
	fmt.Fprintf(&sb, "Gain    %.2fx   Gate %s (%.3f, open %.0f%%)   Meter %s\n",
		cfg.Gain, onOff(cfg.GateEnabled), cfg.GateThreshold, m.gate*100, onOff(cfg.MeteringEnabled))
	if m.status.State.Kind == engine.Running {
		fmt.Fprintf(&sb, "Latency %.1f ms", m.status.LatencyMs)
	} else {
		sb.WriteString(dimStyle.Render("Latency --"))
	}
	if m.err != nil {
		sb.WriteString("\n")
		sb.WriteString(warnStyle.Render(m.err.Error()))
	}
	return sb.String()
}

func renderState(s engine.State) string {
	switch s.Kind {
	case engine.Running:
		return highlightStyle.Render(s.String())
	case engine.Blocked, engine.Failed:
		return warnStyle.Render(s.String())
	default:
		return infoStyle.Render(s.String())
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func meterBar(level float32, width int) string {
	n := int(min(max(level, 0), 1) * float32(width))
	return highlightStyle.Render(strings.Repeat("█", n)) + dimStyle.Render(strings.Repeat("░", width-n))
}

// renderEndpoints formats both endpoint lists, marking the selection and
// the endpoints the safety policy refuses.
func (m Model) renderEndpoints() string {
	var sb strings.Builder
	m.renderList(&sb, "Inputs", m.endpoints.ListInputs(), m.status.Input)
	sb.WriteString("\n")
	m.renderList(&sb, "Outputs", m.endpoints.ListOutputs(), m.status.Output)
	return sb.String()
}

func (m Model) renderList(sb *strings.Builder, title string, seq iter.Seq[audio.Endpoint], selected audio.Endpoint) {
	sb.WriteString(title + ":\n")

	line := "    (system default)\n"
	if selected.IsZero() {
		line = highlightStyle.Render("  ▶ (system default)") + "\n"
	}
	sb.WriteString(line)

	n := 0
	for ep := range seq {
		n++
		line := fmt.Sprintf("%s [%s, %dch, %.0f Hz]", ep.Name, ep.Transport, ep.MaxChannels, ep.DefaultSampleRate)
		if ep.RiskySpeaker {
			line += warnStyle.Render(" speaker: blocked")
		}
		if !selected.IsZero() && ep.Equal(selected) {
			sb.WriteString(highlightStyle.Render("  ▶ "+line) + "\n")
			continue
		}
		sb.WriteString("    " + line + "\n")
	}
	if n == 0 {
		sb.WriteString(dimStyle.Render("    none found") + "\n")
	}
}

// Run launches the panel and blocks until the user quits or ctx is done.
// Status changes from the engine are pushed to the program as they are
// published.
func Run(ctx context.Context, ctl Controller, endpoints Endpoints, observe func(func(engine.Status)) (cancel func())) error {
	p := tea.NewProgram(
		NewModel(ctl, endpoints),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if observe != nil {
		cancel := observe(func(s engine.Status) {
			// Send blocks until the program reads it; observers must not.
			go p.Send(StatusMsg(s))
		})
		defer cancel()
	}
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
