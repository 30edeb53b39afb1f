// SPDX-License-Identifier: MIT
package tui

import (
	"slices"
	"testing"

	"passthru/internal/audio"
	"passthru/internal/audio/audiotest"
	"passthru/internal/catalog"
	"passthru/internal/engine"
	"passthru/internal/permission"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	mic        = audiotest.InputEndpoint("mic", "MacBook Pro Microphone", audio.TransportBuiltIn)
	usbMic     = audiotest.InputEndpoint("usb-mic", "USB Condenser Mic", audio.TransportUSB)
	headphones = audiotest.OutputEndpoint("hp", "AirPods Pro", audio.TransportBluetooth)
	speakers   = audiotest.OutputEndpoint("spk", "MacBook Pro Speakers", audio.TransportBuiltIn)
)

func newPanel(t *testing.T) (tea.Model, *engine.Engine) {
	t.Helper()

	p := audiotest.NewPlatform()
	p.Add(mic, usbMic, headphones, speakers)
	cat := catalog.New(p)

	e, err := engine.New(engine.Options{
		Catalog:      cat,
		Devices:      p,
		Backend:      p,
		Permission:   permission.NewStatic(permission.Granted),
		RestartDelay: -1,
	})
	require.NoError(t, err)
	require.NoError(t, e.Start())
	t.Cleanup(func() { e.Close() })

	m, _ := NewModel(e, cat).Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m, e
}

// press delivers one key and, if it produced an engine call, runs the call
// and feeds its result back.
func press(t *testing.T, m tea.Model, k string) tea.Model {
	t.Helper()

	msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	if k == " " {
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	m, cmd := m.Update(msg)
	if cmd == nil {
		return m
	}
	if res, ok := cmd().(resultMsg); ok {
		m, _ = m.Update(res)
	}
	return m
}

func TestToggleRunning(t *testing.T) {
	m, e := newPanel(t)

	m = press(t, m, " ")
	assert.Equal(t, engine.Running, e.Status().State.Kind)
	assert.Contains(t, m.View(), "running")
	assert.Contains(t, m.View(), "Latency")

	press(t, m, " ")
	assert.Equal(t, engine.Idle, e.Status().State.Kind)
	assert.False(t, e.Status().DesiredRunning)
}

func TestConfigKeys(t *testing.T) {
	m, e := newPanel(t)

	m = press(t, m, "g")
	m = press(t, m, "+")
	m = press(t, m, "]")
	press(t, m, "m")

	cfg := e.Status().Config
	assert.True(t, cfg.GateEnabled)
	assert.InDelta(t, 1.1, cfg.Gain, 1e-6)
	assert.InDelta(t, 0.025, cfg.GateThreshold, 1e-6)
	assert.False(t, cfg.MeteringEnabled)
}

func TestGainClamped(t *testing.T) {
	m, e := newPanel(t)

	for range 30 {
		m = press(t, m, "+")
	}
	assert.Equal(t, engine.MaxGain, e.Status().Config.Gain)

	for range 30 {
		m = press(t, m, "-")
	}
	assert.Equal(t, float32(0), e.Status().Config.Gain)
}

func TestCycleOutputIntoSpeakerIsBlocked(t *testing.T) {
	m, e := newPanel(t)

	m = press(t, m, " ")
	require.Equal(t, engine.Running, e.Status().State.Kind)

	m = press(t, m, "o")
	assert.True(t, e.Status().Output.Equal(headphones))
	assert.Equal(t, engine.Running, e.Status().State.Kind)

	m = press(t, m, "o")
	assert.True(t, e.Status().Output.Equal(speakers))
	st := e.Status().State
	assert.Equal(t, engine.Blocked, st.Kind)
	assert.Equal(t, engine.ReasonUnsafeOutput, st.Reason)
	assert.Contains(t, m.View(), "blocked(unsafe_output)")
	assert.Contains(t, m.View(), "speaker: blocked")

	// Back to following the default.
	press(t, m, "o")
	assert.True(t, e.Status().Output.IsZero())
}

func TestCycleInput(t *testing.T) {
	m, e := newPanel(t)

	var seen []string
	for range 3 {
		m = press(t, m, "i")
		seen = append(seen, e.Status().Input.ID)
	}
	assert.Equal(t, []string{"mic", "usb-mic", ""}, seen)
}

func TestQuit(t *testing.T) {
	m, _ := newPanel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestHelpToggle(t *testing.T) {
	m, _ := newPanel(t)
	assert.NotContains(t, m.View(), "threshold")
	m = press(t, m, "?")
	assert.Contains(t, m.View(), "threshold")
}

func TestErrorShownUntilNextSuccess(t *testing.T) {
	m, _ := newPanel(t)

	m, _ = m.Update(resultMsg{action: "output", err: engine.ErrUnsafeOutput})
	assert.Contains(t, m.View(), "output: "+engine.ErrUnsafeOutput.Error())

	m, _ = m.Update(resultMsg{action: "gain"})
	assert.NotContains(t, m.View(), engine.ErrUnsafeOutput.Error())
}

func TestStatusMsgUpdatesView(t *testing.T) {
	m, _ := newPanel(t)
	m, _ = m.Update(StatusMsg(engine.Status{State: engine.State{Kind: engine.Failed, Err: engine.ErrEngineStart}}))
	assert.Contains(t, m.View(), "failed")
}

func TestCycle(t *testing.T) {
	list := slices.Values([]audio.Endpoint{mic, usbMic})
	stale := audiotest.InputEndpoint("gone", "Unplugged Mic", audio.TransportUSB)

	tests := []struct {
		name    string
		seq     []audio.Endpoint
		current audio.Endpoint
		want    audio.Endpoint
	}{
		{"default to first", []audio.Endpoint{mic, usbMic}, audio.Endpoint{}, mic},
		{"next", []audio.Endpoint{mic, usbMic}, mic, usbMic},
		{"last wraps to default", []audio.Endpoint{mic, usbMic}, usbMic, audio.Endpoint{}},
		{"vanished restarts", []audio.Endpoint{mic, usbMic}, stale, mic},
		{"empty list", nil, audio.Endpoint{}, audio.Endpoint{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cycle(slices.Values(tt.seq), tt.current))
		})
	}

	assert.Equal(t, usbMic, cycle(list, mic))
}

func TestStepClamp(t *testing.T) {
	assert.Equal(t, float32(1.1), stepClamp(1, 0.1, 0, 2))
	assert.Equal(t, float32(2), stepClamp(1.95, 0.1, 0, 2))
	assert.Equal(t, float32(0), stepClamp(0.05, -0.1, 0, 2))
	assert.Equal(t, float32(0.025), stepClamp(0.02, 0.005, 0, 0.1))
}

func TestMeterBar(t *testing.T) {
	assert.Equal(t, 0, countRune(meterBar(0, 10), '█'))
	assert.Equal(t, 5, countRune(meterBar(0.5, 10), '█'))
	assert.Equal(t, 10, countRune(meterBar(3, 10), '█'))
}

func countRune(s string, r rune) int {
	n := 0
	for _, c := range s {
		if c == r {
			n++
		}
	}
	return n
}
