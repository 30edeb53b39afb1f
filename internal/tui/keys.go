// SPDX-License-Identifier: MIT
package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Toggle    key.Binding
	Gate      key.Binding
	Metering  key.Binding
	GainUp    key.Binding
	GainDown  key.Binding
	ThreshUp  key.Binding
	ThreshDn  key.Binding
	NextInput key.Binding
	NextOut   key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Toggle:    key.NewBinding(key.WithKeys(" ", "enter"), key.WithHelp("space", "start/stop")),
		Gate:      key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "gate")),
		Metering:  key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "meter")),
		GainUp:    key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+/-", "gain")),
		GainDown:  key.NewBinding(key.WithKeys("-", "_")),
		ThreshUp:  key.NewBinding(key.WithKeys("]"), key.WithHelp("[/]", "threshold")),
		ThreshDn:  key.NewBinding(key.WithKeys("[")),
		NextInput: key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "input")),
		NextOut:   key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "output")),
		Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.NextInput, k.NextOut, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.NextInput, k.NextOut},
		{k.Gate, k.ThreshUp, k.GainUp, k.Metering},
		{k.Help, k.Quit},
	}
}
