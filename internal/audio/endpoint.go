// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"strings"
)

// Direction tells whether an endpoint captures or renders audio.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return "unknown"
	}
}

// Transport is the physical or logical connection an endpoint uses.
type Transport int

const (
	TransportUnknown Transport = iota
	TransportBuiltIn
	TransportUSB
	TransportBluetooth
	TransportVirtual
)

func (t Transport) String() string {
	switch t {
	case TransportBuiltIn:
		return "built-in"
	case TransportUSB:
		return "usb"
	case TransportBluetooth:
		return "bluetooth"
	case TransportVirtual:
		return "virtual"
	default:
		return "unknown"
	}
}

// Endpoint identifies one direction of a hardware or virtual audio device.
// Values are immutable once classified and compare by ID and Direction.
type Endpoint struct {
	ID                string // Opaque platform handle, stable across re-enumeration
	Name              string
	Direction         Direction
	Transport         Transport
	HostAPI           string
	MaxChannels       int
	DefaultSampleRate float64

	// RiskySpeaker is true for built-in loudspeakers, which can feed the
	// microphone back into itself.
	RiskySpeaker bool
}

// Equal reports whether both values refer to the same endpoint.
func (e Endpoint) Equal(o Endpoint) bool {
	return e.ID == o.ID && e.Direction == o.Direction
}

// IsZero reports whether e is the empty selection.
func (e Endpoint) IsZero() bool {
	return e.ID == ""
}

func (e Endpoint) String() string {
	if e.IsZero() {
		return "<none>"
	}
	return fmt.Sprintf("%s (%s, %s)", e.Name, e.Direction, e.Transport)
}

// speakerKeywords are matched case-insensitively against endpoint names.
var speakerKeywords = []string{
	"speaker",
	"lautsprecher",
	"haut-parleur",
	"altavoces",
	"altavoz",
	"altoparlant",
	"alto-falante",
	"luidspreker",
	"högtalare",
	"głośnik",
	"динамик",
	"スピーカー",
	"扬声器",
	"揚聲器",
	"스피커",
}

var transportHints = []struct {
	transport Transport
	hints     []string
}{
	{TransportVirtual, []string{"blackhole", "loopback", "virtual", "soundflower", "pulse", "pipewire", "monitor of"}},
	{TransportBluetooth, []string{"bluetooth", "airpods", "a2dp", "hands-free", "headset (bt"}},
	{TransportUSB, []string{"usb"}},
	{TransportBuiltIn, []string{"built-in", "builtin", "internal", "macbook", "imac", "hda intel", "pch", "realtek"}},
}

// ClassifyTransport guesses the transport from a device name. Platforms
// that report transport directly should set it instead.
func ClassifyTransport(name string) Transport {
	lower := strings.ToLower(name)
	for _, th := range transportHints {
		for _, hint := range th.hints {
			if strings.Contains(lower, hint) {
				return th.transport
			}
		}
	}
	return TransportUnknown
}

// IsRiskySpeaker reports whether an endpoint with these properties is a
// built-in output transducer. Built-in devices that are not loudspeakers
// (an internal microphone, a headphone jack) are not flagged.
func IsRiskySpeaker(name string, dir Direction, transport Transport) bool {
	if dir != Output || transport != TransportBuiltIn {
		return false
	}
	lower := strings.ToLower(name)
	for _, kw := range speakerKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Classify fills in Transport (when unknown) and RiskySpeaker.
func Classify(e Endpoint) Endpoint {
	if e.Transport == TransportUnknown {
		e.Transport = ClassifyTransport(e.Name)
	}
	e.RiskySpeaker = IsRiskySpeaker(e.Name, e.Direction, e.Transport)
	return e
}
