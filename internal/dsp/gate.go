// SPDX-License-Identifier: MIT
package dsp

import goaudio "github.com/go-audio/audio"

const (
	// GateSmoothingFactor is the one-pole coefficient of the gate envelope.
	// At 256-frame buffers and 44.1kHz it opens or closes within a few
	// tens of milliseconds without clicking.
	GateSmoothingFactor float32 = 0.1

	// gateBypassLevel is the envelope value above which the multiply pass
	// is skipped.
	gateBypassLevel float32 = 0.99

	DefaultGateThreshold float32 = 0.02
	MaxGateThreshold     float32 = 0.1
)

// NoiseGate attenuates buffers whose RMS is at or below a threshold. The
// gain follows a one-pole envelope toward 0 or 1, so the gate fades
// rather than hard muting: consecutive buffers never differ in gain by
// more than one smoothing step.
type NoiseGate struct {
	threshold *AtomicFloat32 // Written by the control goroutine
	smoothing AtomicFloat32  // Envelope, always in [0,1]
}

// NewNoiseGate returns an open gate reading its threshold from threshold.
func NewNoiseGate(threshold *AtomicFloat32) *NoiseGate {
	g := &NoiseGate{threshold: threshold}
	g.smoothing.Store(1)
	return g
}

// Process implements Stage.
func (g *NoiseGate) Process(buf *goaudio.Float32Buffer) {
	data := buf.Data

	var target float32
	if RMS(data) > g.threshold.Load() {
		target = 1
	}

	s := g.smoothing.Load()
	s = clamp01(s + GateSmoothingFactor*(target-s))
	g.smoothing.Store(s)

	if s >= gateBypassLevel {
		return
	}
	for i := range data {
		data[i] *= s
	}
}

// Smoothing returns the current envelope value.
func (g *NoiseGate) Smoothing() float32 {
	return g.smoothing.Load()
}

// Reset reopens the gate so a fresh start is never silently gated.
func (g *NoiseGate) Reset() {
	g.smoothing.Store(1)
}
