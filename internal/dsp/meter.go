// SPDX-License-Identifier: MIT
package dsp

import goaudio "github.com/go-audio/audio"

// MeterDisplayGain maps speech-level RMS (roughly 0.01 to 0.1) onto a
// usable 0-1 display range.
const MeterDisplayGain float32 = 10

// LevelMeter publishes a normalized loudness value for each buffer it
// sees. It never modifies the buffer, so it can be installed as a tap.
type LevelMeter struct {
	sink *AtomicFloat32
}

// NewLevelMeter returns a meter that stores each measurement in sink. The
// reader sees the most recent value; intermediate values may be lost.
func NewLevelMeter(sink *AtomicFloat32) *LevelMeter {
	return &LevelMeter{sink: sink}
}

// Process implements Stage.
func (m *LevelMeter) Process(buf *goaudio.Float32Buffer) {
	m.sink.Store(DisplayLevel(RMS(buf.Data)))
}

// Level returns the last published measurement.
func (m *LevelMeter) Level() float32 {
	return m.sink.Load()
}

// DisplayLevel scales an RMS value into [0,1].
func DisplayLevel(rms float32) float32 {
	return clamp01(rms * MeterDisplayGain)
}
