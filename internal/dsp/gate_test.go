// SPDX-License-Identifier: MIT
package dsp

import (
	"math"
	"math/rand/v2"
	"testing"

	"passthru/pkg/tone"

	goaudio "github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monoFormat = &goaudio.Format{NumChannels: 1, SampleRate: 44100}

func buffer(data []float32) *goaudio.Float32Buffer {
	return &goaudio.Float32Buffer{Format: monoFormat, Data: data}
}

func TestRMS(t *testing.T) {
	tests := []struct {
		desc string
		data []float32
	}{
		{"Empty", nil},
		{"Silence", tone.Silence(256)},
		{"Constant", tone.Constant(256, 0.5)},
		{"Sine", tone.Sine(441, 2, 44100, 100, 0.8)},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.InDelta(t, tone.RMS(tt.data), float64(RMS(tt.data)), 1e-6)
		})
	}
}

func TestNoiseGateStartsOpen(t *testing.T) {
	g := NewNoiseGate(NewAtomicFloat32(DefaultGateThreshold))
	assert.Equal(t, float32(1), g.Smoothing())

	data := tone.Constant(256, 0.5)
	g.Process(buffer(data))
	assert.Equal(t, float32(1), g.Smoothing())
	assert.Equal(t, tone.Constant(256, 0.5), data, "open gate must not touch samples")
}

func TestNoiseGateSmoothingStaysInUnitInterval(t *testing.T) {
	threshold := NewAtomicFloat32(DefaultGateThreshold)
	g := NewNoiseGate(threshold)
	rng := rand.New(rand.NewPCG(1, 2))
	data := make([]float32, 128)

	for i := 0; i < 5000; i++ {
		level := float32(rng.Float64() * 0.05)
		for j := range data {
			data[j] = level
		}
		if i%500 == 0 {
			threshold.Store(float32(rng.Float64()) * MaxGateThreshold)
		}
		g.Process(buffer(data))

		s := g.Smoothing()
		if s < 0 || s > 1 {
			t.Fatalf("smoothing left [0,1] at buffer %d: %f", i, s)
		}
	}
}

func TestNoiseGateConvergesOpen(t *testing.T) {
	g := NewNoiseGate(NewAtomicFloat32(DefaultGateThreshold))
	for range 100 {
		g.Process(buffer(tone.Silence(256)))
	}
	require.Less(t, g.Smoothing(), float32(0.001))

	// 1 - 0.9^n >= 0.999 after 66 buffers.
	// The gate attenuates in place, so every buffer must be fresh.
	for range 66 {
		g.Process(buffer(tone.Constant(256, 0.5)))
	}
	assert.GreaterOrEqual(t, g.Smoothing(), float32(0.999))
}

func TestNoiseGateClosesSmoothly(t *testing.T) {
	g := NewNoiseGate(NewAtomicFloat32(DefaultGateThreshold))

	// Below threshold (RMS 0.01 < 0.02) but not silent, so attenuation
	// is visible in the output.
	prev := float32(1)
	for i := 0; i < 21; i++ {
		data := tone.Constant(64, 0.01)
		g.Process(buffer(data))
		s := g.Smoothing()

		want := float32(math.Pow(0.9, float64(i+1)))
		assert.InDelta(t, want, s, 1e-5, "buffer %d", i)
		assert.LessOrEqual(t, prev-s, GateSmoothingFactor*prev+1e-6, "step larger than one smoothing step")
		assert.Greater(t, s, float32(0), "gate must never snap to zero")
		for _, v := range data {
			assert.InDelta(t, 0.01*s, v, 1e-7)
		}
		prev = s
	}
	assert.Less(t, g.Smoothing(), float32(0.15))
}

func TestNoiseGateThresholdIsLive(t *testing.T) {
	threshold := NewAtomicFloat32(0.02)
	g := NewNoiseGate(threshold)

	g.Process(buffer(tone.Constant(64, 0.05)))
	assert.Equal(t, float32(1), g.Smoothing())

	threshold.Store(0.08)
	g.Process(buffer(tone.Constant(64, 0.05)))
	assert.InDelta(t, 0.9, g.Smoothing(), 1e-6)
}

func TestNoiseGateReset(t *testing.T) {
	g := NewNoiseGate(NewAtomicFloat32(DefaultGateThreshold))
	for range 10 {
		g.Process(buffer(tone.Silence(32)))
	}
	require.Less(t, g.Smoothing(), float32(0.5))

	g.Reset()
	assert.Equal(t, float32(1), g.Smoothing())
}

func TestNoiseGateHotPath(t *testing.T) {
	g := NewNoiseGate(NewAtomicFloat32(DefaultGateThreshold))
	buf := buffer(tone.Sine(512, 2, 44100, 440, 0.01))

	allocs := testing.AllocsPerRun(100, func() {
		g.Process(buf)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in noise gate hot path, got %.1f", allocs)
	}
}

func TestGainStage(t *testing.T) {
	factor := NewAtomicFloat32(1)
	stage := NewGain(factor)

	data := []float32{0.25, -0.5}
	stage.Process(buffer(data))
	assert.Equal(t, []float32{0.25, -0.5}, data)

	factor.Store(2)
	stage.Process(buffer(data))
	assert.Equal(t, []float32{0.5, -1}, data)

	factor.Store(0)
	stage.Process(buffer(data))
	assert.Equal(t, []float32{0, 0}, data)
}

func BenchmarkGateProcessingHotPath(b *testing.B) {
	benchmarks := []struct {
		name string
		data []float32
	}{
		{"Open/Loud", tone.Sine(512, 2, 44100, 440, 0.5)},
		{"Closing/Quiet", tone.Sine(512, 2, 44100, 440, 0.001)},
	}

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			g := NewNoiseGate(NewAtomicFloat32(DefaultGateThreshold))
			buf := buffer(bm.data)
			b.ReportAllocs()
			for b.Loop() {
				g.Process(buf)
			}
		})
	}
}
