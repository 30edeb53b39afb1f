// SPDX-License-Identifier: MIT
/*
Package dsp implements the per-buffer processing stages of the passthrough
graph: a smoothed noise gate, the gain stage and a level meter.

Real-Time Safety:
  - Stages never allocate, lock or block
  - Values shared with the control goroutine are AtomicFloat32s, written
    by a single writer and read by the audio thread
*/
package dsp

import (
	"math"
	"sync/atomic"

	goaudio "github.com/go-audio/audio"
)

// Stage processes one buffer of interleaved samples in place.
type Stage interface {
	Process(buf *goaudio.Float32Buffer)
}

// AtomicFloat32 is a float32 that can be shared between the control
// goroutine and the audio thread without locks.
type AtomicFloat32 struct {
	bits atomic.Uint32
}

// NewAtomicFloat32 returns an AtomicFloat32 holding v.
func NewAtomicFloat32(v float32) *AtomicFloat32 {
	f := &AtomicFloat32{}
	f.Store(v)
	return f
}

func (f *AtomicFloat32) Load() float32 {
	return math.Float32frombits(f.bits.Load())
}

func (f *AtomicFloat32) Store(v float32) {
	f.bits.Store(math.Float32bits(v))
}

// RMS returns the root-mean-square of every sample in data, across all
// channels and frames.
func RMS(data []float32) float32 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, s := range data {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(data))))
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Gain multiplies every sample by a shared factor. It is the mix stage of
// the graph and the only place gain is applied.
type Gain struct {
	factor *AtomicFloat32
}

// NewGain returns a gain stage reading its factor from factor.
func NewGain(factor *AtomicFloat32) *Gain {
	return &Gain{factor: factor}
}

// Process implements Stage. Unity gain is a no-op.
func (g *Gain) Process(buf *goaudio.Float32Buffer) {
	k := g.factor.Load()
	if k == 1 {
		return
	}
	data := buf.Data
	for i := range data {
		data[i] *= k
	}
}
