// SPDX-License-Identifier: MIT

// Package tone generates float32 test buffers and computes reference
// measurements for them. It allocates freely and is not meant for the
// real-time path.
package tone

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Sine returns frames*channels interleaved samples of a sine wave. Every
// channel carries the same signal.
func Sine(frames, channels int, sampleRate, frequency, amplitude float64) []float32 {
	if frames <= 0 || channels <= 0 {
		return nil
	}
	times := make([]float64, frames)
	if frames > 1 {
		floats.Span(times, 0, float64(frames-1)/sampleRate)
	}

	buf := make([]float32, frames*channels)
	for i, t := range times {
		v := float32(amplitude * math.Sin(2*math.Pi*frequency*t))
		for c := range channels {
			buf[i*channels+c] = v
		}
	}
	return buf
}

// Constant returns n samples all equal to v. A constant buffer has an RMS
// of |v|, which makes threshold tests exact.
func Constant(n int, v float32) []float32 {
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = v
	}
	return buf
}

// Silence returns n zero samples.
func Silence(n int) []float32 {
	return make([]float32, n)
}

// RMS is a float64 reference implementation used to check the real-time
// meters.
func RMS(buf []float32) float64 {
	if len(buf) == 0 {
		return 0
	}
	x := make([]float64, len(buf))
	for i, s := range buf {
		x[i] = float64(s)
	}
	return floats.Norm(x, 2) / math.Sqrt(float64(len(x)))
}

// Scaled returns a copy of buf multiplied by gain.
func Scaled(buf []float32, gain float32) []float32 {
	out := make([]float32, len(buf))
	for i, s := range buf {
		out[i] = s * gain
	}
	return out
}
