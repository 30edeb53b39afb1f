// SPDX-License-Identifier: MIT
package engine

import (
	"passthru/internal/audio"
	"passthru/internal/dsp"

	goaudio "github.com/go-audio/audio"
)

// FixedOverheadMs approximates the one-way driver and converter delay not
// captured by the buffer size.
const FixedOverheadMs = 1.5

// EstimateLatencyMs returns the round-trip estimate for a stream running
// frames per buffer at rate.
func EstimateLatencyMs(frames int, rate float64) float64 {
	if frames <= 0 || rate <= 0 {
		return 0
	}
	return 2*float64(frames)/rate*1000 + FixedOverheadMs
}

// graph is one live passthrough: input -> gate? -> gain -> output, with
// taps observing the gain stage output.
type graph struct {
	input  audio.Endpoint
	output audio.Endpoint
	stream audio.Stream

	stages []dsp.Stage
	taps   []dsp.Stage
	buf    goaudio.Float32Buffer
}

func newGraph(in, out audio.Endpoint, format *goaudio.Format) *graph {
	return &graph{
		input:  in,
		output: out,
		buf:    goaudio.Float32Buffer{Format: format, SourceBitDepth: 32},
	}
}

func (g *graph) addStage(s dsp.Stage) { g.stages = append(g.stages, s) }
func (g *graph) addTap(s dsp.Stage)   { g.taps = append(g.taps, s) }

// process is the stream callback. It runs on the audio thread and
// touches only preallocated state.
func (g *graph) process(in, out []float32) {
	n := copy(out, in)
	clear(out[n:])

	g.buf.Data = out
	for _, s := range g.stages {
		s.Process(&g.buf)
	}
	for _, t := range g.taps {
		t.Process(&g.buf)
	}
}

// channelsFor picks the stream channel count: the requested count capped
// by what both endpoints support, never less than one.
func channelsFor(in, out audio.Endpoint, requested int) int {
	limit := min(in.MaxChannels, out.MaxChannels)
	switch {
	case limit <= 0 && requested <= 0:
		return 1
	case limit <= 0:
		return requested
	case requested <= 0 || requested > limit:
		return limit
	default:
		return requested
	}
}
