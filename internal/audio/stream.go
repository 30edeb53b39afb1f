// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

var paLibOpenStream = func(p portaudio.StreamParameters, callback func(in, out []float32)) (paStreamHandle, error) {
	s, err := portaudio.OpenStream(p, callback)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// paStreamHandle is the subset of *portaudio.Stream used here.
type paStreamHandle interface {
	Start() error
	Stop() error
	Close() error
	Info() *portaudio.StreamInfo
}

type paStream struct {
	handle paStreamHandle
	frames int
	rate   float64
}

// OpenStream opens a duplex PortAudio stream from cfg.Input to cfg.Output
// using low-latency device parameters. process runs on PortAudio's
// callback thread.
func (p *PortAudio) OpenStream(cfg StreamConfig, process ProcessFunc) (Stream, error) {
	in, err := p.lookup(cfg.Input)
	if err != nil {
		return nil, err
	}
	out, err := p.lookup(cfg.Output)
	if err != nil {
		return nil, err
	}

	channels := cfg.Channels
	if channels <= 0 {
		channels = min(in.MaxInputChannels, out.MaxOutputChannels)
	}

	frames := cfg.FramesPerBuffer
	if frames <= 0 {
		frames = p.requestedFrames(cfg.Output)
	}

	params := portaudio.LowLatencyParameters(in, out)
	params.Input.Channels = channels
	params.Output.Channels = channels
	if cfg.SampleRate > 0 {
		params.SampleRate = cfg.SampleRate
	}
	if frames > 0 {
		params.FramesPerBuffer = frames
	}

	handle, err := paLibOpenStream(params, func(in, out []float32) {
		process(in, out)
	})
	if err != nil {
		return nil, fmt.Errorf("open stream %s -> %s: %w", cfg.Input.Name, cfg.Output.Name, err)
	}

	rate := params.SampleRate
	if info := handle.Info(); info != nil && info.SampleRate > 0 {
		rate = info.SampleRate
	}
	if frames <= 0 {
		// PortAudio picks the size itself; approximate it from the
		// reported output latency.
		if info := handle.Info(); info != nil {
			frames = int(info.OutputLatency.Seconds() * rate)
		}
	}

	return &paStream{handle: handle, frames: frames, rate: rate}, nil
}

func (s *paStream) Start() error         { return s.handle.Start() }
func (s *paStream) Stop() error          { return s.handle.Stop() }
func (s *paStream) Close() error         { return s.handle.Close() }
func (s *paStream) SampleRate() float64  { return s.rate }
func (s *paStream) FramesPerBuffer() int { return s.frames }
