// SPDX-License-Identifier: MIT
package audiotest

import (
	"sync"

	"passthru/internal/audio"
)

// Stream is a fake audio.Stream. Tests drive the callback with Process.
type Stream struct {
	Config audio.StreamConfig

	mu       sync.Mutex
	process  audio.ProcessFunc
	frames   int
	rate     float64
	startErr error
	running  bool
	closed   bool
}

// Start implements audio.Stream.
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.running = true
	return nil
}

// Stop implements audio.Stream.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

// Close implements audio.Stream.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.closed = true
	return nil
}

// SampleRate implements audio.Stream.
func (s *Stream) SampleRate() float64 { return s.rate }

// FramesPerBuffer implements audio.Stream.
func (s *Stream) FramesPerBuffer() int { return s.frames }

// Running reports whether the stream is started.
func (s *Stream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Closed reports whether the stream has been closed.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Process runs one hardware buffer through the stream callback and
// returns the rendered output. A stopped stream renders nothing.
func (s *Stream) Process(in []float32) []float32 {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	out := make([]float32, len(in))
	if running {
		s.process(in, out)
	}
	return out
}
