// SPDX-License-Identifier: MIT
/*
Package audio defines the endpoint model and the platform services the
routing engine consumes, plus a PortAudio implementation of them.

Thread Safety:
  - DeviceService and Backend calls are made from the control goroutine
  - ProcessFunc runs on the platform's real-time audio thread and must
    not allocate, lock or block
*/
package audio

import "errors"

var (
	// ErrUnsupported is returned by best-effort platform requests the
	// platform cannot honour. Callers proceed with platform defaults.
	ErrUnsupported = errors.New("operation not supported by platform")

	// ErrDeviceNotFound is returned when an endpoint no longer resolves to
	// a platform device.
	ErrDeviceNotFound = errors.New("audio device not found")
)

// DeviceService is the platform's endpoint enumeration and default
// management surface.
type DeviceService interface {
	// Endpoints enumerates every endpoint for the direction.
	Endpoints(dir Direction) ([]Endpoint, error)
	// DefaultEndpoint returns the system default for the direction.
	DefaultEndpoint(dir Direction) (Endpoint, error)
	// SetDefaultEndpoint asks the platform to make e the system default.
	SetDefaultEndpoint(e Endpoint) error
	// SetBufferFrames requests a hardware buffer size and returns the size
	// actually granted.
	SetBufferFrames(e Endpoint, frames int) (int, error)
}

// ChangeNotifier is implemented by platforms that push hardware change
// notifications (added, removed, default changed).
type ChangeNotifier interface {
	NotifyChanges(fn func()) (cancel func())
}

// ProcessFunc is invoked once per hardware buffer with interleaved float32
// samples. out has the same length as in.
type ProcessFunc func(in, out []float32)

// StreamConfig describes a duplex passthrough stream.
type StreamConfig struct {
	Input           Endpoint
	Output          Endpoint
	Channels        int
	SampleRate      float64
	FramesPerBuffer int
}

// Stream is an opened platform stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
	// SampleRate is the rate the platform actually granted.
	SampleRate() float64
	// FramesPerBuffer is the buffer size the platform actually granted.
	FramesPerBuffer() int
}

// Backend opens processing streams between two endpoints.
type Backend interface {
	OpenStream(cfg StreamConfig, process ProcessFunc) (Stream, error)
}
