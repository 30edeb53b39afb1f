// SPDX-License-Identifier: MIT

// Package audiotest provides an in-memory audio platform for tests: a
// scriptable device list with change notifications and streams whose
// callback is driven by the test instead of a hardware clock.
package audiotest

import (
	"slices"
	"sync"

	"passthru/internal/audio"
)

// DefaultSampleRate is used by fake streams unless overridden.
const DefaultSampleRate = 44100.0

// InputEndpoint builds a classified mono input endpoint.
func InputEndpoint(id, name string, transport audio.Transport) audio.Endpoint {
	return audio.Classify(audio.Endpoint{
		ID:                id,
		Name:              name,
		Direction:         audio.Input,
		Transport:         transport,
		MaxChannels:       1,
		DefaultSampleRate: DefaultSampleRate,
	})
}

// OutputEndpoint builds a classified mono output endpoint.
func OutputEndpoint(id, name string, transport audio.Transport) audio.Endpoint {
	return audio.Classify(audio.Endpoint{
		ID:                id,
		Name:              name,
		Direction:         audio.Output,
		Transport:         transport,
		MaxChannels:       1,
		DefaultSampleRate: DefaultSampleRate,
	})
}

// Platform is a fake DeviceService, ChangeNotifier and Backend.
type Platform struct {
	mu sync.Mutex

	inputs     []audio.Endpoint
	outputs    []audio.Endpoint
	defaultIn  audio.Endpoint
	defaultOut audio.Endpoint

	// Failure injection.
	EnumerateErr  error
	SetDefaultErr error
	BufferErr     error
	OpenErr       error
	StartErr      error

	// GrantedFrames overrides the buffer size granted by SetBufferFrames.
	GrantedFrames int
	SampleRate    float64

	listeners map[int]func()
	nextID    int

	streams        []*Stream
	defaultsSet    []audio.Endpoint
	bufferRequests []int
}

// NewPlatform returns an empty platform.
func NewPlatform() *Platform {
	return &Platform{
		SampleRate: DefaultSampleRate,
		listeners:  make(map[int]func()),
	}
}

// Add registers endpoints. The first endpoint of each direction becomes
// the default if none is set.
func (p *Platform) Add(endpoints ...audio.Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range endpoints {
		if e.Direction == audio.Input {
			p.inputs = append(p.inputs, e)
			if p.defaultIn.IsZero() {
				p.defaultIn = e
			}
		} else {
			p.outputs = append(p.outputs, e)
			if p.defaultOut.IsZero() {
				p.defaultOut = e
			}
		}
	}
}

// Remove unplugs e. If it was the default, the first remaining endpoint
// of that direction becomes the default.
func (p *Platform) Remove(e audio.Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	drop := func(list []audio.Endpoint) []audio.Endpoint {
		return slices.DeleteFunc(list, func(x audio.Endpoint) bool { return x.Equal(e) })
	}
	if e.Direction == audio.Input {
		p.inputs = drop(p.inputs)
		if p.defaultIn.Equal(e) {
			p.defaultIn = first(p.inputs)
		}
	} else {
		p.outputs = drop(p.outputs)
		if p.defaultOut.Equal(e) {
			p.defaultOut = first(p.outputs)
		}
	}
}

// SetDefault changes the system default without recording a request.
func (p *Platform) SetDefault(e audio.Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e.Direction == audio.Input {
		p.defaultIn = e
	} else {
		p.defaultOut = e
	}
}

// Notify fires every registered change listener synchronously.
func (p *Platform) Notify() {
	p.mu.Lock()
	fns := make([]func(), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Listeners returns the number of registered change listeners.
func (p *Platform) Listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// Streams returns every stream opened so far.
func (p *Platform) Streams() []*Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.streams)
}

// LastStream returns the most recently opened stream, or nil.
func (p *Platform) LastStream() *Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.streams) == 0 {
		return nil
	}
	return p.streams[len(p.streams)-1]
}

// LiveStreams counts streams that are open and not yet closed.
func (p *Platform) LiveStreams() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.streams {
		if !s.Closed() {
			n++
		}
	}
	return n
}

// DefaultsSet returns the endpoints passed to SetDefaultEndpoint.
func (p *Platform) DefaultsSet() []audio.Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.defaultsSet)
}

// BufferRequests returns the frame counts passed to SetBufferFrames.
func (p *Platform) BufferRequests() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.bufferRequests)
}

// Endpoints implements audio.DeviceService.
func (p *Platform) Endpoints(dir audio.Direction) ([]audio.Endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.EnumerateErr != nil {
		return nil, p.EnumerateErr
	}
	if dir == audio.Input {
		return slices.Clone(p.inputs), nil
	}
	return slices.Clone(p.outputs), nil
}

// DefaultEndpoint implements audio.DeviceService.
func (p *Platform) DefaultEndpoint(dir audio.Direction) (audio.Endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.EnumerateErr != nil {
		return audio.Endpoint{}, p.EnumerateErr
	}
	e := p.defaultOut
	if dir == audio.Input {
		e = p.defaultIn
	}
	if e.IsZero() {
		return audio.Endpoint{}, audio.ErrDeviceNotFound
	}
	return e, nil
}

// SetDefaultEndpoint implements audio.DeviceService.
func (p *Platform) SetDefaultEndpoint(e audio.Endpoint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultsSet = append(p.defaultsSet, e)
	if p.SetDefaultErr != nil {
		return p.SetDefaultErr
	}
	if e.Direction == audio.Input {
		p.defaultIn = e
	} else {
		p.defaultOut = e
	}
	return nil
}

// SetBufferFrames implements audio.DeviceService.
func (p *Platform) SetBufferFrames(_ audio.Endpoint, frames int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bufferRequests = append(p.bufferRequests, frames)
	if p.BufferErr != nil {
		return 0, p.BufferErr
	}
	if p.GrantedFrames > 0 {
		return p.GrantedFrames, nil
	}
	return frames, nil
}

// NotifyChanges implements audio.ChangeNotifier.
func (p *Platform) NotifyChanges(fn func()) (cancel func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

// OpenStream implements audio.Backend.
func (p *Platform) OpenStream(cfg audio.StreamConfig, process audio.ProcessFunc) (audio.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	if !contains(p.inputs, cfg.Input) || !contains(p.outputs, cfg.Output) {
		return nil, audio.ErrDeviceNotFound
	}

	frames := cfg.FramesPerBuffer
	if p.GrantedFrames > 0 {
		frames = p.GrantedFrames
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = p.SampleRate
	}
	s := &Stream{
		Config:   cfg,
		process:  process,
		frames:   frames,
		rate:     rate,
		startErr: p.StartErr,
	}
	p.streams = append(p.streams, s)
	return s, nil
}

func contains(list []audio.Endpoint, e audio.Endpoint) bool {
	return slices.ContainsFunc(list, e.Equal)
}

func first(list []audio.Endpoint) audio.Endpoint {
	if len(list) == 0 {
		return audio.Endpoint{}
	}
	return list[0]
}

var (
	_ audio.DeviceService  = (*Platform)(nil)
	_ audio.ChangeNotifier = (*Platform)(nil)
	_ audio.Backend        = (*Platform)(nil)
)
