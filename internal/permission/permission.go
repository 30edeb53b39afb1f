// SPDX-License-Identifier: MIT

// Package permission models the operating system's microphone access
// state. The routing engine only queries it; requesting access belongs to
// the controlling layer.
package permission

import (
	"sync"
	"sync/atomic"
)

// Status is the microphone authorization state.
type Status int32

const (
	Undetermined Status = iota
	Granted
	Denied
	Restricted
)

func (s Status) String() string {
	switch s {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	case Restricted:
		return "restricted"
	default:
		return "undetermined"
	}
}

// Service reports and requests microphone access.
type Service interface {
	Query() Status
	// Request asks for access and calls fn with the result. The returned
	// cancel drops the callback if it has not fired yet.
	Request(fn func(Status)) (cancel func())
}

// Static is a Service whose answer is set by the host. Platforms without
// a permission model (Linux, most BSDs) use Static(Granted).
type Static struct {
	status atomic.Int32
}

// NewStatic returns a Static service reporting s.
func NewStatic(s Status) *Static {
	p := &Static{}
	p.Set(s)
	return p
}

// Set changes the reported status.
func (p *Static) Set(s Status) {
	p.status.Store(int32(s))
}

// Query implements Service.
func (p *Static) Query() Status {
	return Status(p.status.Load())
}

// Request implements Service. An undetermined status is resolved to
// granted, as there is no prompt to show.
func (p *Static) Request(fn func(Status)) (cancel func()) {
	p.status.CompareAndSwap(int32(Undetermined), int32(Granted))

	var (
		mu       sync.Mutex
		canceled bool
	)
	go func() {
		mu.Lock()
		defer mu.Unlock()
		if !canceled {
			fn(p.Query())
		}
	}()
	return func() {
		mu.Lock()
		canceled = true
		mu.Unlock()
	}
}

var _ Service = (*Static)(nil)
