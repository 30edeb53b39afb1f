// SPDX-License-Identifier: MIT

// Package transport publishes engine telemetry frames to observers outside
// the process: WebSocket clients, UDP listeners and the debug log.
package transport

import (
	"time"

	"passthru/internal/engine"
)

// Transport defines a sink for telemetry frames.
// Implementations should be thread-safe and must not block the publisher.
type Transport interface {
	Send(f Frame) error
	Close() error
}

// Source is what the publisher samples on each tick.
type Source interface {
	Status() engine.Status
	Level() float32
	GateSmoothing() float32
}

// Frame is one telemetry sample.
type Frame struct {
	Seq       uint32  `json:"seq"`
	Timestamp int64   `json:"ts"` // Nanoseconds since epoch
	State     string  `json:"state"`
	StateCode uint8   `json:"state_code"`
	Reason    string  `json:"reason,omitempty"`
	Error     string  `json:"error,omitempty"`
	Running   bool    `json:"running"` // Desired running
	Level     float32 `json:"level"`
	Gate      float32 `json:"gate"`
	LatencyMs float32 `json:"latency_ms"`
	Gain      float32 `json:"gain"`
	Input     string  `json:"input"`
	Output    string  `json:"output"`
}

// NewFrame samples src.
func NewFrame(src Source, seq uint32, now time.Time) Frame {
	st := src.Status()
	f := Frame{
		Seq:       seq,
		Timestamp: now.UnixNano(),
		State:     st.State.Kind.String(),
		StateCode: uint8(st.State.Kind),
		Reason:    string(st.State.Reason),
		Running:   st.DesiredRunning,
		Level:     src.Level(),
		Gate:      src.GateSmoothing(),
		LatencyMs: float32(st.LatencyMs),
		Gain:      st.Config.Gain,
		Input:     st.Input.Name,
		Output:    st.Output.Name,
	}
	if st.State.Err != nil {
		f.Error = st.State.Err.Error()
	}
	return f
}
