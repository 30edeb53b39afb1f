// SPDX-License-Identifier: MIT
package engine

import (
	"errors"
	"fmt"

	"passthru/internal/safety"
)

var (
	ErrPermissionDenied    = errors.New("microphone permission not granted")
	ErrUnsafeOutput        = errors.New("output endpoint could feed back into the microphone")
	ErrEndpointUnavailable = errors.New("no audio endpoint available")
	ErrEngineStart         = errors.New("audio engine failed to start")
	ErrNotStarted          = errors.New("engine not started")
	ErrClosed              = errors.New("engine closed")
)

// StateKind enumerates the engine lifecycle states.
type StateKind int

const (
	Idle StateKind = iota
	Starting
	Running
	Blocked
	Failed
)

func (k StateKind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(k))
	}
}

// BlockReason explains a Blocked state.
type BlockReason string

const (
	ReasonPermission   BlockReason = "permission"
	ReasonUnsafeOutput BlockReason = safety.ReasonUnsafeOutput
)

// State is the observable engine state. Reason is set only when Blocked,
// Err only when Failed.
type State struct {
	Kind   StateKind
	Reason BlockReason
	Err    error
}

func (s State) String() string {
	switch s.Kind {
	case Blocked:
		return fmt.Sprintf("blocked(%s)", s.Reason)
	case Failed:
		return fmt.Sprintf("failed(%v)", s.Err)
	default:
		return s.Kind.String()
	}
}

// Cause returns why the engine is not running after an activation
// attempt, or nil.
func (s State) Cause() error {
	switch s.Kind {
	case Blocked:
		switch s.Reason {
		case ReasonPermission:
			return ErrPermissionDenied
		case ReasonUnsafeOutput:
			return ErrUnsafeOutput
		}
		return fmt.Errorf("blocked: %s", s.Reason)
	case Failed:
		return s.Err
	}
	return nil
}

func (s State) equal(o State) bool {
	return s.Kind == o.Kind && s.Reason == o.Reason && errors.Is(s.Err, o.Err) && errors.Is(o.Err, s.Err)
}
