// SPDX-License-Identifier: MIT

// Package safety decides whether live microphone audio may be routed to
// an output endpoint.
package safety

import "passthru/internal/audio"

// ReasonUnsafeOutput is reported when the output could feed back into the
// microphone.
const ReasonUnsafeOutput = "unsafe_output"

// Decision is the outcome of evaluating an output endpoint.
type Decision struct {
	Allow  bool
	Reason string // Empty when allowed
}

// Allowed is the decision for a safe output.
var Allowed = Decision{Allow: true}

// Evaluate blocks exactly the endpoints classified as built-in
// loudspeakers. It is pure and must be consulted before every start.
func Evaluate(out audio.Endpoint) Decision {
	if out.RiskySpeaker {
		return Decision{Reason: ReasonUnsafeOutput}
	}
	return Allowed
}
