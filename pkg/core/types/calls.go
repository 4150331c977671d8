// Package types defines the wire types exchanged with the asterisk-api
// bridge service: call records and the tagged event union delivered over the
// /events WebSocket stream.
package types

// Call lifecycle labels reported by the bridge service. The registry treats
// status as free-form text; these constants cover the labels asterisk-api is
// known to emit.
const (
	CallStatusInitiated = "initiated"
	CallStatusRinging   = "ringing"
	CallStatusAnswered  = "answered"
	CallStatusBusy      = "busy"
	CallStatusNoAnswer  = "no-answer"
	CallStatusFailed    = "failed"
	CallStatusHangup    = "hangup"
)

// Call is the bridge service's view of one active call. It is the element of
// snapshot events and the value held by the call registry.
type Call struct {
	CallID   string  `json:"callId"`
	Status   string  `json:"status"`
	Channel  string  `json:"channel,omitempty"`
	Caller   string  `json:"caller,omitempty"`
	Callee   string  `json:"callee,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}
