// Package dialog implements the per-call conversation state machine and the
// utterance debouncer that turns streaming transcription partials into
// discrete utterances.
package dialog

import "time"

// State is the conversation state of one call.
type State int

const (
	// Idle is the initial state and the resting state outside conversation
	// mode.
	Idle State = iota
	// Listening means user speech is being captured and debounced.
	Listening
	// Processing means a complete utterance has been handed to the agent and
	// its response is pending.
	Processing
	// Speaking means TTS playback is active; transcription input is discarded
	// so the system does not react to its own audio.
	Speaking
)

// String returns the conversation state label.
func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Listening:
		return "LISTENING"
	case Processing:
		return "PROCESSING"
	case Speaking:
		return "SPEAKING"
	default:
		return "UNKNOWN"
	}
}

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in a call's conversation history.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
