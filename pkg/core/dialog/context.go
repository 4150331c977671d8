package dialog

import (
	"sync"
	"time"
)

// Context tracks the conversation for one call: its state machine position,
// turn history, conversation-mode flag, and the utterance debouncer. Contexts
// are created lazily on first access and destroyed only when the call ends,
// never on a transient disconnect. All mutation goes through the context's
// mutex so concurrent calls proceed independently while transitions within
// one call stay serialized.
type Context struct {
	callID   string
	debounce *Debouncer

	mu         sync.Mutex
	state      State
	lastChange time.Time
	convoMode  bool
	history    []Turn
}

// NewContext creates a context in the Idle state. onUtterance receives each
// complete utterance detected for this call; window <= 0 uses
// DefaultSilenceWindow.
func NewContext(callID string, window time.Duration, onUtterance func(callID, text string)) *Context {
	c := &Context{
		callID:     callID,
		state:      Idle,
		lastChange: time.Now(),
	}
	c.debounce = NewDebouncer(window, func(text string) {
		if onUtterance != nil {
			onUtterance(callID, text)
		}
	})
	return c
}

// CallID returns the call this context belongs to.
func (c *Context) CallID() string { return c.callID }

// State returns the current conversation state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState moves the machine to s and stamps the change time.
func (c *Context) SetState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
	c.lastChange = time.Now()
}

// StateChangedAt returns when the state last changed.
func (c *Context) StateChangedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastChange
}

// ConversationMode reports whether the call loops listen→process→speak turns
// rather than finishing after a single notification.
func (c *Context) ConversationMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.convoMode
}

// EnableConversationMode switches the call into open-dialogue mode.
func (c *Context) EnableConversationMode() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.convoMode = true
}

// RestingState is where the machine settles after speaking, after an agent
// failure, or after a turn that produced no speech: Listening in conversation
// mode, Idle in one-shot mode.
func (c *Context) RestingState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.convoMode {
		return Listening
	}
	return Idle
}

// BeginProcessing attempts the Listening→Processing transition for a new
// utterance. It reports false, and changes nothing, while the machine is
// already Processing or Speaking, so an utterance racing a slow agent
// callback for the same call is dropped rather than interleaved.
func (c *Context) BeginProcessing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Processing || c.state == Speaking {
		return false
	}
	c.state = Processing
	c.lastChange = time.Now()
	return true
}

// AppendTurn records one turn of dialogue.
func (c *Context) AppendTurn(role Role, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, Turn{Role: role, Text: text, Timestamp: time.Now()})
}

// History returns a copy of the turn history in order.
func (c *Context) History() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn(nil), c.history...)
}

// ObservePartial feeds a partial transcription into the debouncer.
func (c *Context) ObservePartial(text string) {
	c.debounce.Observe(text)
}

// FlushTranscript handles the end-of-call final transcription.
func (c *Context) FlushTranscript(finalText string) {
	c.debounce.Flush(finalText)
}

// PartialText returns the buffered partial transcript.
func (c *Context) PartialText() string {
	return c.debounce.Partial()
}

// Close cancels the pending utterance timer. Called synchronously from call
// teardown so no timer can act on a destroyed context.
func (c *Context) Close() {
	c.debounce.Cancel()
}
