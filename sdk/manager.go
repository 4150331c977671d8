package pbxlink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pbxlink-go/pbxlink/pkg/core/calls"
	"github.com/pbxlink-go/pbxlink/pkg/core/dialog"
	"github.com/pbxlink-go/pbxlink/pkg/core/types"
)

// Agent is the capability interface implemented by the conversational agent
// sitting on top of the event manager.
type Agent interface {
	// OnCallEvent receives every bridge event after the manager's own
	// processing, except raw audio frames.
	OnCallEvent(event types.Event)

	// OnTranscriptionFinal handles one complete user utterance. It typically
	// runs the agent and speaks the reply, which can take many seconds; the
	// manager invokes it on a dedicated goroutine with the call gated in the
	// PROCESSING state. A returned error is logged and forces the call back
	// to its resting state; it never propagates further.
	OnTranscriptionFinal(ctx context.Context, callID, text string, convo *dialog.Context) error
}

// ManagerOption configures an EventManager.
type ManagerOption func(*EventManager)

// WithManagerLogger sets the manager's logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *EventManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithUtteranceWindow overrides the silence window used to detect utterance
// boundaries. Mainly for tests; the default is dialog.DefaultSilenceWindow.
func WithUtteranceWindow(d time.Duration) ManagerOption {
	return func(m *EventManager) {
		if d > 0 {
			m.window = d
		}
	}
}

// EventManager consumes the bridge event stream and maintains the live view
// of the telephony side: the registry of active calls and one conversation
// context per call. It is an explicitly constructed, explicitly owned
// instance: create one, Start it, and Stop it on shutdown.
type EventManager struct {
	client *Client
	agent  Agent
	logger *slog.Logger
	window time.Duration

	registry *calls.Registry

	mu       sync.Mutex
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	contexts map[string]*dialog.Context
}

// NewEventManager creates a manager over the given client. agent may be nil
// when only the call registry is of interest.
func NewEventManager(client *Client, agent Agent, opts ...ManagerOption) *EventManager {
	m := &EventManager{
		client:   client,
		agent:    agent,
		logger:   client.logger,
		registry: calls.NewRegistry(),
		contexts: make(map[string]*dialog.Context),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start connects to the bridge event stream. Reconnection and snapshot
// resync are automatic after that; a dial error is returned but the manager
// keeps retrying in the background. Calling Start on a running manager is a
// logged no-op.
func (m *EventManager) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Warn("event manager already running")
		return nil
	}
	m.running = true
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.mu.Unlock()

	m.logger.Info("event manager starting", "url", m.client.BaseURL())
	return m.client.ConnectEvents(EventsOptions{
		OnConnect: func() {
			m.logger.Info("connected to bridge event stream")
		},
		OnDisconnect: func(code int, reason string) {
			// Registry is stale until the next snapshot resyncs it.
			m.logger.Warn("bridge event stream disconnected", "code", code, "reason", reason)
		},
		OnError: func(err error) {
			m.logger.Error("bridge event stream error", "error", err)
		},
		OnSnapshot: m.handleSnapshot,
		OnEvent:    m.handleEvent,
	})
}

// Stop disconnects the event stream, cancels every per-call timer, and drops
// all in-memory state. Idempotent. Stopping never triggers a reconnect.
func (m *EventManager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	contexts := m.contexts
	m.contexts = make(map[string]*dialog.Context)
	m.mu.Unlock()

	m.logger.Info("event manager stopping")
	m.client.DisconnectEvents()
	if cancel != nil {
		cancel()
	}
	for _, convo := range contexts {
		convo.Close()
	}
	m.registry.Clear()
}

// IsConnected reports whether the event socket is currently open.
func (m *EventManager) IsConnected() bool {
	return m.client.IsEventsConnected()
}

// Client returns the underlying bridge client for making API calls.
func (m *EventManager) Client() *Client {
	return m.client
}

// ActiveCalls lists the calls in the registry.
func (m *EventManager) ActiveCalls() []types.Call {
	return m.registry.List()
}

// Call looks up one call; absence is a normal outcome.
func (m *EventManager) Call(callID string) (types.Call, bool) {
	return m.registry.Get(callID)
}

// Conversation returns the call's conversation context, creating it on first
// access.
func (m *EventManager) Conversation(callID string) *dialog.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversationLocked(callID)
}

func (m *EventManager) conversationLocked(callID string) *dialog.Context {
	convo := m.contexts[callID]
	if convo == nil {
		convo = dialog.NewContext(callID, m.window, func(id, text string) {
			go m.processUtterance(id, text)
		})
		m.contexts[callID] = convo
	}
	return convo
}

// ConversationState returns the call's current dialogue state.
func (m *EventManager) ConversationState(callID string) dialog.State {
	return m.Conversation(callID).State()
}

// SetConversationState writes the call's dialogue state directly.
func (m *EventManager) SetConversationState(callID string, state dialog.State) {
	m.Conversation(callID).SetState(state)
	m.logger.Debug("conversation state changed", "call", callID, "state", state.String())
}

// EnableConversationMode switches the call into open-dialogue mode: after
// each spoken reply the machine returns to LISTENING instead of IDLE.
func (m *EventManager) EnableConversationMode(callID string) {
	m.Conversation(callID).EnableConversationMode()
	m.logger.Info("conversation mode enabled", "call", callID)
}

// StartListening explicitly moves the call to LISTENING and enables
// conversation mode.
func (m *EventManager) StartListening(callID string) {
	convo := m.Conversation(callID)
	convo.EnableConversationMode()
	convo.SetState(dialog.Listening)
	m.logger.Info("listening started", "call", callID)
}

// StopListening explicitly parks the call in IDLE.
func (m *EventManager) StopListening(callID string) {
	m.Conversation(callID).SetState(dialog.Idle)
	m.logger.Info("listening stopped", "call", callID)
}

// Speak plays text on the call through the bridge's blocking speak endpoint
// and records the assistant turn in the conversation history.
func (m *EventManager) Speak(ctx context.Context, callID, text string, opts SpeakOptions) (*SpeakResponse, error) {
	resp, err := m.client.Speak(ctx, callID, text, opts)
	if err != nil {
		return nil, err
	}
	m.Conversation(callID).AppendTurn(dialog.RoleAssistant, text)
	return resp, nil
}

func (m *EventManager) handleSnapshot(snapshot *types.SnapshotEvent) {
	m.logger.Info("snapshot received", "calls", len(snapshot.Calls))
	m.registry.ApplySnapshot(snapshot.Calls)
	m.forward(snapshot)
}

// handleEvent routes one event: registry mutation, conversation transition,
// then forwarding to the agent. Events without a call identifier cause no
// registry change but are still forwarded.
func (m *EventManager) handleEvent(event types.Event) {
	switch e := event.(type) {
	case *types.CallBeginEvent:
		if e.CallID != "" {
			status := e.State
			if status == "" {
				status = "active"
			}
			m.registry.Upsert(e.CallID, types.Call{
				Status:  status,
				Channel: e.ChannelID,
				Caller:  e.CallerNumber,
				Callee:  e.CalleeNumber,
			})
			m.logger.Debug("call tracked", "call", e.CallID, "type", e.EventType(), "status", status)
		}

	case *types.CallUpdateEvent:
		// Updates only patch calls the registry already knows; a record may
		// not materialize from anything but a snapshot or a creation event.
		if e.CallID != "" && e.State != "" {
			if _, ok := m.registry.Get(e.CallID); ok {
				m.registry.Upsert(e.CallID, types.Call{Status: e.State})
			}
			m.logger.Debug("call updated", "call", e.CallID, "status", e.State)
		}

	case *types.CallEndedEvent:
		if e.CallID != "" {
			m.registry.Remove(e.CallID)
			m.teardownConversation(e.CallID)
			m.logger.Info("call ended", "call", e.CallID, "cause", e.Cause)
		}

	case *types.TranscriptionEvent:
		m.handleTranscription(e)

	case *types.DTMFEvent:
		m.logger.Info("dtmf received", "call", e.CallID, "digit", e.Digit)

	case *types.SpeakStartedEvent:
		if e.CallID != "" {
			m.SetConversationState(e.CallID, dialog.Speaking)
			m.logger.Info("speak started", "call", e.CallID)
		}

	case *types.SpeakFinishedEvent:
		if e.CallID != "" {
			m.settleAfterSpeaking(e.CallID)
			m.logger.Info("speak finished", "call", e.CallID, "duration", e.DurationSeconds)
		}

	case *types.SpeakErrorEvent:
		if e.CallID != "" {
			m.logger.Error("speak failed", "call", e.CallID, "error", e.Err)
			m.settleAfterSpeaking(e.CallID)
		}

	case *types.PlaybackStreamEvent:
		if e.EventType() == types.EventPlaybackStreamError {
			m.logger.Error("audio stream error", "call", e.CallID, "error", e.Err)
		} else {
			m.logger.Debug("audio stream status", "call", e.CallID, "type", e.EventType())
		}

	case *types.PlaybackFinishedEvent:
		m.logger.Debug("playback finished", "call", e.CallID)

	case *types.RecordingFinishedEvent:
		m.logger.Debug("recording finished", "call", e.CallID, "recording", e.RecordingID)

	case *types.AudioCaptureEvent:
		if e.EventType() == types.EventAudioCaptureError {
			m.logger.Error("audio capture error", "call", e.CallID, "error", e.Err)
		} else {
			m.logger.Info("audio capture status", "call", e.CallID, "type", e.EventType())
		}

	case *types.AudioFrameEvent:
		// High-frequency raw audio frames are dropped outright: no log, no
		// forwarding.
		return

	case *types.SnapshotEvent:
		// Snapshots arrive via OnSnapshot; nothing to do here.

	case *types.UnknownEvent:
		m.logger.Debug("unrecognized event", "type", e.Type, "call", e.CallID)
	}

	m.forward(event)
}

func (m *EventManager) forward(event types.Event) {
	if m.agent != nil {
		m.agent.OnCallEvent(event)
	}
}

// settleAfterSpeaking moves the call from SPEAKING to its resting state.
func (m *EventManager) settleAfterSpeaking(callID string) {
	convo := m.Conversation(callID)
	convo.SetState(convo.RestingState())
}

// handleTranscription feeds speech-recognition output into the call's
// utterance debouncer. Input arriving while the call is SPEAKING is discarded
// so TTS audio leaking back through capture cannot trigger a response.
func (m *EventManager) handleTranscription(e *types.TranscriptionEvent) {
	if e.CallID == "" {
		return
	}
	convo := m.Conversation(e.CallID)
	if convo.State() == dialog.Speaking {
		m.logger.Debug("ignoring transcription while speaking", "call", e.CallID)
		return
	}

	if e.IsFinal {
		// Finals only fire at call teardown; flush whatever is buffered.
		convo.FlushTranscript(e.Text)
		return
	}
	m.logger.Debug("transcription partial", "call", e.CallID, "text", truncate(e.Text, 80))
	convo.ObservePartial(e.Text)
}

// processUtterance runs one complete utterance through the agent. It executes
// on its own goroutine so a long agent/speak round trip never stalls event
// consumption; ordering within the call is preserved by gating on state.
func (m *EventManager) processUtterance(callID, text string) {
	m.mu.Lock()
	running := m.running
	ctx := m.ctx
	convo := m.contexts[callID]
	m.mu.Unlock()
	if !running || convo == nil {
		return
	}

	if !convo.BeginProcessing() {
		// An earlier utterance is still being processed or spoken; this one
		// is dropped rather than queued.
		m.logger.Debug("dropping utterance while busy", "call", callID, "state", convo.State().String())
		return
	}
	convo.AppendTurn(dialog.RoleUser, text)
	m.logger.Info("utterance complete", "call", callID, "text", text)

	if m.agent == nil {
		convo.SetState(convo.RestingState())
		return
	}

	if err := m.agent.OnTranscriptionFinal(ctx, callID, text, convo); err != nil {
		m.logger.Error("agent transcription callback failed", "call", callID, "error", err)
		convo.SetState(convo.RestingState())
		return
	}

	// A successful callback that produced no speech leaves the machine in
	// PROCESSING; settle it so the call can take another turn.
	if convo.State() == dialog.Processing {
		convo.SetState(convo.RestingState())
	}
}

func (m *EventManager) teardownConversation(callID string) {
	m.mu.Lock()
	convo := m.contexts[callID]
	delete(m.contexts, callID)
	m.mu.Unlock()
	if convo != nil {
		// Cancel the utterance timer before the context goes away.
		convo.Close()
		m.logger.Debug("conversation context removed", "call", callID)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
