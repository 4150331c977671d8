package pbxlink

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pbxlink-go/pbxlink/pkg/core/dialog"
	"github.com/pbxlink-go/pbxlink/pkg/core/types"
)

type stubAgent struct {
	mu          sync.Mutex
	events      []types.Event
	utterances  []string
	finalErr    error
	finalDelay  time.Duration
	onFinalDone chan struct{}
}

func (a *stubAgent) OnCallEvent(event types.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *stubAgent) OnTranscriptionFinal(ctx context.Context, callID, text string, convo *dialog.Context) error {
	if a.finalDelay > 0 {
		time.Sleep(a.finalDelay)
	}
	a.mu.Lock()
	a.utterances = append(a.utterances, text)
	err := a.finalErr
	a.mu.Unlock()
	if a.onFinalDone != nil {
		a.onFinalDone <- struct{}{}
	}
	return err
}

func (a *stubAgent) eventTypes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.events))
	for i, e := range a.events {
		out[i] = e.EventType()
	}
	return out
}

func (a *stubAgent) utteranceList() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.utterances...)
}

// newTestManager returns a started-state manager without a live socket so
// dispatch can be exercised directly.
func newTestManager(t *testing.T, agent Agent, opts ...ManagerOption) *EventManager {
	t.Helper()
	m := NewEventManager(NewClient(), agent, opts...)
	m.running = true
	m.ctx, m.cancel = context.WithCancel(context.Background())
	t.Cleanup(func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		m.cancel()
	})
	return m
}

func TestSnapshotReplacesRegistry(t *testing.T) {
	agent := &stubAgent{}
	m := newTestManager(t, agent)

	m.handleSnapshot(&types.SnapshotEvent{Calls: []types.Call{
		{CallID: "a", Status: "active"},
		{CallID: "b", Status: "ringing"},
	}})
	if got := len(m.ActiveCalls()); got != 2 {
		t.Fatalf("ActiveCalls after first snapshot = %d, want 2", got)
	}

	m.handleSnapshot(&types.SnapshotEvent{Calls: []types.Call{
		{CallID: "c", Status: "active"},
	}})
	if got := len(m.ActiveCalls()); got != 1 {
		t.Fatalf("ActiveCalls after second snapshot = %d, want 1", got)
	}
	if _, ok := m.Call("a"); ok {
		t.Error("call a survived a snapshot that omitted it")
	}
	if _, ok := m.Call("c"); !ok {
		t.Error("call c missing after snapshot")
	}
	if got := agent.eventTypes(); len(got) != 2 || got[0] != types.EventSnapshot {
		t.Errorf("agent events = %v, want two snapshots", got)
	}
}

func TestCallLifecycleEvents(t *testing.T) {
	m := newTestManager(t, &stubAgent{})

	m.handleEvent(&types.CallBeginEvent{
		Type:         types.EventCallCreated,
		CallID:       "call-1",
		ChannelID:    "PJSIP/101-0001",
		CallerNumber: "+15551230001",
	})
	call, ok := m.Call("call-1")
	if !ok {
		t.Fatal("call not tracked after creation event")
	}
	if call.Status != "active" {
		t.Errorf("Status = %q, want default %q", call.Status, "active")
	}
	if call.Channel != "PJSIP/101-0001" {
		t.Errorf("Channel = %q", call.Channel)
	}

	m.handleEvent(&types.CallUpdateEvent{Type: types.EventCallAnswered, CallID: "call-1", State: "answered"})
	call, _ = m.Call("call-1")
	if call.Status != "answered" {
		t.Errorf("Status after answer = %q, want %q", call.Status, "answered")
	}
	if call.Caller != "+15551230001" {
		t.Errorf("Caller lost by patch: %q", call.Caller)
	}

	m.handleEvent(&types.CallEndedEvent{CallID: "call-1"})
	if _, ok := m.Call("call-1"); ok {
		t.Error("call still tracked after end event")
	}
}

func TestUpdateForUnknownCallCreatesNothing(t *testing.T) {
	m := newTestManager(t, &stubAgent{})

	m.handleEvent(&types.CallUpdateEvent{Type: types.EventCallStateChanged, CallID: "ghost", State: "answered"})
	if _, ok := m.Call("ghost"); ok {
		t.Error("state change materialized a call record")
	}
}

func TestCallEndedDestroysConversation(t *testing.T) {
	m := newTestManager(t, &stubAgent{})

	convo := m.Conversation("call-1")
	convo.SetState(dialog.Listening)
	convo.AppendTurn(dialog.RoleUser, "hello")

	m.handleEvent(&types.CallEndedEvent{CallID: "call-1"})

	fresh := m.Conversation("call-1")
	if fresh == convo {
		t.Fatal("conversation context survived call teardown")
	}
	if fresh.State() != dialog.Idle {
		t.Errorf("fresh context state = %v, want Idle", fresh.State())
	}
	if len(fresh.History()) != 0 {
		t.Error("fresh context inherited history")
	}
}

func TestTranscriptionIgnoredWhileSpeaking(t *testing.T) {
	agent := &stubAgent{onFinalDone: make(chan struct{}, 1)}
	m := newTestManager(t, agent, WithUtteranceWindow(30*time.Millisecond))

	m.SetConversationState("call-1", dialog.Speaking)
	m.handleEvent(&types.TranscriptionEvent{CallID: "call-1", Text: "echo of my own voice", IsPartial: true})

	if got := m.Conversation("call-1").PartialText(); got != "" {
		t.Errorf("buffer mutated while speaking: %q", got)
	}
	select {
	case <-agent.onFinalDone:
		t.Fatal("utterance fired from transcription received while speaking")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUtteranceFlowsToAgent(t *testing.T) {
	agent := &stubAgent{onFinalDone: make(chan struct{}, 1)}
	m := newTestManager(t, agent, WithUtteranceWindow(25*time.Millisecond))

	m.StartListening("call-1")
	m.handleEvent(&types.TranscriptionEvent{CallID: "call-1", Text: "hello", IsPartial: true})
	m.handleEvent(&types.TranscriptionEvent{CallID: "call-1", Text: "hello there", IsPartial: true})

	select {
	case <-agent.onFinalDone:
	case <-time.After(time.Second):
		t.Fatal("utterance never reached the agent")
	}
	if got := agent.utteranceList(); len(got) != 1 || got[0] != "hello there" {
		t.Fatalf("utterances = %v, want [hello there]", got)
	}

	hist := m.Conversation("call-1").History()
	if len(hist) != 1 || hist[0].Role != dialog.RoleUser || hist[0].Text != "hello there" {
		t.Errorf("history = %+v, want one user turn", hist)
	}
}

func TestFinalTranscriptionFlushesImmediately(t *testing.T) {
	agent := &stubAgent{onFinalDone: make(chan struct{}, 1)}
	m := newTestManager(t, agent, WithUtteranceWindow(time.Hour))

	m.StartListening("call-1")
	m.handleEvent(&types.TranscriptionEvent{CallID: "call-1", Text: "goodbye", IsFinal: true})

	select {
	case <-agent.onFinalDone:
	case <-time.After(time.Second):
		t.Fatal("final transcription did not flush")
	}
	if got := agent.utteranceList(); len(got) != 1 || got[0] != "goodbye" {
		t.Fatalf("utterances = %v, want [goodbye]", got)
	}
}

func TestAgentErrorSettlesToRestingState(t *testing.T) {
	agent := &stubAgent{finalErr: errors.New("model unavailable"), onFinalDone: make(chan struct{}, 1)}
	m := newTestManager(t, agent, WithUtteranceWindow(20*time.Millisecond))

	m.StartListening("call-1")
	m.handleEvent(&types.TranscriptionEvent{CallID: "call-1", Text: "hi", IsPartial: true})

	select {
	case <-agent.onFinalDone:
	case <-time.After(time.Second):
		t.Fatal("agent callback never ran")
	}
	deadline := time.Now().Add(time.Second)
	for m.ConversationState("call-1") != dialog.Listening {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want Listening after agent error", m.ConversationState("call-1"))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSilentTurnSettlesToRestingState(t *testing.T) {
	// Agent returns nil without speaking; the call must not stay stuck in
	// Processing.
	agent := &stubAgent{onFinalDone: make(chan struct{}, 1)}
	m := newTestManager(t, agent, WithUtteranceWindow(20*time.Millisecond))

	m.StartListening("call-1")
	m.handleEvent(&types.TranscriptionEvent{CallID: "call-1", Text: "noted", IsPartial: true})

	select {
	case <-agent.onFinalDone:
	case <-time.After(time.Second):
		t.Fatal("agent callback never ran")
	}
	deadline := time.Now().Add(time.Second)
	for m.ConversationState("call-1") != dialog.Listening {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want Listening after silent turn", m.ConversationState("call-1"))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConcurrentUtteranceDropped(t *testing.T) {
	agent := &stubAgent{finalDelay: 150 * time.Millisecond, onFinalDone: make(chan struct{}, 2)}
	m := newTestManager(t, agent, WithUtteranceWindow(20*time.Millisecond))

	m.StartListening("call-1")
	m.handleEvent(&types.TranscriptionEvent{CallID: "call-1", Text: "first", IsPartial: true})

	// Wait for processing to start, then race a second utterance against it.
	deadline := time.Now().Add(time.Second)
	for m.ConversationState("call-1") != dialog.Processing {
		if time.Now().After(deadline) {
			t.Fatal("first utterance never entered processing")
		}
		time.Sleep(5 * time.Millisecond)
	}
	m.handleEvent(&types.TranscriptionEvent{CallID: "call-1", Text: "second", IsPartial: true})

	<-agent.onFinalDone
	select {
	case <-agent.onFinalDone:
		t.Fatal("second utterance was processed instead of dropped")
	case <-time.After(200 * time.Millisecond):
	}
	if got := agent.utteranceList(); len(got) != 1 || got[0] != "first" {
		t.Fatalf("utterances = %v, want [first]", got)
	}
}

func TestSpeakLifecycleEvents(t *testing.T) {
	m := newTestManager(t, &stubAgent{})

	m.EnableConversationMode("call-1")
	m.handleEvent(&types.SpeakStartedEvent{CallID: "call-1"})
	if got := m.ConversationState("call-1"); got != dialog.Speaking {
		t.Fatalf("state after speak_started = %v, want Speaking", got)
	}

	m.handleEvent(&types.SpeakFinishedEvent{CallID: "call-1", DurationSeconds: 1.5})
	if got := m.ConversationState("call-1"); got != dialog.Listening {
		t.Errorf("state after speak_finished = %v, want Listening", got)
	}

	m.handleEvent(&types.SpeakStartedEvent{CallID: "call-1"})
	m.handleEvent(&types.SpeakErrorEvent{CallID: "call-1", Err: "tts backend down"})
	if got := m.ConversationState("call-1"); got != dialog.Listening {
		t.Errorf("state after speak_error = %v, want Listening", got)
	}
}

func TestAudioFramesNotForwarded(t *testing.T) {
	agent := &stubAgent{}
	m := newTestManager(t, agent)

	m.handleEvent(&types.AudioFrameEvent{CallID: "call-1"})
	m.handleEvent(&types.DTMFEvent{CallID: "call-1", Digit: "5"})

	got := agent.eventTypes()
	if len(got) != 1 || got[0] != types.EventDTMF {
		t.Errorf("forwarded events = %v, want only the dtmf event", got)
	}
}

func TestUnknownEventForwarded(t *testing.T) {
	agent := &stubAgent{}
	m := newTestManager(t, agent)

	m.handleEvent(&types.UnknownEvent{Type: "call.future_thing", CallID: "call-1"})
	got := agent.eventTypes()
	if len(got) != 1 || got[0] != "call.future_thing" {
		t.Errorf("forwarded events = %v, want the unknown event", got)
	}
}

func TestManagerStartStop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	connected := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connected <- conn
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	agent := &stubAgent{}
	m := NewEventManager(NewClient(WithBaseURL(srv.URL)), agent)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var conn *websocket.Conn
	select {
	case conn = <-connected:
	case <-time.After(time.Second):
		t.Fatal("manager never connected")
	}
	if !m.IsConnected() {
		t.Error("IsConnected = false after Start")
	}

	snapshot := `{"type":"snapshot","calls":[{"callId":"live-1","status":"active"}]}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(snapshot)); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := m.Call("live-1"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("snapshot never reached the registry")
		}
		time.Sleep(5 * time.Millisecond)
	}

	m.Stop()
	if m.IsConnected() {
		t.Error("IsConnected = true after Stop")
	}
	if got := len(m.ActiveCalls()); got != 0 {
		t.Errorf("registry has %d calls after Stop, want 0", got)
	}
	m.Stop() // idempotent
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 80); got != "hello" {
		t.Errorf("truncate short = %q", got)
	}
	long := strings.Repeat("x", 100)
	if got := truncate(long, 80); len(got) != 80 {
		t.Errorf("truncate long len = %d", len(got))
	}
}
