package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Wire discriminators for the /events stream.
const (
	EventSnapshot = "snapshot"

	EventCallCreated = "call.created"
	EventCallReady   = "call.ready"
	EventCallInbound = "call.inbound"

	EventCallStateChanged = "call.state_changed"
	EventCallAnswered     = "call.answered"
	EventCallEnded        = "call.ended"

	EventTranscription = "call.transcription"
	EventDTMF          = "call.dtmf"

	EventSpeakStarted  = "call.speak_started"
	EventSpeakFinished = "call.speak_finished"
	EventSpeakError    = "call.speak_error"

	EventPlaybackStreamStarted  = "call.playback_stream_started"
	EventPlaybackStreamFinished = "call.playback_stream_finished"
	EventPlaybackStreamError    = "call.playback_stream_error"
	EventPlaybackFinished       = "call.playback_finished"
	EventRecordingFinished      = "call.recording_finished"

	EventAudioCaptureStarted = "call.audio_capture_started"
	EventAudioCaptureStopped = "call.audio_capture_stopped"
	EventAudioCaptureError   = "call.audio_capture_error"

	EventAudioFrame = "call.audio_frame"
)

// Event is one decoded frame from the bridge event stream. Concrete members
// form a closed union so dispatch can match exhaustively; frames with an
// unrecognized discriminator decode to UnknownEvent rather than failing.
type Event interface {
	// EventType returns the wire discriminator.
	EventType() string
	// Call returns the call identifier the event is scoped to, or "" for
	// events that are not about a single call (snapshot).
	Call() string
}

// SnapshotEvent carries the authoritative list of all currently active calls.
// The bridge sends one on every (re)connect; it replaces the registry
// wholesale.
type SnapshotEvent struct {
	Calls     []Call `json:"calls"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (*SnapshotEvent) EventType() string { return EventSnapshot }
func (*SnapshotEvent) Call() string      { return "" }

// CallBeginEvent announces a call the registry has not seen: an originated
// call becoming known (call.created), a call whose media path is up
// (call.ready), or an inbound call (call.inbound).
type CallBeginEvent struct {
	Type         string `json:"type"`
	CallID       string `json:"callId"`
	Timestamp    string `json:"timestamp"`
	State        string `json:"state,omitempty"`
	ChannelID    string `json:"channelId,omitempty"`
	CallerNumber string `json:"callerNumber,omitempty"`
	CalleeNumber string `json:"calleeNumber,omitempty"`
}

func (e *CallBeginEvent) EventType() string { return e.Type }
func (e *CallBeginEvent) Call() string      { return e.CallID }

// CallUpdateEvent reports a lifecycle label change for a known call
// (call.state_changed, call.answered).
type CallUpdateEvent struct {
	Type      string `json:"type"`
	CallID    string `json:"callId"`
	Timestamp string `json:"timestamp"`
	State     string `json:"state,omitempty"`
}

func (e *CallUpdateEvent) EventType() string { return e.Type }
func (e *CallUpdateEvent) Call() string      { return e.CallID }

// CallEndedEvent is the terminal event for a call. The registry entry and the
// call's conversation context are destroyed when it arrives.
type CallEndedEvent struct {
	CallID    string `json:"callId"`
	Timestamp string `json:"timestamp"`
	Cause     string `json:"cause,omitempty"`
}

func (*CallEndedEvent) EventType() string { return EventCallEnded }
func (e *CallEndedEvent) Call() string    { return e.CallID }

// TranscriptionEvent carries speech-recognition output. Partials are
// cumulative restatements of the utterance so far; the bridge only marks a
// transcription final when the call tears down.
type TranscriptionEvent struct {
	CallID    string `json:"callId"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
	IsFinal   bool   `json:"is_final"`
	IsPartial bool   `json:"is_partial"`
}

func (*TranscriptionEvent) EventType() string { return EventTranscription }
func (e *TranscriptionEvent) Call() string    { return e.CallID }

// DTMFEvent reports a keypad digit pressed on the call.
type DTMFEvent struct {
	CallID    string `json:"callId"`
	Timestamp string `json:"timestamp"`
	Digit     string `json:"digit"`
}

func (*DTMFEvent) EventType() string { return EventDTMF }
func (e *DTMFEvent) Call() string    { return e.CallID }

// SpeakStartedEvent signals that server-side TTS playback began on the call.
type SpeakStartedEvent struct {
	CallID    string `json:"callId"`
	Timestamp string `json:"timestamp"`
	Voice     string `json:"voice,omitempty"`
}

func (*SpeakStartedEvent) EventType() string { return EventSpeakStarted }
func (e *SpeakStartedEvent) Call() string    { return e.CallID }

// SpeakFinishedEvent signals that server-side TTS playback completed.
type SpeakFinishedEvent struct {
	CallID          string  `json:"callId"`
	Timestamp       string  `json:"timestamp"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

func (*SpeakFinishedEvent) EventType() string { return EventSpeakFinished }
func (e *SpeakFinishedEvent) Call() string    { return e.CallID }

// SpeakErrorEvent signals that server-side TTS playback failed.
type SpeakErrorEvent struct {
	CallID    string `json:"callId"`
	Timestamp string `json:"timestamp"`
	Err       string `json:"error,omitempty"`
}

func (*SpeakErrorEvent) EventType() string { return EventSpeakError }
func (e *SpeakErrorEvent) Call() string    { return e.CallID }

// PlaybackStreamEvent reports streamed-audio playback status
// (call.playback_stream_started/finished/error).
type PlaybackStreamEvent struct {
	Type      string `json:"type"`
	CallID    string `json:"callId"`
	Timestamp string `json:"timestamp"`
	Err       string `json:"error,omitempty"`
}

func (e *PlaybackStreamEvent) EventType() string { return e.Type }
func (e *PlaybackStreamEvent) Call() string      { return e.CallID }

// PlaybackFinishedEvent reports completion of a file playback started via the
// REST play endpoint.
type PlaybackFinishedEvent struct {
	CallID     string `json:"callId"`
	Timestamp  string `json:"timestamp"`
	PlaybackID string `json:"playbackId,omitempty"`
}

func (*PlaybackFinishedEvent) EventType() string { return EventPlaybackFinished }
func (e *PlaybackFinishedEvent) Call() string    { return e.CallID }

// RecordingFinishedEvent reports completion of a call recording.
type RecordingFinishedEvent struct {
	CallID      string `json:"callId"`
	Timestamp   string `json:"timestamp"`
	RecordingID string `json:"recordingId,omitempty"`
}

func (*RecordingFinishedEvent) EventType() string { return EventRecordingFinished }
func (e *RecordingFinishedEvent) Call() string    { return e.CallID }

// AudioCaptureEvent reports capture-stream status for a call
// (call.audio_capture_started/stopped/error).
type AudioCaptureEvent struct {
	Type      string `json:"type"`
	CallID    string `json:"callId"`
	Timestamp string `json:"timestamp"`
	Err       string `json:"error,omitempty"`
}

func (e *AudioCaptureEvent) EventType() string { return e.Type }
func (e *AudioCaptureEvent) Call() string      { return e.CallID }

// AudioFrameEvent marks a raw audio frame. The dispatcher drops these
// entirely; the payload is never decoded.
type AudioFrameEvent struct {
	CallID    string `json:"callId"`
	Timestamp string `json:"timestamp"`
}

func (*AudioFrameEvent) EventType() string { return EventAudioFrame }
func (e *AudioFrameEvent) Call() string    { return e.CallID }

// UnknownEvent preserves frames whose discriminator this package does not
// recognize. They still flow to external subscribers untouched.
type UnknownEvent struct {
	Type   string
	CallID string
	Raw    json.RawMessage
}

func (e *UnknownEvent) EventType() string { return e.Type }
func (e *UnknownEvent) Call() string      { return e.CallID }

// wireEvent is the superset of fields the bridge puts on event frames.
// Transcription fields may arrive either at the top level or nested under
// "data" depending on the asterisk-api version.
type wireEvent struct {
	Type         string  `json:"type"`
	CallID       string  `json:"callId"`
	Timestamp    string  `json:"timestamp"`
	State        string  `json:"state"`
	ChannelID    string  `json:"channelId"`
	CallerNumber string  `json:"callerNumber"`
	CalleeNumber string  `json:"calleeNumber"`
	Cause        string  `json:"cause"`
	Digit        string  `json:"digit"`
	Voice        string  `json:"voice"`
	Duration     float64 `json:"durationSeconds"`
	Error        string  `json:"error"`
	PlaybackID   string  `json:"playbackId"`
	RecordingID  string  `json:"recordingId"`
	Calls        []Call  `json:"calls"`

	Text      string `json:"text"`
	IsFinal   bool   `json:"is_final"`
	IsPartial bool   `json:"is_partial"`

	Data *struct {
		Text      string `json:"text"`
		IsFinal   bool   `json:"is_final"`
		IsPartial bool   `json:"is_partial"`
	} `json:"data"`
}

// UnmarshalEvent decodes one text frame from the event stream into its union
// member. A frame that is not valid JSON or has no type discriminator is an
// error; the caller logs and drops it without closing the connection.
func UnmarshalEvent(data []byte) (Event, error) {
	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode event frame: %w", err)
	}
	typ := strings.TrimSpace(wire.Type)
	if typ == "" {
		return nil, fmt.Errorf("event frame missing type")
	}

	switch typ {
	case EventSnapshot:
		return &SnapshotEvent{Calls: wire.Calls, Timestamp: wire.Timestamp}, nil
	case EventCallCreated, EventCallReady, EventCallInbound:
		return &CallBeginEvent{
			Type:         typ,
			CallID:       wire.CallID,
			Timestamp:    wire.Timestamp,
			State:        wire.State,
			ChannelID:    wire.ChannelID,
			CallerNumber: wire.CallerNumber,
			CalleeNumber: wire.CalleeNumber,
		}, nil
	case EventCallStateChanged, EventCallAnswered:
		return &CallUpdateEvent{
			Type:      typ,
			CallID:    wire.CallID,
			Timestamp: wire.Timestamp,
			State:     wire.State,
		}, nil
	case EventCallEnded:
		return &CallEndedEvent{CallID: wire.CallID, Timestamp: wire.Timestamp, Cause: wire.Cause}, nil
	case EventTranscription:
		ev := &TranscriptionEvent{
			CallID:    wire.CallID,
			Timestamp: wire.Timestamp,
			Text:      wire.Text,
			IsFinal:   wire.IsFinal,
			IsPartial: wire.IsPartial,
		}
		if wire.Data != nil {
			ev.Text = wire.Data.Text
			ev.IsFinal = wire.Data.IsFinal
			ev.IsPartial = wire.Data.IsPartial
		}
		return ev, nil
	case EventDTMF:
		return &DTMFEvent{CallID: wire.CallID, Timestamp: wire.Timestamp, Digit: wire.Digit}, nil
	case EventSpeakStarted:
		return &SpeakStartedEvent{CallID: wire.CallID, Timestamp: wire.Timestamp, Voice: wire.Voice}, nil
	case EventSpeakFinished:
		return &SpeakFinishedEvent{CallID: wire.CallID, Timestamp: wire.Timestamp, DurationSeconds: wire.Duration}, nil
	case EventSpeakError:
		return &SpeakErrorEvent{CallID: wire.CallID, Timestamp: wire.Timestamp, Err: wire.Error}, nil
	case EventPlaybackStreamStarted, EventPlaybackStreamFinished, EventPlaybackStreamError:
		return &PlaybackStreamEvent{Type: typ, CallID: wire.CallID, Timestamp: wire.Timestamp, Err: wire.Error}, nil
	case EventPlaybackFinished:
		return &PlaybackFinishedEvent{CallID: wire.CallID, Timestamp: wire.Timestamp, PlaybackID: wire.PlaybackID}, nil
	case EventRecordingFinished:
		return &RecordingFinishedEvent{CallID: wire.CallID, Timestamp: wire.Timestamp, RecordingID: wire.RecordingID}, nil
	case EventAudioCaptureStarted, EventAudioCaptureStopped, EventAudioCaptureError:
		return &AudioCaptureEvent{Type: typ, CallID: wire.CallID, Timestamp: wire.Timestamp, Err: wire.Error}, nil
	case EventAudioFrame:
		return &AudioFrameEvent{CallID: wire.CallID, Timestamp: wire.Timestamp}, nil
	default:
		return &UnknownEvent{
			Type:   typ,
			CallID: wire.CallID,
			Raw:    append(json.RawMessage(nil), data...),
		}, nil
	}
}
