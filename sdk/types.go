package pbxlink

// Responses of the asterisk-api REST surface.

// HealthResponse reports bridge service and ARI connectivity.
type HealthResponse struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime,omitempty"`
	ARI    *struct {
		Connected bool `json:"connected"`
	} `json:"ari,omitempty"`
}

// OriginateResponse is returned when a new outbound call is placed.
type OriginateResponse struct {
	CallID  string `json:"callId"`
	Channel string `json:"channel"`
	Status  string `json:"status"`
}

// PlayMediaResponse is returned when media playback starts.
type PlayMediaResponse struct {
	PlaybackID string `json:"playbackId"`
	Status     string `json:"status"`
}

// RecordingOptions configures a call recording.
type RecordingOptions struct {
	Format      string `json:"format,omitempty"`
	MaxDuration int    `json:"maxDuration,omitempty"`
	Beep        bool   `json:"beep,omitempty"`
}

// RecordingResponse is returned when a recording starts.
type RecordingResponse struct {
	RecordingID string `json:"recordingId"`
	Status      string `json:"status"`
	Format      string `json:"format,omitempty"`
}

// AudioStreamResponse is returned by the audio capture start/stop endpoints.
type AudioStreamResponse struct {
	CallID string `json:"callId"`
	Status string `json:"status"`
}

// HangupResponse is returned when a call is hung up.
type HangupResponse struct {
	CallID string `json:"callId"`
	Status string `json:"status"`
}

// DTMFResponse is returned after sending DTMF tones.
type DTMFResponse struct {
	CallID string `json:"callId"`
	Digits string `json:"digits"`
	Status string `json:"status"`
}

// SpeakOptions selects voice and language for server-side speech.
type SpeakOptions struct {
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`
}

// SpeakResponse is returned once server-side playback of the spoken text has
// completed; the endpoint blocks for the duration of playback.
type SpeakResponse struct {
	CallID          string  `json:"callId"`
	Status          string  `json:"status"`
	Voice           string  `json:"voice,omitempty"`
	Language        string  `json:"language,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}
