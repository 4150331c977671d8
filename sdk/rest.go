package pbxlink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pbxlink-go/pbxlink/pkg/core"
	"github.com/pbxlink-go/pbxlink/pkg/core/types"
)

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.baseURL, "/") + path
}

// doJSON performs one JSON request against the bridge. Non-2xx responses
// become *core.Error carrying the status and remote body text; failures to
// reach the service at all become *TransportError.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: method, URL: c.endpoint(path), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: method, URL: c.endpoint(path), Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return parseBridgeError(method, path, resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// parseBridgeError extracts the error message the bridge put in the response
// body; asterisk-api answers either {"error": "..."} or plain text.
func parseBridgeError(method, path string, status int, body []byte) *core.Error {
	msg := strings.TrimSpace(string(body))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			msg = payload.Error
		} else if payload.Message != "" {
			msg = payload.Message
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return core.FromStatus(status, fmt.Sprintf("%s %s failed: %s", method, path, msg))
}

func callPath(callID string, suffix string) string {
	return "/calls/" + url.PathEscape(callID) + suffix
}

// Health checks bridge service and ARI connectivity.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Originate places a new outbound call to the given SIP endpoint.
// timeoutSeconds <= 0 leaves the dial timeout to the bridge's default.
func (c *Client) Originate(ctx context.Context, endpoint, callerID string, timeoutSeconds int) (*OriginateResponse, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, core.NewInvalidRequestError("endpoint must not be empty")
	}
	body := map[string]any{
		"endpoint": endpoint,
		"callerId": callerID,
	}
	if timeoutSeconds > 0 {
		body["timeout"] = timeoutSeconds
	}
	var out OriginateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/calls", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCall returns the current status of one call.
func (c *Client) GetCall(ctx context.Context, callID string) (*types.Call, error) {
	var out types.Call
	if err := c.doJSON(ctx, http.MethodGet, callPath(callID, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCalls returns all calls the bridge currently tracks.
func (c *Client) ListCalls(ctx context.Context) ([]types.Call, error) {
	var out struct {
		Calls []types.Call `json:"calls"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/calls", nil, &out); err != nil {
		return nil, err
	}
	return out.Calls, nil
}

// PlayMedia plays a media reference (e.g. "sound:hello-world" or a file URI)
// into the call.
func (c *Client) PlayMedia(ctx context.Context, callID, media string) (*PlayMediaResponse, error) {
	var out PlayMediaResponse
	if err := c.doJSON(ctx, http.MethodPost, callPath(callID, "/play"), map[string]string{"media": media}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartRecording begins recording the call.
func (c *Client) StartRecording(ctx context.Context, callID string, opts RecordingOptions) (*RecordingResponse, error) {
	var out RecordingResponse
	if err := c.doJSON(ctx, http.MethodPost, callPath(callID, "/record"), opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartAudioStream asks the bridge to start capturing call audio for speech
// recognition.
func (c *Client) StartAudioStream(ctx context.Context, callID string) (*AudioStreamResponse, error) {
	var out AudioStreamResponse
	if err := c.doJSON(ctx, http.MethodPost, callPath(callID, "/audio/start"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StopAudioStream stops audio capture on the call.
func (c *Client) StopAudioStream(ctx context.Context, callID string) (*AudioStreamResponse, error) {
	var out AudioStreamResponse
	if err := c.doJSON(ctx, http.MethodPost, callPath(callID, "/audio/stop"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Hangup ends the call. Hanging up a call the bridge no longer knows about
// surfaces the bridge's not-found error; the client does not pre-check.
func (c *Client) Hangup(ctx context.Context, callID string) (*HangupResponse, error) {
	var out HangupResponse
	if err := c.doJSON(ctx, http.MethodDelete, callPath(callID, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendDTMF sends keypad digits into the call.
func (c *Client) SendDTMF(ctx context.Context, callID, digits string) (*DTMFResponse, error) {
	var out DTMFResponse
	if err := c.doJSON(ctx, http.MethodPost, callPath(callID, "/dtmf"), map[string]string{"dtmf": digits}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Speak synthesizes and plays text on the call server-side. The request
// blocks until playback completes; bound it with a context deadline when the
// text is long.
func (c *Client) Speak(ctx context.Context, callID, text string, opts SpeakOptions) (*SpeakResponse, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.NewInvalidRequestError("text must not be empty")
	}
	body := map[string]any{"text": text}
	if opts.Voice != "" {
		body["voice"] = opts.Voice
	}
	if opts.Language != "" {
		body["language"] = opts.Language
	}
	var out SpeakResponse
	if err := c.doJSON(ctx, http.MethodPost, callPath(callID, "/speak"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
