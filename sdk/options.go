package pbxlink

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets the bridge service base URL (e.g. "http://localhost:3456").
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithAPIKey sets the bearer token attached to REST requests and the
// WebSocket dial.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets the logger for the client.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithReconnectDelay sets the fixed delay between event-stream reconnect
// attempts. The delay is deliberately not exponential: the bridge is a local
// service and a stale registry is resynced by the snapshot on reconnect.
func WithReconnectDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}
