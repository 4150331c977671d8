// Package pbxlink provides the Go client for the asterisk-api bridge
// service: typed REST call-control methods, the /events WebSocket stream with
// auto-reconnect, and the EventManager that maintains the live view of active
// calls and their conversation state.
package pbxlink

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultBaseURL = "http://localhost:3456"

// Client talks to one asterisk-api bridge service. It owns at most one live
// WebSocket connection to the event stream; REST requests run independently
// and never block event consumption.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	logger         *slog.Logger
	reconnectDelay time.Duration

	// Event stream state. gen invalidates read loops and reconnect timers
	// belonging to sockets that have been replaced or torn down.
	evMu        sync.Mutex
	evConn      *websocket.Conn
	evClosing   bool
	evReconnect *time.Timer
	evGen       uint64
	evConnected bool
}

// NewClient creates a client for the bridge service.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:        defaultBaseURL,
		logger:         slog.Default(),
		reconnectDelay: DefaultReconnectDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = newDefaultHTTPClient()
	}
	return c
}

// BaseURL returns the configured bridge service base URL.
func (c *Client) BaseURL() string { return c.baseURL }
