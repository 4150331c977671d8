package pbxlink

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pbxlink-go/pbxlink/pkg/core"
	"github.com/pbxlink-go/pbxlink/pkg/core/types"
)

// DefaultReconnectDelay is the fixed delay between event-stream reconnect
// attempts.
const DefaultReconnectDelay = 3 * time.Second

// EventsOptions configures the event-stream connection. Callbacks are invoked
// from the connection's read goroutine (or a reconnect timer goroutine) and
// should hand heavy work off rather than block the stream.
type EventsOptions struct {
	// OnConnect fires each time a socket opens, including reconnects.
	OnConnect func()
	// OnDisconnect fires with the close code and reason each time the socket
	// closes, whether remotely or via DisconnectEvents.
	OnDisconnect func(code int, reason string)
	// OnError receives dial failures and malformed frames. Neither closes the
	// connection.
	OnError func(err error)
	// OnSnapshot receives the authoritative active-call list the bridge sends
	// on every (re)connect.
	OnSnapshot func(snapshot *types.SnapshotEvent)
	// OnEvent receives every other decoded event.
	OnEvent func(event types.Event)

	// DisableAutoReconnect turns off the fixed-delay reconnect after a remote
	// close; the zero value keeps reconnection on.
	DisableAutoReconnect bool
	// ReconnectDelay overrides the fixed reconnect delay; zero means
	// DefaultReconnectDelay (or the client's WithReconnectDelay setting).
	ReconnectDelay time.Duration
}

// ConnectEvents opens the WebSocket to the bridge's /events endpoint. A
// client holds at most one live socket: connecting while already connected
// tears the previous socket down first (logged as a warning). A dial failure
// is returned to the caller, but unless auto-reconnect is disabled a
// reconnect attempt is still scheduled, mirroring the retry behavior of a
// remotely closed connection.
func (c *Client) ConnectEvents(opts EventsOptions) error {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = c.reconnectDelay
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}

	c.evMu.Lock()
	c.evClosing = false
	if c.evReconnect != nil {
		c.evReconnect.Stop()
		c.evReconnect = nil
	}
	if c.evConn != nil {
		c.logger.Warn("event stream already connected, replacing socket")
		old := c.evConn
		c.evConn = nil
		c.evConnected = false
		c.evGen++
		c.evMu.Unlock()
		_ = old.Close()
	} else {
		c.evMu.Unlock()
	}

	return c.dialEvents(opts)
}

// DisconnectEvents closes the event stream deliberately: the reconnect timer
// is cancelled, reconnection is suppressed, and the socket is closed with a
// normal-closure code. Idempotent.
func (c *Client) DisconnectEvents() {
	c.evMu.Lock()
	c.evClosing = true
	if c.evReconnect != nil {
		c.evReconnect.Stop()
		c.evReconnect = nil
	}
	conn := c.evConn
	c.evConn = nil
	c.evConnected = false
	c.evMu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		_ = conn.Close()
	}
}

// IsEventsConnected reports the literal open state of the current socket; it
// says nothing about whether a snapshot has arrived yet.
func (c *Client) IsEventsConnected() bool {
	c.evMu.Lock()
	defer c.evMu.Unlock()
	return c.evConnected
}

// eventsEndpoint derives the WebSocket URL from the REST base URL by scheme
// substitution.
func (c *Client) eventsEndpoint() (string, error) {
	u, err := url.Parse(strings.TrimRight(c.baseURL, "/") + "/events")
	if err != nil {
		return "", core.NewInvalidRequestError("invalid bridge base URL")
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already a websocket scheme
	default:
		return "", core.NewInvalidRequestError("bridge base URL must use http(s) or ws(s)")
	}
	return u.String(), nil
}

func (c *Client) dialEvents(opts EventsOptions) error {
	wsURL, err := c.eventsEndpoint()
	if err != nil {
		return err
	}

	header := make(http.Header)
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		terr := &TransportError{Op: http.MethodGet, URL: wsURL, Err: err}
		if resp != nil {
			terr.Err = fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		c.logger.Warn("event stream dial failed", "url", wsURL, "error", err)
		if opts.OnError != nil {
			opts.OnError(terr)
		}
		if !opts.DisableAutoReconnect {
			c.scheduleReconnect(opts)
		}
		return terr
	}

	c.evMu.Lock()
	if c.evClosing {
		// DisconnectEvents raced the dial; honor the caller's intent.
		c.evMu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.evConn = conn
	c.evConnected = true
	c.evGen++
	gen := c.evGen
	c.evMu.Unlock()

	c.logger.Info("event stream connected", "url", wsURL)
	if opts.OnConnect != nil {
		opts.OnConnect()
	}

	go c.eventsReadLoop(conn, gen, opts)
	return nil
}

func (c *Client) eventsReadLoop(conn *websocket.Conn, gen uint64, opts EventsOptions) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			code, reason := closeCodeAndReason(err)
			c.handleEventsClosed(gen, code, reason, opts)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		event, decodeErr := types.UnmarshalEvent(data)
		if decodeErr != nil {
			// Malformed frames are dropped; the connection stays open.
			c.logger.Warn("dropping malformed event frame", "error", decodeErr)
			if opts.OnError != nil {
				opts.OnError(decodeErr)
			}
			continue
		}

		if snapshot, ok := event.(*types.SnapshotEvent); ok {
			if opts.OnSnapshot != nil {
				opts.OnSnapshot(snapshot)
			}
			continue
		}
		if opts.OnEvent != nil {
			opts.OnEvent(event)
		}
	}
}

func (c *Client) handleEventsClosed(gen uint64, code int, reason string, opts EventsOptions) {
	c.evMu.Lock()
	if gen != c.evGen {
		// A newer socket replaced this one; nothing to report.
		c.evMu.Unlock()
		return
	}
	c.evConn = nil
	c.evConnected = false
	closing := c.evClosing
	c.evMu.Unlock()

	c.logger.Warn("event stream disconnected", "code", code, "reason", reason)
	if opts.OnDisconnect != nil {
		opts.OnDisconnect(code, reason)
	}

	if closing || opts.DisableAutoReconnect {
		return
	}
	c.scheduleReconnect(opts)
}

// scheduleReconnect arms at most one pending reconnect attempt.
func (c *Client) scheduleReconnect(opts EventsOptions) {
	c.evMu.Lock()
	defer c.evMu.Unlock()
	if c.evClosing || c.evReconnect != nil {
		return
	}
	c.evReconnect = time.AfterFunc(opts.ReconnectDelay, func() {
		c.evMu.Lock()
		c.evReconnect = nil
		closing := c.evClosing
		c.evMu.Unlock()
		if closing {
			return
		}
		c.logger.Info("reconnecting event stream")
		if err := c.dialEvents(opts); err != nil {
			c.logger.Warn("event stream reconnect failed", "error", err)
		}
	})
}

func closeCodeAndReason(err error) (int, string) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code, closeErr.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}
