package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/DeveloperBeau/AutoGraph/errors"
	"github.com/DeveloperBeau/AutoGraph/protocol"
)

const (
	defaultHandshakeTimeout = 45 * time.Second
	defaultEventBuffer      = 32
	writeQueueSize          = 64
)

// Config holds WebSocket transport configuration.
type Config struct {
	// URL is the server endpoint (ws, wss, http or https scheme).
	URL string `json:"url" yaml:"url"`
	// Origin overrides the Origin handshake header. Defaults to the
	// server base URL.
	Origin string `json:"origin,omitempty" yaml:"origin,omitempty"`
	// Token, when set, is sent as an Authorization: Bearer header.
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
	// Headers are extra handshake headers.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// HandshakeTimeout bounds the dial.
	HandshakeTimeout time.Duration `json:"handshake_timeout" yaml:"handshake_timeout"`
	// EventBuffer sizes the event stream channel.
	EventBuffer int `json:"event_buffer" yaml:"event_buffer"`
}

// WebSocket implements Transport over a gorilla/websocket connection. The
// handshake announces the graphql-ws sub-protocol and carries Origin and
// optional bearer authorization headers.
type WebSocket struct {
	dialer *websocket.Dialer
	logger *slog.Logger
	events chan Event

	mu      sync.Mutex
	url     string
	origin  string
	headers http.Header
	sess    *session
	dialing bool
}

var _ Transport = (*WebSocket)(nil)

// NewWebSocket builds a WebSocket transport. The URL must parse and carry a
// host; http/https schemes are rewritten to ws/wss.
func NewWebSocket(cfg Config, logger *slog.Logger) (*WebSocket, error) {
	endpoint, origin, err := resolveEndpoint(cfg.URL, cfg.Origin)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}
	handshakeTimeout := cfg.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}
	eventBuffer := cfg.EventBuffer
	if eventBuffer <= 0 {
		eventBuffer = defaultEventBuffer
	}

	headers := http.Header{}
	headers.Set("Origin", origin)
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}
	if cfg.Token != "" {
		headers.Set("Authorization", "Bearer "+cfg.Token)
	}

	return &WebSocket{
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			Subprotocols:     []string{protocol.SubProtocol},
		},
		logger:  logger.With("component", "ws-transport"),
		events:  make(chan Event, eventBuffer),
		url:     endpoint,
		origin:  origin,
		headers: headers,
	}, nil
}

// resolveEndpoint validates the server URL and derives the websocket
// endpoint and Origin header value.
func resolveEndpoint(rawURL, origin string) (string, string, error) {
	if rawURL == "" {
		return "", "", errors.WrapInvalid(errors.ErrConnectionRequestInvalid,
			"transport", "NewWebSocket", "validate empty URL")
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		if err == nil {
			err = fmt.Errorf("%w: missing host in %q", errors.ErrConnectionRequestInvalid, rawURL)
		} else {
			err = fmt.Errorf("%w: %v", errors.ErrConnectionRequestInvalid, err)
		}
		return "", "", errors.WrapInvalid(err, "transport", "NewWebSocket", "parse URL")
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", "", errors.WrapInvalid(
			fmt.Errorf("%w: unsupported scheme %q", errors.ErrConnectionRequestInvalid, u.Scheme),
			"transport", "NewWebSocket", "validate scheme")
	}

	if origin == "" {
		base := *u
		if base.Scheme == "ws" {
			base.Scheme = "http"
		} else {
			base.Scheme = "https"
		}
		base.Path = ""
		base.RawQuery = ""
		origin = base.String()
	}

	return u.String(), origin, nil
}

// Authenticate replaces the bearer token and extra handshake headers used by
// subsequent connects. The current connection, if any, is unaffected.
func (t *WebSocket) Authenticate(token string, extra http.Header) {
	t.mu.Lock()
	defer t.mu.Unlock()

	headers := http.Header{}
	headers.Set("Origin", t.origin)
	for k, vs := range extra {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}
	if token != "" {
		headers.Set("Authorization", "Bearer "+token)
	}
	t.headers = headers
}

// Events returns the transport event stream.
func (t *WebSocket) Events() <-chan Event {
	return t.events
}

// Connect starts an asynchronous dial. The outcome surfaces as a Connected
// or Error event. A Connect while connected or mid-dial is a no-op.
func (t *WebSocket) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.sess != nil || t.dialing {
		t.mu.Unlock()
		return nil
	}
	t.dialing = true
	endpoint := t.url
	headers := t.headers.Clone()
	t.mu.Unlock()

	go t.dial(ctx, endpoint, headers)
	return nil
}

func (t *WebSocket) dial(ctx context.Context, endpoint string, headers http.Header) {
	conn, resp, err := t.dialer.DialContext(ctx, endpoint, headers)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.mu.Lock()
		t.dialing = false
		t.mu.Unlock()
		t.logger.Warn("dial failed", "url", endpoint, "error", err)
		t.events <- Event{Kind: Error, Err: errors.WrapTransient(err, "transport", "Connect", "dial")}
		return
	}

	sess := newSession(conn)

	t.mu.Lock()
	t.dialing = false
	t.sess = sess
	t.mu.Unlock()

	t.events <- Event{Kind: Connected}

	// Either loop exiting, for any reason, tears the session down so the
	// other loop unblocks and the waiter can report the disconnect. A
	// remote close or network drop surfaces as a read error; without the
	// shutdown the writer would wait forever and no Disconnected event
	// would ever reach the engine.
	var group errgroup.Group
	group.Go(func() error {
		defer sess.shutdown()
		return t.readLoop(sess)
	})
	group.Go(func() error {
		defer sess.shutdown()
		return t.writeLoop(sess)
	})
	go func() {
		_ = group.Wait()

		t.mu.Lock()
		if t.sess == sess {
			t.sess = nil
		}
		t.mu.Unlock()

		t.events <- Event{Kind: Disconnected}
	}()
}

// Disconnect closes the current connection. The Disconnected event follows
// once both socket loops have stopped.
func (t *WebSocket) Disconnect() error {
	t.mu.Lock()
	sess := t.sess
	t.mu.Unlock()

	if sess == nil {
		return nil
	}
	sess.shutdown()
	return nil
}

// Write enqueues one text frame for the writer loop.
func (t *WebSocket) Write(data []byte) error {
	t.mu.Lock()
	sess := t.sess
	t.mu.Unlock()

	if sess == nil {
		return errors.WrapTransient(errors.ErrNotConnected, "transport", "Write", "enqueue frame")
	}

	select {
	case sess.outbound <- data:
		return nil
	case <-sess.closed:
		return errors.WrapTransient(errors.ErrConnectionLost, "transport", "Write", "enqueue frame")
	}
}

func (t *WebSocket) readLoop(sess *session) error {
	sess.conn.SetPingHandler(func(appData string) error {
		t.emitIgnorable(Event{Kind: Ping})
		return sess.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})
	sess.conn.SetPongHandler(func(string) error {
		t.emitIgnorable(Event{Kind: Pong})
		return nil
	})

	for {
		kind, payload, err := sess.conn.ReadMessage()
		if err != nil {
			if sess.isClosed() {
				// Locally initiated close, not an error condition
				return nil
			}
			t.classifyReadError(err)
			return err
		}

		switch kind {
		case websocket.TextMessage:
			t.events <- Event{Kind: Text, Payload: payload}
		case websocket.BinaryMessage:
			t.events <- Event{Kind: Binary, Payload: payload}
		}
	}
}

// classifyReadError emits the events implied by a read failure. Close codes
// that invite a retry become a reconnect suggestion; everything else is a
// plain transport error. The Disconnected event is emitted by the session
// waiter either way.
func (t *WebSocket) classifyReadError(err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseServiceRestart, websocket.CloseTryAgainLater:
			t.logger.Info("peer suggested reconnect", "code", closeErr.Code)
			t.events <- Event{Kind: ReconnectSuggested, Retry: true}
			return
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			return
		}
	}
	t.events <- Event{Kind: Error, Err: errors.WrapTransient(err, "transport", "readLoop", "read frame")}
}

func (t *WebSocket) writeLoop(sess *session) error {
	for {
		select {
		case <-sess.closed:
			return nil
		case data := <-sess.outbound:
			if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !sess.isClosed() {
					t.events <- Event{Kind: Error, Err: errors.WrapTransient(err, "transport", "writeLoop", "write frame")}
				}
				return err
			}
		}
	}
}

// emitIgnorable delivers events the engine ignores without ever blocking
// the read loop on them.
func (t *WebSocket) emitIgnorable(ev Event) {
	select {
	case t.events <- ev:
	default:
	}
}

// session is one established connection with its write queue and close
// latch. A fresh session is created per successful dial.
type session struct {
	conn     *websocket.Conn
	outbound chan []byte
	closed   chan struct{}
	once     sync.Once
}

func newSession(conn *websocket.Conn) *session {
	return &session{
		conn:     conn,
		outbound: make(chan []byte, writeQueueSize),
		closed:   make(chan struct{}),
	}
}

func (s *session) shutdown() {
	s.once.Do(func() {
		close(s.closed)
		// Best-effort graceful close; WriteControl is safe to call
		// concurrently with the writer loop.
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		// Unblocks a reader stuck in ReadMessage
		_ = s.conn.Close()
	})
}

func (s *session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
