package autograph

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/DeveloperBeau/AutoGraph/errors"
	"github.com/DeveloperBeau/AutoGraph/metric"
	"github.com/DeveloperBeau/AutoGraph/protocol"
	"github.com/DeveloperBeau/AutoGraph/subscription"
	"github.com/DeveloperBeau/AutoGraph/transport"
)

// ConnectionState is the client's logical connection state.
type ConnectionState int32

const (
	// Disconnected is the initial state and the state after any loss of
	// connection.
	Disconnected ConnectionState = iota
	// Connected means the handshake completed and subscriptions may be
	// sent.
	Connected
)

// String returns the state name for logging.
func (s ConnectionState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// ConnectCallback receives the outcome of the next connect transition. Only
// the most recent caller of Connect or Subscribe is notified; an earlier
// pending callback is displaced, not queued.
type ConnectCallback func(error)

// headerUpdater is implemented by transports whose handshake headers can be
// replaced between connects.
type headerUpdater interface {
	Authenticate(token string, extra http.Header)
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics registers the client's metrics with the given registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(c *Client) { c.metricRegistry = registry }
}

// WithTransport injects a transport, replacing the default WebSocket one.
func WithTransport(tr transport.Transport) Option {
	return func(c *Client) { c.transport = tr }
}

// Client maintains one persistent connection to a subscription server and
// multiplexes any number of subscriptions over it. All state transitions,
// registry mutation, and callback resolution are serialized through a single
// event loop goroutine: transport events and caller operations both enter
// the loop as serialized work items, so no lock covers the engine state.
type Client struct {
	config         Config
	transport      transport.Transport
	logger         *slog.Logger
	metrics        *Metrics
	metricRegistry *metric.Registry

	cmds     chan func()
	done     chan struct{}
	loopDone chan struct{}
	closing  sync.Once

	// stateValue mirrors the loop-owned state for concurrent readers.
	stateValue atomic.Int32

	// Loop-owned state. Touched only by run().
	state          ConnectionState
	registry       *subscription.Registry
	budget         *reconnectBudget
	pendingConnect ConnectCallback
	reconnecting   bool
	userClosed     bool
}

// NewClient validates the configuration and starts the client's event loop.
// The client is Disconnected until Connect or Subscribe is called.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config:   cfg,
		cmds:     make(chan func(), 16),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		registry: subscription.NewRegistry(),
		budget:   newReconnectBudget(cfg.Reconnect.Budget),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "ws-client", "client_id", uuid.NewString())
	c.metrics = newMetrics(c.metricRegistry, "ws-client")

	if c.transport == nil {
		tr, err := transport.NewWebSocket(transport.Config{
			URL:              cfg.URL,
			Origin:           cfg.Origin,
			Token:            cfg.Token,
			Headers:          cfg.Headers,
			HandshakeTimeout: cfg.HandshakeTimeout,
		}, c.logger)
		if err != nil {
			return nil, err
		}
		c.transport = tr
	}

	go c.run()
	return c, nil
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.stateValue.Load())
}

// Close disconnects, fails any remaining subscribers, and stops the event
// loop. The client cannot be reused afterwards.
func (c *Client) Close() error {
	c.closing.Do(func() {
		flushed := make(chan struct{})
		c.do(func() {
			c.userClosed = true
			c.reconnecting = false
			if c.state == Connected {
				c.writeControl(protocol.MsgConnectionTerminate, "")
			}
			_ = c.transport.Disconnect()
			notified := c.registry.Clear(errors.ErrShuttingDown)
			if notified > 0 {
				c.logger.Info("failed remaining subscribers on close", "count", notified)
			}
			c.setState(Disconnected)
			c.resolvePendingConnect(errors.ErrShuttingDown)
			close(flushed)
		})
		select {
		case <-flushed:
		case <-time.After(5 * time.Second):
		}
		close(c.done)
	})
	<-c.loopDone
	return nil
}

// Connect establishes the connection if necessary. cb, when non-nil, is
// invoked with the outcome of the next connect transition; it displaces any
// previously pending callback.
func (c *Client) Connect(cb ConnectCallback) {
	c.do(func() {
		c.userClosed = false
		if c.state == Connected {
			// Idempotent: no socket action, immediate success
			if cb != nil {
				go cb(nil)
			}
			return
		}
		c.setPendingConnect(func(err error) {
			if cb != nil {
				go cb(err)
			}
		})
		c.startConnect()
	})
}

// Subscribe registers interest in the request's subscription and delivers
// every matching inbound frame to handler. If the client is not yet
// connected, the registration is queued behind the next connect transition
// and a connect is triggered. Subscribing twice with the same derived ID
// replaces the previous handler: last subscribe wins.
func (c *Client) Subscribe(req *subscription.Request, handler subscription.Handler) {
	id := req.ID()
	frame, err := req.StartFrame()
	if err != nil {
		// Serialization failure concerns only this caller
		go handler.OnFailure(err)
		return
	}

	c.do(func() {
		if c.state == Connected {
			c.register(id, handler, frame)
			c.writeFrame(frame, protocol.MsgStart)
			return
		}

		c.userClosed = false
		c.setPendingConnect(func(err error) {
			if err != nil {
				go handler.OnFailure(err)
				return
			}
			c.register(id, handler, frame)
			c.writeFrame(frame, protocol.MsgStart)
		})
		c.startConnect()
	})
}

// Unsubscribe withdraws the subscription derived from req. The stop frame
// is best-effort: the registry entry is removed whether or not the write
// succeeds, and the handler receives no further callbacks.
func (c *Client) Unsubscribe(req *subscription.Request) {
	id := req.ID()
	c.do(func() {
		if c.state == Connected {
			c.writeControl(protocol.MsgStop, id)
		}
		if c.registry.Remove(id) {
			c.metrics.setSubscriptions(c.registry.Len())
			c.logger.Debug("unsubscribed", "subscription_id", id)
		}
	})
}

// Disconnect closes the connection. Registry cleanup and subscriber
// notification happen when the transport reports the disconnect; no
// automatic reconnection follows an explicit Disconnect.
func (c *Client) Disconnect() {
	c.do(func() {
		if c.state == Disconnected && !c.reconnecting {
			return
		}
		c.userClosed = true
		c.reconnecting = false
		c.writeControl(protocol.MsgConnectionTerminate, "")
		if err := c.transport.Disconnect(); err != nil {
			c.logger.Warn("transport disconnect failed", "error", err)
		}
	})
}

// Authenticate replaces the bearer token and extra handshake headers used
// by subsequent connects.
func (c *Client) Authenticate(token string, extraHeaders map[string]string) {
	c.do(func() {
		updater, ok := c.transport.(headerUpdater)
		if !ok {
			c.logger.Warn("transport does not support header updates")
			return
		}
		extra := http.Header{}
		for k, v := range extraHeaders {
			extra.Set(k, v)
		}
		updater.Authenticate(token, extra)
		c.logger.Debug("handshake credentials updated")
	})
}

// do enqueues fn on the event loop.
func (c *Client) do(fn func()) {
	select {
	case c.cmds <- fn:
	case <-c.done:
	}
}

// run is the single serialization point: every state transition, registry
// mutation, and callback resolution happens here.
func (c *Client) run() {
	defer close(c.loopDone)
	events := c.transport.Events()

	for {
		select {
		case <-c.done:
			return
		case fn := <-c.cmds:
			fn()
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handleEvent(ev)
		}
	}
}

func (c *Client) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.Connected:
		c.handleConnected()
	case transport.Disconnected:
		c.handleDisconnected()
	case transport.Text:
		c.handleFrame(ev.Payload)
	case transport.Binary:
		c.handleFrame(ev.Payload)
	case transport.Error:
		c.handleError(ev.Err)
	case transport.ReconnectSuggested:
		c.handleReconnectSuggested(ev.Retry)
	default:
		// cancelled, ping, pong, viability: not meaningful here
		c.logger.Debug("ignoring transport event", "kind", ev.Kind.String())
	}
}

// handleConnected performs the handshake: connection_init first, then the
// replay of every registered start frame so server-side subscription state
// survives the reconnect.
func (c *Client) handleConnected() {
	c.writeControl(protocol.MsgConnectionInit, "")

	frames := c.registry.StartFrames()
	for _, sf := range frames {
		c.writeFrame(sf.Frame, protocol.MsgStart)
	}
	if len(frames) > 0 {
		c.logger.Info("replayed subscriptions after connect", "count", len(frames))
	}

	c.setState(Connected)
	c.reconnecting = false
	c.budget.reset()
	c.resolvePendingConnect(nil)
}

// handleDisconnected either continues an in-flight reconnect cycle or, for
// a terminal disconnect, clears the registry so no subscriber is left
// waiting.
func (c *Client) handleDisconnected() {
	c.setState(Disconnected)

	if c.reconnecting && !c.userClosed {
		c.scheduleReconnect()
		return
	}

	notified := c.registry.Clear(errors.ErrConnectionLost)
	c.metrics.setSubscriptions(0)
	if notified > 0 {
		c.logger.Warn("connection lost, failed active subscriptions", "count", notified)
	}
	c.budget.reset()
	c.resolvePendingConnect(errors.ErrConnectionLost)
	c.userClosed = false
}

// handleError surfaces a transport error to the pending connect caller. It
// does not change connection state: if the transport also lost the
// connection, a separate disconnected event performs the cleanup. During a
// reconnect cycle a dial error instead counts against the budget.
func (c *Client) handleError(err error) {
	c.metrics.trackError("transport_error")

	if c.reconnecting && !c.userClosed {
		c.logger.Warn("reconnect attempt failed", "error", err)
		c.continueReconnect()
		return
	}

	c.logger.Warn("transport error", "error", err)
	c.resolvePendingConnect(err)
}

// handleReconnectSuggested starts an internal disconnect+reconnect cycle
// when budget remains, and otherwise treats the suggestion as a terminal
// disconnect.
func (c *Client) handleReconnectSuggested(retry bool) {
	if !retry || c.userClosed {
		return
	}
	if !c.config.Reconnect.Enabled {
		c.logger.Info("reconnect suggested but disabled")
		return
	}

	if !c.budget.shouldRetry() {
		c.giveUpReconnect()
		return
	}

	c.budget.consumeAttempt()
	c.metrics.reconnectAttempt()
	c.reconnecting = true
	c.logger.Info("reconnect suggested, cycling connection",
		"attempt", c.budget.consumed(), "budget", c.config.Reconnect.Budget)

	// The ensuing disconnected event drives the actual reconnect
	if err := c.transport.Disconnect(); err != nil {
		c.logger.Warn("transport disconnect failed", "error", err)
	}
}

// continueReconnect consumes another attempt after a failed dial, or gives
// up when the budget is exhausted.
func (c *Client) continueReconnect() {
	if !c.budget.shouldRetry() {
		c.giveUpReconnect()
		return
	}
	c.budget.consumeAttempt()
	c.metrics.reconnectAttempt()
	c.scheduleReconnect()
}

// scheduleReconnect arms the next connect attempt after the backoff delay
// for the current episode.
func (c *Client) scheduleReconnect() {
	attempt := c.budget.consumed()
	delay := c.config.Reconnect.Backoff.DelayFor(attempt - 1)
	c.logger.Info("scheduling reconnect", "attempt", attempt, "delay", delay)

	time.AfterFunc(delay, func() {
		c.do(func() {
			if !c.reconnecting || c.userClosed {
				return
			}
			c.startConnect()
		})
	})
}

// giveUpReconnect is the terminal path for an exhausted budget: every
// subscriber is failed individually and the engine is fully reset, so a
// fresh Subscribe or Connect can start over.
func (c *Client) giveUpReconnect() {
	c.reconnecting = false
	c.setState(Disconnected)

	notified := c.registry.Clear(errors.ErrMaxRetriesExceeded)
	c.metrics.setSubscriptions(0)
	c.logger.Error("reconnect budget exhausted",
		"budget", c.config.Reconnect.Budget, "failed_subscriptions", notified)

	c.budget.reset()
	c.resolvePendingConnect(errors.ErrMaxRetriesExceeded)
	_ = c.transport.Disconnect()
}

// handleFrame parses one inbound frame and routes it to exactly the
// subscriber registered under its ID.
func (c *Client) handleFrame(payload []byte) {
	frame, err := protocol.Parse(payload)
	if err != nil {
		c.metrics.trackError("parse_error")
		// A partially decoded frame still names its subscription, so
		// the failure can be reported to the one caller it concerns.
		if frame != nil && frame.HasID() {
			if c.registry.Dispatch(frame.ID, subscription.Result{Err: err}) {
				return
			}
		}
		c.logger.Warn("dropping unparseable frame", "error", err)
		return
	}

	c.metrics.frameReceived(frame.Type)

	switch frame.Type {
	case protocol.MsgData:
		c.routeResult(frame, subscription.Result{Data: frame.Data})

	case protocol.MsgError:
		c.routeResult(frame, subscription.Result{Err: subscription.ErrorFromPayload(frame.Data)})

	case protocol.MsgComplete:
		if !frame.HasID() || !c.registry.Complete(frame.ID) {
			c.dropFrame(frame, "unknown_id")
			return
		}
		c.metrics.setSubscriptions(c.registry.Len())
		c.logger.Debug("subscription completed by server", "subscription_id", frame.ID)

	case protocol.MsgConnectionAck:
		c.logger.Debug("connection acknowledged")

	case protocol.MsgConnectionKeepAlive:
		// Server heartbeat, counted via frameReceived

	case protocol.MsgConnectionError:
		c.metrics.trackError("connection_error")
		c.logger.Warn("server reported connection error", "payload", string(frame.Payload))

	default:
		c.dropFrame(frame, "unknown_type")
	}
}

// routeResult delivers a data or error result to the single subscriber the
// frame belongs to. Frames that cannot be attributed are dropped, never
// broadcast.
func (c *Client) routeResult(frame *protocol.Frame, result subscription.Result) {
	if !frame.HasID() {
		c.dropFrame(frame, "missing_id")
		return
	}
	if !c.registry.Dispatch(frame.ID, result) {
		c.dropFrame(frame, "unknown_id")
	}
}

func (c *Client) dropFrame(frame *protocol.Frame, reason string) {
	c.metrics.frameDropped(reason)
	c.logger.Debug("dropping frame",
		"type", frame.Type, "subscription_id", frame.ID, "reason", reason)
}

// register records a subscription and updates the active gauge.
func (c *Client) register(id string, handler subscription.Handler, frame []byte) {
	if _, exists := c.registry.Lookup(id); exists {
		c.logger.Debug("replacing existing subscription handler", "subscription_id", id)
	}
	c.registry.Register(id, handler, frame)
	c.metrics.setSubscriptions(c.registry.Len())
}

// startConnect asks the transport for a connection. The outcome arrives as
// a connected or error event.
func (c *Client) startConnect() {
	if err := c.transport.Connect(context.Background()); err != nil {
		c.resolvePendingConnect(err)
	}
}

// writeControl serializes and writes a control frame.
func (c *Client) writeControl(kind, id string) {
	frame, err := protocol.EncodeControl(kind, id)
	if err != nil {
		c.metrics.trackError("serialize_error")
		c.logger.Error("control frame serialization failed", "type", kind, "error", err)
		return
	}
	c.writeFrame(frame, kind)
}

// writeFrame writes pre-serialized frame bytes. Write failures are logged
// and counted; the connection state machine recovers via transport events,
// not via write errors.
func (c *Client) writeFrame(frame []byte, kind string) {
	if err := c.transport.Write(frame); err != nil {
		c.metrics.trackError("write_error")
		c.logger.Warn("frame write failed", "type", kind, "error", err)
		return
	}
	c.metrics.frameSent(kind)
}

// setPendingConnect stores the continuation awaiting the next connect
// transition, displacing any previous one: only the most recent caller is
// notified of the outcome.
func (c *Client) setPendingConnect(cb ConnectCallback) {
	if c.pendingConnect != nil {
		c.logger.Debug("displacing pending connect callback")
	}
	c.pendingConnect = cb
}

// resolvePendingConnect fires and clears the pending connect continuation.
func (c *Client) resolvePendingConnect(err error) {
	if c.pendingConnect == nil {
		return
	}
	cb := c.pendingConnect
	c.pendingConnect = nil
	cb(err)
}

func (c *Client) setState(state ConnectionState) {
	if c.state != state {
		c.logger.Info("connection state changed", "from", c.state.String(), "to", state.String())
	}
	c.state = state
	c.stateValue.Store(int32(state))
	c.metrics.setConnected(state == Connected)
}
