// Package transport defines the duplex message transport consumed by the
// subscription engine, and provides a gorilla/websocket implementation plus
// an in-memory Fake for tests.
//
// A transport delivers its lifecycle as a single stream of tagged events.
// The engine is the sole consumer of that stream, which keeps all state
// transitions serialized in one place.
package transport

import "context"

// EventKind tags a transport event.
type EventKind int

const (
	// Connected signals the socket is open and ready for frames.
	Connected EventKind = iota
	// Disconnected signals the socket is gone, for any reason.
	Disconnected
	// Text carries one inbound text frame.
	Text
	// Binary carries one inbound binary frame.
	Binary
	// Error carries a transport-level error that did not by itself close
	// the connection.
	Error
	// ReconnectSuggested signals the peer or transport recommends a
	// reconnect cycle.
	ReconnectSuggested
	// Cancelled, Ping, Pong and ViabilityChanged are delivered for
	// completeness; the engine ignores them.
	Cancelled
	Ping
	Pong
	ViabilityChanged
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Text:
		return "text"
	case Binary:
		return "binary"
	case Error:
		return "error"
	case ReconnectSuggested:
		return "reconnect_suggested"
	case Cancelled:
		return "cancelled"
	case Ping:
		return "ping"
	case Pong:
		return "pong"
	case ViabilityChanged:
		return "viability_changed"
	default:
		return "unknown"
	}
}

// Event is one tagged transport notification. Payload is set for Text and
// Binary, Err for Error, Retry for ReconnectSuggested, Viable for
// ViabilityChanged.
type Event struct {
	Kind    EventKind
	Payload []byte
	Err     error
	Retry   bool
	Viable  bool
}

// Transport is a single logical duplex connection delivering discrete
// messages. Connect and Write are asynchronous with respect to the network:
// outcomes surface on the event stream, never as blocking calls.
type Transport interface {
	// Connect initiates a connection attempt. The result arrives as a
	// Connected or Error event.
	Connect(ctx context.Context) error
	// Disconnect closes the connection if open. A Disconnected event
	// follows once the socket is down.
	Disconnect() error
	// Write enqueues one outbound frame. It fails fast when no
	// connection is established.
	Write(data []byte) error
	// Events returns the transport's event stream. The stream is owned
	// by the transport and shared across reconnects.
	Events() <-chan Event
}
