package transport

import (
	"context"
	"net/http"
	"sync"

	"github.com/DeveloperBeau/AutoGraph/errors"
)

// Fake is a scripted in-memory Transport for exercising the engine without
// a network. Connect and Disconnect synthesize the matching events; tests
// push server behavior through Emit.
type Fake struct {
	mu              sync.Mutex
	events          chan Event
	writes          [][]byte
	connected       bool
	manual          bool
	connectErr      error
	writeErr        error
	connectCalls    int
	disconnectCalls int
	token           string
	extraHeaders    http.Header
}

var _ Transport = (*Fake)(nil)

// NewFake creates a Fake transport with a generously buffered event stream.
func NewFake() *Fake {
	return &Fake{events: make(chan Event, 64)}
}

// SetConnectError scripts dial failures: while set, Connect emits an Error
// event instead of Connected.
func (f *Fake) SetConnectError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

// SetManual suppresses the automatic Connected event: Connect only records
// the call, and the test scripts the outcome through Emit.
func (f *Fake) SetManual(manual bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manual = manual
}

// SetWriteError scripts write failures.
func (f *Fake) SetWriteError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// Connect implements Transport.
func (f *Fake) Connect(_ context.Context) error {
	f.mu.Lock()
	f.connectCalls++
	manual := f.manual
	err := f.connectErr
	if err == nil {
		f.connected = true
	}
	f.mu.Unlock()

	if manual {
		return nil
	}
	if err != nil {
		f.events <- Event{Kind: Error, Err: err}
		return nil
	}
	f.events <- Event{Kind: Connected}
	return nil
}

// Disconnect implements Transport.
func (f *Fake) Disconnect() error {
	f.mu.Lock()
	f.disconnectCalls++
	wasConnected := f.connected
	f.connected = false
	f.mu.Unlock()

	if wasConnected {
		f.events <- Event{Kind: Disconnected}
	}
	return nil
}

// Drop simulates the server severing the connection.
func (f *Fake) Drop() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.events <- Event{Kind: Disconnected}
}

// Write implements Transport, recording the frame.
func (f *Fake) Write(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return errors.WrapTransient(errors.ErrNotConnected, "transport", "Write", "enqueue frame")
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	f.writes = append(f.writes, frame)
	return nil
}

// Events implements Transport.
func (f *Fake) Events() <-chan Event {
	return f.events
}

// Emit pushes a scripted event, e.g. an inbound server frame.
func (f *Fake) Emit(ev Event) {
	f.events <- ev
}

// EmitText pushes an inbound text frame.
func (f *Fake) EmitText(payload string) {
	f.events <- Event{Kind: Text, Payload: []byte(payload)}
}

// Writes returns a snapshot of every frame written so far.
func (f *Fake) Writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

// ConnectCalls returns how many times Connect was invoked.
func (f *Fake) ConnectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

// DisconnectCalls returns how many times Disconnect was invoked.
func (f *Fake) DisconnectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnectCalls
}

// Authenticate records replacement handshake credentials.
func (f *Fake) Authenticate(token string, extra http.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
	f.extraHeaders = extra
}

// Credentials returns the most recently recorded token and extra headers.
func (f *Fake) Credentials() (string, http.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.extraHeaders
}
