package subscription

import "encoding/json"

// Result is one delivery to a subscriber: either the decoded payload bytes
// of a data frame or the error carried by an error frame, never both.
type Result struct {
	Data json.RawMessage
	Err  error
}

// Handler receives the stream of results for one subscription. Exactly one
// of OnComplete or OnFailure is called as the terminal notification; no
// further callbacks follow it. Callbacks for a given subscription are
// invoked sequentially in frame arrival order, off the engine's event loop.
type Handler interface {
	// OnResult is called once per inbound data or error frame.
	OnResult(Result)
	// OnComplete is called when the server completes the subscription.
	OnComplete()
	// OnFailure is called when the connection is lost or the engine gives
	// up reconnecting.
	OnFailure(err error)
}

// ChannelHandler adapts the Handler callbacks onto channels, for callers
// that prefer select loops over callback types.
type ChannelHandler struct {
	results chan Result
	done    chan error
}

// NewChannelHandler creates a ChannelHandler with the given result buffer.
func NewChannelHandler(buffer int) *ChannelHandler {
	return &ChannelHandler{
		results: make(chan Result, buffer),
		done:    make(chan error, 1),
	}
}

// Results returns the stream of per-frame deliveries. It is closed after the
// terminal notification.
func (h *ChannelHandler) Results() <-chan Result {
	return h.results
}

// Done yields the terminal notification: nil for server completion, the
// failure error otherwise.
func (h *ChannelHandler) Done() <-chan error {
	return h.done
}

// OnResult implements Handler.
func (h *ChannelHandler) OnResult(r Result) {
	h.results <- r
}

// OnComplete implements Handler.
func (h *ChannelHandler) OnComplete() {
	h.done <- nil
	close(h.results)
}

// OnFailure implements Handler.
func (h *ChannelHandler) OnFailure(err error) {
	h.done <- err
	close(h.results)
}
