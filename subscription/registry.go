package subscription

import (
	"sort"
	"sync"
)

// StartFrame pairs a subscription ID with its serialized start frame, for
// replay after a reconnect.
type StartFrame struct {
	ID    string
	Frame []byte
}

// entry is one active subscription: its handler, the start frame bytes to
// replay on reconnect, and the mailbox serializing deliveries to the handler.
type entry struct {
	handler Handler
	frame   []byte
	mail    *mailbox
}

// Registry owns the mapping of subscription ID to handler and replayable
// start frame. It is not internally synchronized: all mutation must happen
// on the client's single event loop. Handler callbacks are dispatched
// through per-entry mailboxes, so they run off the loop but stay in
// per-subscription order.
type Registry struct {
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register records a subscription. Registering an ID that is already present
// replaces the previous handler (last subscribe wins); the displaced
// handler's mailbox is drained and closed without a terminal callback.
func (r *Registry) Register(id string, h Handler, frame []byte) {
	if prev, ok := r.entries[id]; ok {
		prev.mail.close()
	}
	r.entries[id] = &entry{
		handler: h,
		frame:   frame,
		mail:    newMailbox(),
	}
}

// Lookup returns the handler registered under id, if any.
func (r *Registry) Lookup(id string) (Handler, bool) {
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.handler, true
}

// Len returns the number of active subscriptions.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Dispatch delivers one result to the subscriber registered under id,
// in arrival order, without blocking the caller. It reports whether a
// subscriber was found.
func (r *Registry) Dispatch(id string, result Result) bool {
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	h := e.handler
	e.mail.post(func() { h.OnResult(result) })
	return true
}

// Complete notifies the subscriber of normal server-side termination and
// removes its entry. It reports whether the ID was registered.
func (r *Registry) Complete(id string) bool {
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	h := e.handler
	e.mail.post(func() { h.OnComplete() })
	e.mail.close()
	delete(r.entries, id)
	return true
}

// Remove drops the entry for id without notifying its handler. Used for
// caller-initiated unsubscribe, where the caller already knows the outcome.
func (r *Registry) Remove(id string) bool {
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.mail.close()
	delete(r.entries, id)
	return true
}

// StartFrames returns every registered (id, start frame) pair in stable ID
// order, for resubscription replay.
func (r *Registry) StartFrames() []StartFrame {
	frames := make([]StartFrame, 0, len(r.entries))
	for id, e := range r.entries {
		frames = append(frames, StartFrame{ID: id, Frame: e.frame})
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].ID < frames[j].ID })
	return frames
}

// Clear notifies every remaining subscriber of a terminal failure and
// discards all entries, so no caller is left waiting after a connection
// reset. It returns the number of subscribers notified.
func (r *Registry) Clear(err error) int {
	notified := 0
	for id, e := range r.entries {
		h := e.handler
		e.mail.post(func() { h.OnFailure(err) })
		e.mail.close()
		delete(r.entries, id)
		notified++
	}
	return notified
}

// mailbox is an unbounded FIFO executing posted callbacks on a dedicated
// goroutine. Posting never blocks, preserving the engine loop's liveness;
// execution order matches post order, preserving per-subscription delivery
// order. After close, pending callbacks still drain before the goroutine
// exits.
type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
}

func newMailbox() *mailbox {
	m := &mailbox{}
	m.cond = sync.NewCond(&m.mu)
	go m.run()
	return m
}

// post enqueues fn for execution. It reports false if the mailbox is closed.
func (m *mailbox) post(fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.queue = append(m.queue, fn)
	m.cond.Signal()
	return true
}

// close stops intake. Already-queued callbacks still run.
func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.cond.Signal()
	m.mu.Unlock()
}

func (m *mailbox) run() {
	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.closed {
			m.cond.Wait()
		}
		if len(m.queue) == 0 && m.closed {
			m.mu.Unlock()
			return
		}
		fn := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		fn()
	}
}
