// Package autograph is a client-side engine for GraphQL subscriptions over
// the graphql-ws WebSocket protocol.
//
// A Client multiplexes any number of subscriptions over one persistent
// connection. Subscription identity is derived deterministically from the
// operation name and variables, so the same logical subscription always
// correlates to the same wire ID. Inbound data, error, and complete frames
// are routed to exactly the handler registered under their ID; frames that
// cannot be attributed are counted and dropped, never broadcast.
//
// The engine serializes all state through a single event loop goroutine:
// caller operations and transport events enter the loop as work items, so
// the connection state machine, the subscription registry, and the
// reconnect budget need no locking. Handler callbacks run off the loop on
// per-subscription mailboxes, preserving arrival order without ever
// blocking frame processing.
//
// When the transport suggests a retry (for example a server restart close
// code), the client cycles the connection internally: the registry is kept,
// and every start frame is replayed byte for byte after the new handshake.
// Attempts are bounded by a per-episode budget and paced by exponential
// backoff; when the budget is exhausted every subscriber is failed exactly
// once and the engine resets, ready for fresh use.
package autograph
