package autograph

// reconnectBudget bounds automatic reconnect attempts for one failure
// episode. It is owned by the client's event loop; it is never touched
// from any other goroutine.
type reconnectBudget struct {
	budget    int
	remaining int
}

func newReconnectBudget(budget int) *reconnectBudget {
	if budget <= 0 {
		budget = DefaultReconnectBudget
	}
	return &reconnectBudget{budget: budget, remaining: budget}
}

// shouldRetry reports whether another automatic attempt is allowed.
func (b *reconnectBudget) shouldRetry() bool {
	return b.remaining > 0
}

// consumeAttempt spends one attempt. The budget never goes negative.
func (b *reconnectBudget) consumeAttempt() {
	if b.remaining > 0 {
		b.remaining--
	}
}

// consumed returns how many attempts the current episode has spent.
func (b *reconnectBudget) consumed() int {
	return b.budget - b.remaining
}

// reset restores the full budget, ending the current failure episode.
func (b *reconnectBudget) reset() {
	b.remaining = b.budget
}
