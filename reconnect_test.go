package autograph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconnectBudgetLifecycle(t *testing.T) {
	b := newReconnectBudget(3)

	assert.True(t, b.shouldRetry())
	assert.Equal(t, 0, b.consumed())

	b.consumeAttempt()
	b.consumeAttempt()
	assert.True(t, b.shouldRetry())
	assert.Equal(t, 2, b.consumed())

	b.consumeAttempt()
	assert.False(t, b.shouldRetry())
	assert.Equal(t, 3, b.consumed())

	// Never goes negative
	b.consumeAttempt()
	assert.Equal(t, 3, b.consumed())

	b.reset()
	assert.True(t, b.shouldRetry())
	assert.Equal(t, 0, b.consumed())
}

func TestReconnectBudgetDefaultsWhenNonPositive(t *testing.T) {
	for _, budget := range []int{0, -1} {
		b := newReconnectBudget(budget)
		assert.Equal(t, DefaultReconnectBudget, b.budget)
		assert.True(t, b.shouldRetry())
	}
}
