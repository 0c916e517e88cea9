package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterDisabled(t *testing.T) {
	rl := newRateLimiter(0, time.Second)
	assert.Nil(t, rl)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.allow())
	}
}

func TestRateLimiterBurstAndRefill(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	rl := newRateLimiter(3, 3*time.Second)
	rl.now = func() time.Time { return clock }
	rl.lastCheck = clock

	assert.True(t, rl.allow())
	assert.True(t, rl.allow())
	assert.True(t, rl.allow())
	assert.False(t, rl.allow(), "burst exhausted")

	clock = clock.Add(time.Second)
	assert.True(t, rl.allow(), "one token refilled")
	assert.False(t, rl.allow())

	clock = clock.Add(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow())
	}
	assert.False(t, rl.allow(), "refill is capped at capacity")
}
