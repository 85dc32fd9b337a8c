package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBurstThenDelay(t *testing.T) {
	clock := time.Unix(1000, 0)
	rl := newRateLimiter(RateLimitConfig{Burst: 3, RefillInterval: 3 * time.Second})
	rl.now = func() time.Time { return clock }
	rl.lastCheck = clock

	for i := 0; i < 3; i++ {
		assert.Zero(t, rl.reserve(), "token %d", i)
	}
	assert.Equal(t, time.Second, rl.reserve())
	assert.Equal(t, 2*time.Second, rl.reserve())

	// Paying off the debt leaves the next caller one interval behind.
	clock = clock.Add(2 * time.Second)
	assert.Equal(t, time.Second, rl.reserve())

	clock = clock.Add(time.Hour)
	for i := 0; i < 3; i++ {
		assert.Zero(t, rl.reserve())
	}
	assert.Equal(t, time.Second, rl.reserve(), "refill must cap at burst")
}

func TestRateLimiterNonPositiveConfig(t *testing.T) {
	clock := time.Unix(1000, 0)
	rl := newRateLimiter(RateLimitConfig{})
	rl.now = func() time.Time { return clock }
	rl.lastCheck = clock

	assert.Zero(t, rl.reserve())
	assert.Equal(t, time.Second, rl.reserve())
}
