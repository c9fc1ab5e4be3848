package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, 10*time.Second)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(11 * time.Second)
	assert.True(t, rl.Allow("a"))

	rl.Forget("a")
	assert.True(t, rl.Allow("a"))
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Second)
	for range 100 {
		assert.True(t, rl.Allow("a"))
	}
}
