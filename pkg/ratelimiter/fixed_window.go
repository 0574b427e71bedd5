package ratelimiter

import (
	"sync"
	"time"
)

// FixedWindowCounter allows a fixed number of requests per time window.
type FixedWindowCounter struct {
	limit  int
	window time.Duration

	mu          sync.Mutex
	count       int
	windowStart time.Time
}

// NewFixedWindowCounter creates a counter with an empty current window.
func NewFixedWindowCounter(limit int, window time.Duration) *FixedWindowCounter {
	return &FixedWindowCounter{
		limit:       limit,
		window:      window,
		windowStart: time.Now(),
	}
}

// Allow resets the window when it has elapsed and counts the request.
func (c *FixedWindowCounter) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.After(c.windowStart.Add(c.window)) {
		c.windowStart = now
		c.count = 0
	}

	if c.count < c.limit {
		c.count++
		return true
	}
	return false
}
