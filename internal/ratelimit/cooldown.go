package ratelimit

import (
	"sync"
	"time"
)

// Cooldown suppresses repeated actions per key within a fixed period.
// Unlike a token bucket it has no refill concept: the first call for a key
// passes and starts the period, every call inside the period is rejected.
// Used for postback buttons, where a double tap would otherwise run the
// same action twice.
type Cooldown struct {
	mu     sync.Mutex
	period time.Duration
	last   map[string]time.Time
	now    func() time.Time // swapped in tests
}

// NewCooldown creates a cooldown tracker. A non-positive period disables it
// (Allow always returns true).
func NewCooldown(period time.Duration) *Cooldown {
	return &Cooldown{
		period: period,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether an action for key may run now, and records the
// attempt when it may. Expired entries are dropped opportunistically so the
// map tracks only keys still inside their period.
func (c *Cooldown) Allow(key string) bool {
	if c.period <= 0 || key == "" {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if t, ok := c.last[key]; ok && now.Sub(t) < c.period {
		return false
	}

	for k, t := range c.last {
		if now.Sub(t) >= c.period {
			delete(c.last, k)
		}
	}

	c.last[key] = now
	return true
}
