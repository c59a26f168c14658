package bucketcache

import (
	"sync"
	"time"
)

// ioErrorController tracks sustained engine I/O failures and disables the
// cache once failures have persisted continuously for tolerance (§4.7).
// A single success resets the window — only an unbroken failure streak
// counts.
type ioErrorController struct {
	mu         sync.Mutex
	tolerance  time.Duration
	firstFail  time.Time
	failing    bool
	disabled   bool
	disabledAt time.Time
}

func newIOErrorController(tolerance time.Duration) *ioErrorController {
	return &ioErrorController{tolerance: tolerance}
}

// RecordSuccess clears any in-progress failure streak.
func (c *ioErrorController) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing = false
}

// RecordFailure records an engine I/O failure and returns true the instant
// the cache should transition to disabled.
func (c *ioErrorController) RecordFailure(now time.Time) (justDisabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disabled {
		return false
	}
	if !c.failing {
		c.failing = true
		c.firstFail = now
		return false
	}
	if now.Sub(c.firstFail) >= c.tolerance {
		c.disabled = true
		c.disabledAt = now
		return true
	}
	return false
}

// Disabled reports whether the cache has been disabled by this controller.
func (c *ioErrorController) Disabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled
}

// Reset clears the disabled state and failure streak, used when a cache is
// explicitly re-enabled after operator intervention.
func (c *ioErrorController) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = false
	c.failing = false
}
