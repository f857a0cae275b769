package appclock

import (
	"sync"
	"time"
)

// Clock is the process-wide simulated time source. Every expiry decision in
// the engine routes through a Clock instance injected at the composition
// root, so tests and the demo time controls can move time deterministically.
type Clock struct {
	mu        sync.RWMutex
	simulated bool
	current   time.Time
	listeners map[int]func(time.Time)
	nextID    int
}

func New() *Clock {
	return &Clock{listeners: map[int]func(time.Time){}}
}

// Now returns the current app time: wall-clock time until the clock has been
// advanced or set, the simulated instant afterwards.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.simulated {
		return c.current
	}
	return time.Now()
}

// Advance moves simulated time forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	if !c.simulated {
		c.simulated = true
		c.current = time.Now()
	}
	c.current = c.current.Add(d)
	now := c.current
	c.mu.Unlock()

	c.notify(now)
}

// AdvanceDays and AdvanceHours mirror the demo time controls.
func (c *Clock) AdvanceDays(days int) { c.Advance(time.Duration(days) * 24 * time.Hour) }

func (c *Clock) AdvanceHours(hours int) { c.Advance(time.Duration(hours) * time.Hour) }

// SetTime pins simulated time to a specific instant.
func (c *Clock) SetTime(t time.Time) {
	c.mu.Lock()
	c.simulated = true
	c.current = t
	c.mu.Unlock()

	c.notify(t)
}

// ResetToRealTime drops the simulation and follows the wall clock again.
func (c *Clock) ResetToRealTime() {
	c.mu.Lock()
	c.simulated = false
	c.current = time.Time{}
	c.mu.Unlock()

	c.notify(time.Now())
}

// IsExpired reports whether endTime has passed: now >= endTime.
func (c *Clock) IsExpired(endTime time.Time) bool {
	return !c.Now().Before(endTime)
}

// Until returns the remaining duration before t, never negative.
func (c *Clock) Until(t time.Time) time.Duration {
	d := t.Sub(c.Now())
	if d < 0 {
		return 0
	}
	return d
}

// Subscribe registers a listener called synchronously whenever simulated
// time changes. The returned id cancels the subscription.
func (c *Clock) Subscribe(fn func(time.Time)) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.listeners[c.nextID] = fn
	return c.nextID
}

func (c *Clock) Unsubscribe(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, id)
}

func (c *Clock) notify(now time.Time) {
	c.mu.RLock()
	fns := make([]func(time.Time), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	for _, fn := range fns {
		fn(now)
	}
}
