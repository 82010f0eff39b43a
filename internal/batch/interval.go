// Package batch coalesces bursts of events into a single flush.
package batch

import (
	"sync"
	"time"
)

// FlushFunc receives the events collected since the previous flush.
type FlushFunc func(events []map[string]any)

// IntervalCollector flushes once the interval has passed since the first
// event of a burst. Events arriving meanwhile join the same flush.
type IntervalCollector struct {
	mu       sync.Mutex
	events   []map[string]any
	interval time.Duration
	timer    *time.Timer
	started  bool
	closed   bool
	onFlush  FlushFunc
}

// NewIntervalCollector creates a collector. A non-positive interval flushes
// every event immediately.
func NewIntervalCollector(interval time.Duration, onFlush FlushFunc) *IntervalCollector {
	return &IntervalCollector{
		interval: interval,
		onFlush:  onFlush,
	}
}

// AddEvent adds an event and starts the interval timer if not already started.
func (c *IntervalCollector) AddEvent(event map[string]any) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.events = append(c.events, event)

	if c.interval <= 0 {
		c.mu.Unlock()
		c.flush()
		return
	}
	if !c.started {
		c.timer = time.AfterFunc(c.interval, c.flush)
		c.started = true
	}
	c.mu.Unlock()
}

// Pending returns the number of events waiting for the next flush.
func (c *IntervalCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *IntervalCollector) flush() {
	c.mu.Lock()
	events := c.events
	c.events = nil
	c.started = false
	c.mu.Unlock()

	if len(events) > 0 {
		c.onFlush(events)
	}
}

// Close stops the timer and drops pending events.
func (c *IntervalCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.events = nil
	if c.timer != nil {
		c.timer.Stop()
	}
}
