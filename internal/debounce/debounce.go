// Package debounce delays a call until input has been quiet for a period.
package debounce

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Debouncer holds at most one pending call.
type Debouncer struct {
	clock clockwork.Clock
	delay time.Duration

	mu      sync.Mutex
	timer   clockwork.Timer
	stopped bool
}

// New creates a Debouncer with the given quiet period. A nil clock uses the
// wall clock.
func New(delay time.Duration, c clockwork.Clock) *Debouncer {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	return &Debouncer{clock: c, delay: delay}
}

// Trigger cancels any pending call and schedules fn after the quiet period.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}

	var t clockwork.Timer
	t = d.clock.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.timer != t || d.stopped {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
	d.timer = t
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Stop cancels the pending call and ignores further triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
