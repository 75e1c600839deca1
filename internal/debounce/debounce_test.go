package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// quiet is how long a test waits to be sure a callback did not run.
const quiet = 30 * time.Millisecond

func expectCall(t *testing.T, calls <-chan string) string {
	t.Helper()
	select {
	case v := <-calls:
		return v
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced call")
		return ""
	}
}

func expectNoCall(t *testing.T, calls <-chan string) {
	t.Helper()
	select {
	case v := <-calls:
		t.Fatalf("unexpected call %q", v)
	case <-time.After(quiet):
	}
}

func TestTriggerRunsAfterQuietPeriod(t *testing.T) {
	c := clockwork.NewFakeClockAt(time.Unix(0, 0))
	d := New(350*time.Millisecond, c)

	calls := make(chan string, 1)
	d.Trigger(func() { calls <- "q" })

	c.Advance(349 * time.Millisecond)
	expectNoCall(t, calls)

	c.Advance(time.Millisecond)
	if got := expectCall(t, calls); got != "q" {
		t.Errorf("expected q, got %q", got)
	}
}

func TestTriggerRestartsTimer(t *testing.T) {
	c := clockwork.NewFakeClockAt(time.Unix(0, 0))
	d := New(350*time.Millisecond, c)

	calls := make(chan string, 3)
	for _, q := range []string{"a", "al", "ali"} {
		d.Trigger(func() { calls <- q })
		c.Advance(200 * time.Millisecond)
	}
	c.Advance(time.Second)

	if got := expectCall(t, calls); got != "ali" {
		t.Errorf("expected only the last trigger to run, got %q", got)
	}
	expectNoCall(t, calls)
}

func TestCancelAndStop(t *testing.T) {
	c := clockwork.NewFakeClockAt(time.Unix(0, 0))
	d := New(time.Second, c)

	calls := make(chan string, 3)
	d.Trigger(func() { calls <- "cancelled" })
	d.Cancel()
	c.Advance(2 * time.Second)
	expectNoCall(t, calls)

	d.Trigger(func() { calls <- "stopped" })
	d.Stop()
	d.Trigger(func() { calls <- "after stop" })
	c.Advance(2 * time.Second)
	expectNoCall(t, calls)
}

func TestRealClock(t *testing.T) {
	d := New(5*time.Millisecond, nil)
	var calls atomic.Int32
	done := make(chan struct{})

	d.Trigger(func() { calls.Add(1) })
	d.Trigger(func() {
		calls.Add(1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced call")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 call, got %d", n)
	}
}
