package sched

import (
	"testing"
	"time"

	"github.com/matheus3301/rentchat/internal/clock"
)

func newTestScheduler() (*Scheduler, *clock.FakeClock) {
	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(c, nil), c
}

func TestScheduleFires(t *testing.T) {
	s, c := newTestScheduler()
	key := Key{Feature: TypingExpiry, ID: "c1/u1"}
	fired := 0
	s.Schedule(key, 5*time.Second, func() { fired++ })

	if !s.Pending(key) {
		t.Fatal("Pending() = false after Schedule")
	}
	c.Advance(5 * time.Second)
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
	if s.Pending(key) {
		t.Error("Pending() = true after firing")
	}
}

// TestRescheduleResetsDeadline covers the typing refresh case: a second
// Schedule on the same key pushes the deadline out instead of adding a timer.
func TestRescheduleResetsDeadline(t *testing.T) {
	s, c := newTestScheduler()
	key := Key{Feature: TypingIdle, ID: "c1"}
	fired := 0
	s.Schedule(key, 3*time.Second, func() { fired++ })

	c.Advance(2 * time.Second)
	s.Schedule(key, 3*time.Second, func() { fired++ })
	c.Advance(2 * time.Second)
	if fired != 0 {
		t.Fatalf("fired = %d after reschedule, want 0", fired)
	}
	c.Advance(time.Second)
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestCancel(t *testing.T) {
	s, c := newTestScheduler()
	key := Key{Feature: OutboxTimeout, ID: "tmp-1"}
	fired := false
	s.Schedule(key, time.Second, func() { fired = true })

	if !s.Cancel(key) {
		t.Fatal("Cancel() = false for pending timer")
	}
	if s.Cancel(key) {
		t.Error("second Cancel() = true")
	}
	c.Advance(time.Minute)
	if fired {
		t.Error("cancelled timer fired")
	}
}

func TestCancelFeature(t *testing.T) {
	s, c := newTestScheduler()
	fired := map[string]bool{}
	for _, id := range []string{"a", "b", "c"} {
		id := id
		s.Schedule(Key{Feature: OutboxTimeout, ID: id}, time.Second, func() { fired[id] = true })
	}
	s.Schedule(Key{Feature: TypingIdle, ID: "a"}, time.Second, func() { fired["typing"] = true })

	if n := s.CancelFeature(OutboxTimeout); n != 3 {
		t.Errorf("CancelFeature() = %d, want 3", n)
	}
	c.Advance(time.Second)
	if fired["a"] || fired["b"] || fired["c"] {
		t.Errorf("cancelled outbox timers fired: %v", fired)
	}
	if !fired["typing"] {
		t.Error("timer of another feature was cancelled")
	}
}

func TestCancelAll(t *testing.T) {
	s, c := newTestScheduler()
	s.Schedule(Key{Feature: TypingIdle, ID: "1"}, time.Second, func() { t.Error("fired") })
	s.Schedule(Key{Feature: TypingExpiry, ID: "2"}, time.Second, func() { t.Error("fired") })

	if n := s.CancelAll(); n != 2 {
		t.Errorf("CancelAll() = %d, want 2", n)
	}
	c.Advance(time.Minute)
}

// TestStaleCallbackDropped simulates a timer that expired while its callback
// was still queued on the loop, then got replaced. The queued callback must
// not run.
func TestStaleCallbackDropped(t *testing.T) {
	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var queued []func()
	s := New(c, func(f func()) { queued = append(queued, f) })

	key := Key{Feature: TypingExpiry, ID: "c1/u1"}
	ran := 0
	s.Schedule(key, time.Second, func() { ran++ })
	c.Advance(time.Second)
	if len(queued) != 1 {
		t.Fatalf("queued = %d, want 1", len(queued))
	}

	s.Schedule(key, time.Second, func() { ran += 10 })
	queued[0]()
	if ran != 0 {
		t.Fatalf("stale callback ran: ran = %d", ran)
	}

	c.Advance(time.Second)
	queued[1]()
	if ran != 10 {
		t.Errorf("ran = %d, want 10", ran)
	}
}
