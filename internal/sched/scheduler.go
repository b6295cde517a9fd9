// Package sched owns every cancellable timer of the engine, keyed by the
// feature that armed it and the entity it belongs to.
package sched

import (
	"sync"
	"time"

	"github.com/matheus3301/rentchat/internal/clock"
)

// Feature names used across the engine.
const (
	TypingIdle        = "typing.idle"
	TypingExpiry      = "typing.expiry"
	OutboxTimeout     = "outbox.timeout"
	RealtimeRedial    = "realtime.reconnect"
	RealtimeHeartbeat = "realtime.heartbeat"
)

// Key identifies a timer. At most one timer exists per key.
type Key struct {
	Feature string
	ID      string
}

// Scheduler arms, replaces and cancels keyed timers. Expired callbacks are
// handed to the executor; in the daemon that is the engine loop, so
// callbacks never race with event handlers.
type Scheduler struct {
	mu     sync.Mutex
	clock  clock.Clock
	exec   func(func())
	timers map[Key]*entry
	gen    uint64
}

type entry struct {
	gen   uint64
	timer *clock.Timer
}

// New creates a scheduler. A nil exec runs callbacks on the timer's goroutine.
func New(c clock.Clock, exec func(func())) *Scheduler {
	if exec == nil {
		exec = func(f func()) { f() }
	}
	return &Scheduler{
		clock:  c,
		exec:   exec,
		timers: make(map[Key]*entry),
	}
}

// Schedule arms fn to run after d. An existing timer with the same key is
// replaced, which is how callers express "reset the idle timer".
func (s *Scheduler) Schedule(key Key, d time.Duration, fn func()) {
	s.mu.Lock()
	if old, ok := s.timers[key]; ok && old.timer != nil {
		old.timer.Stop()
	}
	s.gen++
	e := &entry{gen: s.gen}
	s.timers[key] = e
	s.mu.Unlock()

	g := e.gen
	t := s.clock.AfterFunc(d, func() {
		s.exec(func() { s.fire(key, g, fn) })
	})

	s.mu.Lock()
	if cur, ok := s.timers[key]; ok && cur.gen == g {
		cur.timer = t
	}
	s.mu.Unlock()
}

// fire runs fn only if the timer is still the current one for key. A timer
// cancelled or replaced between expiry and execution is dropped.
func (s *Scheduler) fire(key Key, g uint64, fn func()) {
	s.mu.Lock()
	cur, ok := s.timers[key]
	if !ok || cur.gen != g {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	s.mu.Unlock()
	fn()
}

// Cancel stops the timer for key. Reports whether one was pending.
func (s *Scheduler) Cancel(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(key)
}

// CancelFeature stops every timer armed by feature and returns how many.
func (s *Scheduler) CancelFeature(feature string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.timers {
		if key.Feature == feature && s.cancelLocked(key) {
			n++
		}
	}
	return n
}

// CancelAll stops every pending timer.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.timers {
		if s.cancelLocked(key) {
			n++
		}
	}
	return n
}

func (s *Scheduler) cancelLocked(key Key) bool {
	e, ok := s.timers[key]
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(s.timers, key)
	return true
}

// Pending reports whether a timer is armed for key.
func (s *Scheduler) Pending(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Len returns the number of armed timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
