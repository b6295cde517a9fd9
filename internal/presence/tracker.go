// Package presence tracks the online status of other users.
package presence

import (
	"slices"
	"strings"
	"time"

	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/clock"
	"github.com/matheus3301/rentchat/internal/protocol"
)

// Entry is the last known status of one user. Entries never expire
// locally; only a server update changes them.
type Entry struct {
	UserID   string
	UserName string
	IsOnline bool
	LastSeen time.Time
}

// Tracker is owned by the engine loop and is not safe for concurrent use.
type Tracker struct {
	entries map[string]Entry
	clock   clock.Clock
	bus     *bus.Bus
}

func NewTracker(c clock.Clock, b *bus.Bus) *Tracker {
	if c == nil {
		c = clock.Real()
	}
	return &Tracker{entries: make(map[string]Entry), clock: c, bus: b}
}

// Apply records a user_status_update, from either channel. It reports
// whether anything changed; unchanged updates publish nothing.
func (t *Tracker) Apply(ev protocol.UserStatusUpdate) (Entry, bool) {
	id := string(ev.UserID)
	prev, known := t.entries[id]

	e := Entry{
		UserID:   id,
		UserName: ev.UserName,
		IsOnline: ev.IsOnline,
		LastSeen: ev.LastSeen.Time,
	}
	if e.UserName == "" {
		e.UserName = prev.UserName
	}
	if e.LastSeen.IsZero() {
		if e.IsOnline || !prev.IsOnline {
			e.LastSeen = prev.LastSeen
		} else {
			// Going offline without a timestamp: now is the best guess.
			e.LastSeen = t.clock.Now()
		}
	}

	if known && e == prev {
		return e, false
	}
	t.entries[id] = e
	t.bus.Publish(bus.Event{Kind: bus.PresenceChanged, Timestamp: t.clock.Now(), Payload: e})
	return e, true
}

// Get returns the entry for userID.
func (t *Tracker) Get(userID string) (Entry, bool) {
	e, ok := t.entries[userID]
	return e, ok
}

// List returns every entry, online users first, then by user id.
func (t *Tracker) List() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if a.IsOnline != b.IsOnline {
			if a.IsOnline {
				return -1
			}
			return 1
		}
		return strings.Compare(a.UserID, b.UserID)
	})
	return out
}

// Online counts users currently online.
func (t *Tracker) Online() int {
	n := 0
	for _, e := range t.entries {
		if e.IsOnline {
			n++
		}
	}
	return n
}
