package typing

import (
	"slices"
	"strings"
	"time"

	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/clock"
	"github.com/matheus3301/rentchat/internal/metrics"
	"github.com/matheus3301/rentchat/internal/protocol"
	"github.com/matheus3301/rentchat/internal/sched"
)

// DefaultExpiry bounds how long a typing entry lives without a refresh.
// It covers remote clients that disconnect without sending is_typing=false.
const DefaultExpiry = 5 * time.Second

// Entry is one remote user typing in one conversation.
type Entry struct {
	UserID         string
	UserName       string
	ConversationID string
	Since          time.Time
}

// Change is the payload of typing.changed: the full set of typers for a
// conversation after the change.
type Change struct {
	ConversationID string
	Typing         []Entry
}

// Tracker holds at most one entry per (user, conversation). Engine loop only.
type Tracker struct {
	sched  *sched.Scheduler
	clock  clock.Clock
	bus    *bus.Bus
	expiry time.Duration

	convs map[string]map[string]Entry
}

func NewTracker(sc *sched.Scheduler, c clock.Clock, b *bus.Bus, expiry time.Duration) *Tracker {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Tracker{
		sched:  sc,
		clock:  c,
		bus:    b,
		expiry: expiry,
		convs:  make(map[string]map[string]Entry),
	}
}

func expiryKey(conv, user string) sched.Key {
	return sched.Key{Feature: sched.TypingExpiry, ID: conv + "/" + user}
}

// Apply handles a typing_notification. is_typing=true upserts the entry
// and restarts its expiry; false removes it at once.
func (t *Tracker) Apply(ev protocol.TypingNotification) {
	conv, user := string(ev.ConversationID), string(ev.UserID)
	if !ev.IsTyping {
		t.remove(conv, user)
		return
	}

	users, ok := t.convs[conv]
	if !ok {
		users = make(map[string]Entry)
		t.convs[conv] = users
	}
	_, existed := users[user]
	e := Entry{UserID: user, UserName: ev.UserName, ConversationID: conv, Since: t.clock.Now()}
	if existed {
		e.Since = users[user].Since
		if e.UserName == "" {
			e.UserName = users[user].UserName
		}
	}
	users[user] = e

	t.sched.Schedule(expiryKey(conv, user), t.expiry, func() {
		if t.remove(conv, user) {
			metrics.TypingExpired.Inc()
		}
	})
	if !existed {
		t.publish(conv)
	}
}

// ClearUser drops every entry of user, e.g. when they go offline.
func (t *Tracker) ClearUser(user string) {
	for conv := range t.convs {
		t.remove(conv, user)
	}
}

func (t *Tracker) remove(conv, user string) bool {
	t.sched.Cancel(expiryKey(conv, user))
	users, ok := t.convs[conv]
	if !ok {
		return false
	}
	if _, ok := users[user]; !ok {
		return false
	}
	delete(users, user)
	if len(users) == 0 {
		delete(t.convs, conv)
	}
	t.publish(conv)
	return true
}

// Typing lists the users typing in conv, sorted by user id.
func (t *Tracker) Typing(conv string) []Entry {
	users := t.convs[conv]
	out := make([]Entry, 0, len(users))
	for _, e := range users {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.UserID, b.UserID) })
	return out
}

func (t *Tracker) publish(conv string) {
	t.bus.Publish(bus.Event{
		Kind:           bus.TypingChanged,
		ConversationID: conv,
		Timestamp:      t.clock.Now(),
		Payload:        Change{ConversationID: conv, Typing: t.Typing(conv)},
	})
}
