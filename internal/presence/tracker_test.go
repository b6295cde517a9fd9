package presence

import (
	"testing"
	"time"

	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/clock"
	"github.com/matheus3301/rentchat/internal/protocol"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func update(id string, online bool) protocol.UserStatusUpdate {
	return protocol.UserStatusUpdate{UserID: protocol.ID(id), IsOnline: online}
}

func TestApplyUpsertsAndPublishes(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.PresenceChanged, 4)
	defer unsub()
	tr := NewTracker(clock.Fake(epoch), b)

	ev := update("7", true)
	ev.UserName = "Landlord"
	if _, changed := tr.Apply(ev); !changed {
		t.Fatal("first update reported unchanged")
	}

	e, ok := tr.Get("7")
	if !ok || !e.IsOnline || e.UserName != "Landlord" {
		t.Fatalf("Get() = %+v, %v", e, ok)
	}
	select {
	case evt := <-ch:
		if evt.Payload.(Entry).UserID != "7" {
			t.Errorf("payload = %+v", evt.Payload)
		}
	default:
		t.Fatal("no presence.changed event")
	}

	if _, changed := tr.Apply(update("7", true)); changed {
		t.Error("repeated update reported changed")
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event %+v", evt)
	default:
	}
}

func TestGoingOfflineKeepsNameAndStampsLastSeen(t *testing.T) {
	c := clock.Fake(epoch)
	tr := NewTracker(c, bus.New())

	ev := update("7", true)
	ev.UserName = "Landlord"
	tr.Apply(ev)
	c.Advance(time.Minute)
	tr.Apply(update("7", false))

	e, _ := tr.Get("7")
	if e.IsOnline {
		t.Error("still online")
	}
	if e.UserName != "Landlord" {
		t.Errorf("name = %q, want kept", e.UserName)
	}
	if !e.LastSeen.Equal(epoch.Add(time.Minute)) {
		t.Errorf("LastSeen = %v, want %v", e.LastSeen, epoch.Add(time.Minute))
	}

	explicit := update("8", false)
	explicit.LastSeen = protocol.Time{Time: epoch.Add(-time.Hour)}
	tr.Apply(explicit)
	if e, _ := tr.Get("8"); !e.LastSeen.Equal(epoch.Add(-time.Hour)) {
		t.Errorf("server last_seen not used: %v", e.LastSeen)
	}
}

func TestEntriesNeverExpire(t *testing.T) {
	c := clock.Fake(epoch)
	tr := NewTracker(c, bus.New())
	tr.Apply(update("7", true))

	c.Advance(24 * time.Hour)
	if e, ok := tr.Get("7"); !ok || !e.IsOnline {
		t.Errorf("entry changed without a server update: %+v, %v", e, ok)
	}
}

func TestListAndOnline(t *testing.T) {
	tr := NewTracker(clock.Fake(epoch), bus.New())
	tr.Apply(update("b", false))
	tr.Apply(update("c", true))
	tr.Apply(update("a", true))

	if got := tr.Online(); got != 2 {
		t.Errorf("Online() = %d, want 2", got)
	}
	list := tr.List()
	var ids []string
	for _, e := range list {
		ids = append(ids, e.UserID)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "c" || ids[2] != "b" {
		t.Errorf("List() order = %v, want [a c b]", ids)
	}
}
