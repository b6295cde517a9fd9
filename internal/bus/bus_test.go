package bus

import (
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return Event{}
	}
}

func expectNone(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %+v", evt)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPublishStampsSeqAndTime(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b := New(WithClock(func() time.Time { return at }))
	ch, unsub := b.Subscribe("message.", 4)
	defer unsub()

	b.Publish(Event{Kind: MessageAppended, ConversationID: "c1"})
	explicit := at.Add(-time.Hour)
	b.Publish(Event{Kind: MessageRead, ConversationID: "c1", Timestamp: explicit})

	first, second := recv(t, ch), recv(t, ch)
	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("seq = %d, %d; want 1, 2", first.Seq, second.Seq)
	}
	if !first.Timestamp.Equal(at) {
		t.Errorf("zero timestamp filled with %v, want %v", first.Timestamp, at)
	}
	if !second.Timestamp.Equal(explicit) {
		t.Errorf("explicit timestamp overwritten: %v", second.Timestamp)
	}
}

func TestPrefixFiltering(t *testing.T) {
	b := New()
	typing, unsubT := b.Subscribe("typing.", 4)
	defer unsubT()
	all, unsubA := b.Subscribe("", 4)
	defer unsubA()

	b.Publish(Event{Kind: ConnStateChanged})
	b.Publish(Event{Kind: TypingChanged})

	if evt := recv(t, typing); evt.Kind != TypingChanged {
		t.Errorf("typing subscriber got %q", evt.Kind)
	}
	expectNone(t, typing)
	if recv(t, all).Kind != ConnStateChanged || recv(t, all).Kind != TypingChanged {
		t.Error("catch-all subscriber missed an event")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	b := New()
	sub := b.SubscribeFull("conn.", 4)
	sub.Cancel()
	sub.Cancel()

	b.Publish(Event{Kind: ConnStateChanged})
	expectNone(t, sub.C)
	if n := b.Subscribers(); n != 0 {
		t.Errorf("Subscribers() = %d, want 0", n)
	}
}

func TestFullSubscriberDropsAndReports(t *testing.T) {
	var hooked []string
	b := New(WithDropHook(func(ns string, evt Event) { hooked = append(hooked, ns+" "+evt.Kind) }))
	slow := b.SubscribeFull("notify.", 1)
	defer slow.Cancel()
	fast, unsub := b.Subscribe("notify.", 8)
	defer unsub()

	for _, p := range []string{"one", "two", "three"} {
		b.Publish(Event{Kind: NotifyDisplay, Payload: p})
	}

	if evt := recv(t, slow.C); evt.Payload != "one" {
		t.Errorf("slow subscriber got %v, want one", evt.Payload)
	}
	if slow.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", slow.Dropped())
	}
	if len(hooked) != 2 || hooked[0] != "notify. notify.display" {
		t.Errorf("drop hook calls = %v", hooked)
	}
	for _, want := range []string{"one", "two", "three"} {
		if evt := recv(t, fast); evt.Payload != want {
			t.Errorf("fast subscriber got %v, want %s", evt.Payload, want)
		}
	}
}

func TestNilBusPublish(t *testing.T) {
	var b *Bus
	b.Publish(Event{Kind: NotifyDisplay})
}
