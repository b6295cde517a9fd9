package typing

import (
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/clock"
	"github.com/matheus3301/rentchat/internal/protocol"
	"github.com/matheus3301/rentchat/internal/sched"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) Send(cmd protocol.Command) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, cmd.Type())
	return nil
}

func newLocal() (*Local, *fakeSender, *clock.FakeClock, *sched.Scheduler) {
	c := clock.Fake(epoch)
	s := sched.New(c, nil)
	fs := &fakeSender{}
	return NewLocal(fs, s, 3*time.Second, nil), fs, c, s
}

func TestKeystrokeSendsStartOnce(t *testing.T) {
	l, fs, _, _ := newLocal()

	for i := 0; i < 5; i++ {
		if err := l.Keystroke("c1"); err != nil {
			t.Fatal(err)
		}
	}
	if len(fs.sent) != 1 || fs.sent[0] != protocol.TypeTypingStart {
		t.Errorf("sent = %v, want one typing_start", fs.sent)
	}
	if !l.IsTyping("c1") {
		t.Error("IsTyping = false")
	}
}

func TestIdleSendsStop(t *testing.T) {
	l, fs, c, _ := newLocal()
	_ = l.Keystroke("c1")

	c.Advance(2 * time.Second)
	_ = l.Keystroke("c1") // pushes the deadline to 5s
	c.Advance(2 * time.Second)
	if len(fs.sent) != 1 {
		t.Fatalf("sent = %v before idle", fs.sent)
	}

	c.Advance(time.Second)
	if len(fs.sent) != 2 || fs.sent[1] != protocol.TypeTypingStop {
		t.Errorf("sent = %v, want typing_stop after idle", fs.sent)
	}
	if l.IsTyping("c1") {
		t.Error("still typing after idle")
	}
}

func TestStopOnSend(t *testing.T) {
	l, fs, c, s := newLocal()
	_ = l.Keystroke("c1")
	l.Stop("c1")

	if len(fs.sent) != 2 || fs.sent[1] != protocol.TypeTypingStop {
		t.Errorf("sent = %v", fs.sent)
	}
	if s.Len() != 0 {
		t.Errorf("%d timers left", s.Len())
	}
	c.Advance(time.Minute)
	if len(fs.sent) != 2 {
		t.Errorf("extra frames after Stop: %v", fs.sent)
	}

	// Stop without typing sends nothing.
	l.Stop("c2")
	if len(fs.sent) != 2 {
		t.Errorf("Stop on idle conversation sent %v", fs.sent)
	}
}

func TestFailedStartRetriesOnNextKeystroke(t *testing.T) {
	l, fs, _, s := newLocal()
	fs.err = errors.New("not connected")

	if err := l.Keystroke("c1"); err == nil {
		t.Fatal("Keystroke() error = nil while disconnected")
	}
	if l.IsTyping("c1") || s.Len() != 0 {
		t.Fatal("failed start left typing state behind")
	}

	fs.err = nil
	if err := l.Keystroke("c1"); err != nil {
		t.Fatal(err)
	}
	if len(fs.sent) != 1 || fs.sent[0] != protocol.TypeTypingStart {
		t.Errorf("sent = %v, want typing_start on retry", fs.sent)
	}
}

func TestResetClearsWithoutSending(t *testing.T) {
	l, fs, c, s := newLocal()
	_ = l.Keystroke("c1")
	_ = l.Keystroke("c2")

	l.Reset()
	if l.IsTyping("c1") || l.IsTyping("c2") || s.Len() != 0 {
		t.Error("Reset left state behind")
	}
	c.Advance(time.Minute)
	if len(fs.sent) != 2 {
		t.Errorf("sent = %v, want only the two starts", fs.sent)
	}
}

func newTracker(expiry time.Duration) (*Tracker, *clock.FakeClock, *bus.Bus) {
	c := clock.Fake(epoch)
	b := bus.New()
	return NewTracker(sched.New(c, nil), c, b, expiry), c, b
}

func typingNote(conv, user string, on bool) protocol.TypingNotification {
	return protocol.TypingNotification{
		ConversationID: protocol.ID(conv),
		UserID:         protocol.ID(user),
		UserName:       "user " + user,
		IsTyping:       on,
	}
}

func TestTrackerExpiresSilentTyper(t *testing.T) {
	tr, c, _ := newTracker(5 * time.Second)
	tr.Apply(typingNote("c1", "2", true))

	if got := tr.Typing("c1"); len(got) != 1 || got[0].UserName != "user 2" {
		t.Fatalf("Typing() = %+v", got)
	}
	c.Advance(4999 * time.Millisecond)
	if len(tr.Typing("c1")) != 1 {
		t.Fatal("entry expired early")
	}
	c.Advance(time.Millisecond)
	if got := tr.Typing("c1"); len(got) != 0 {
		t.Errorf("Typing() = %+v after expiry window", got)
	}
}

func TestTrackerRefreshExtendsExpiry(t *testing.T) {
	tr, c, _ := newTracker(5 * time.Second)
	tr.Apply(typingNote("c1", "2", true))
	c.Advance(4 * time.Second)
	tr.Apply(typingNote("c1", "2", true))
	c.Advance(4 * time.Second)

	got := tr.Typing("c1")
	if len(got) != 1 {
		t.Fatalf("refreshed entry expired: %+v", got)
	}
	if !got[0].Since.Equal(epoch) {
		t.Errorf("Since = %v, want first notification time", got[0].Since)
	}
	c.Advance(time.Second)
	if len(tr.Typing("c1")) != 0 {
		t.Error("entry outlived refreshed window")
	}
}

func TestTrackerStopRemovesImmediately(t *testing.T) {
	tr, _, b := newTracker(5 * time.Second)
	ch, unsub := b.Subscribe(bus.TypingChanged, 8)
	defer unsub()

	tr.Apply(typingNote("c1", "2", true))
	tr.Apply(typingNote("c1", "3", true))
	tr.Apply(typingNote("c1", "2", false))

	got := tr.Typing("c1")
	if len(got) != 1 || got[0].UserID != "3" {
		t.Errorf("Typing() = %+v, want only 3", got)
	}

	var last Change
	for i := 0; i < 3; i++ {
		select {
		case evt := <-ch:
			last = evt.Payload.(Change)
		case <-time.After(time.Second):
			t.Fatalf("only %d typing.changed events", i)
		}
	}
	if len(last.Typing) != 1 || last.Typing[0].UserID != "3" {
		t.Errorf("last change = %+v", last)
	}

	// Stopping an unknown typer is a no-op.
	tr.Apply(typingNote("c9", "9", false))
}

func TestTrackerOneEntryPerUserAndConversation(t *testing.T) {
	tr, _, _ := newTracker(0)
	tr.Apply(typingNote("c1", "2", true))
	tr.Apply(typingNote("c1", "2", true))
	tr.Apply(typingNote("c2", "2", true))

	if len(tr.Typing("c1")) != 1 || len(tr.Typing("c2")) != 1 {
		t.Errorf("c1 = %+v, c2 = %+v", tr.Typing("c1"), tr.Typing("c2"))
	}

	tr.ClearUser("2")
	if len(tr.Typing("c1")) != 0 || len(tr.Typing("c2")) != 0 {
		t.Error("ClearUser left entries")
	}
}
