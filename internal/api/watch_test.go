package api

import (
	"context"
	"testing"
	"time"

	"github.com/matheus3301/rentchat/internal/bus"
)

// gatedSender blocks its first Send until released, so the subscription
// buffer overflows behind it.
type gatedSender struct {
	ctx     context.Context
	gate    chan struct{}
	entered chan struct{}
	got     chan *Event
	first   bool
}

func (g *gatedSender) Context() context.Context { return g.ctx }

func (g *gatedSender) Send(e *Event) error {
	if !g.first {
		g.first = true
		close(g.entered)
		<-g.gate
	}
	g.got <- e
	return nil
}

func TestWatchEventsReportsLag(t *testing.T) {
	b := bus.New()
	svc := NewChatService(newFakeEngine(), nil, b, "main")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	g := &gatedSender{ctx: ctx, gate: make(chan struct{}), entered: make(chan struct{}), got: make(chan *Event, 512)}

	done := make(chan error, 1)
	go func() { done <- svc.WatchEvents(&WatchRequest{Prefix: "typing."}, g) }()
	for b.Subscribers() == 0 {
		time.Sleep(time.Millisecond)
	}

	b.Publish(bus.Event{Kind: bus.TypingChanged, ConversationID: "1"})
	<-g.entered
	for i := 0; i < 300; i++ {
		b.Publish(bus.Event{Kind: bus.TypingChanged, ConversationID: "1"})
	}
	close(g.gate)

	var lagged *Event
	var lastSeq uint64
	for lagged == nil {
		select {
		case e := <-g.got:
			if e.Kind == KindWatchLagged {
				lagged = e
				continue
			}
			if e.Seq <= lastSeq {
				t.Fatalf("seq went from %d to %d", lastSeq, e.Seq)
			}
			lastSeq = e.Seq
		case <-ctx.Done():
			t.Fatal("no watch.lagged event")
		}
	}
	// 1 in flight, 256 buffered, the rest dropped.
	if lagged.Count != 300-256 {
		t.Errorf("lagged count = %d, want %d", lagged.Count, 300-256)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("WatchEvents() = %v", err)
	}
}
