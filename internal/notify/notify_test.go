package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/rentchat/internal/bus"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestBusDisplayerPublishes(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("notify.", 1)
	defer unsub()

	BusDisplayer{Bus: b}.Display("disconnected, reconnecting", Warning, Options{Sticky: true})

	select {
	case evt := <-ch:
		a := evt.Payload.(Alert)
		if evt.Kind != bus.NotifyDisplay || a.Severity != Warning || !a.Options.Sticky {
			t.Errorf("event = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no notify.display event")
	}
}

func TestFireAndForgetIsolatesFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	done := make(chan struct{}, 2)
	FireAndForget(logger, "failing", func() error {
		defer func() { done <- struct{}{} }()
		return errors.New("recipient unreachable")
	})
	FireAndForget(logger, "panicking", func() error {
		defer func() { done <- struct{}{} }()
		panic("boom")
	})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("side effect did not run")
		}
	}

	deadline := time.Now().Add(time.Second)
	for logs.Len() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if logs.FilterField(zap.String("effect", "failing")).Len() != 1 {
		t.Error("failure not logged")
	}
	if logs.FilterField(zap.String("effect", "panicking")).Len() != 1 {
		t.Error("panic not logged")
	}
}
