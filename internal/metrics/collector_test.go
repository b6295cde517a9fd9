package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/status"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorTracksConnectionGauge(t *testing.T) {
	b := bus.New()
	c := NewCollector(b)
	c.Start(context.Background())
	defer c.Stop()

	m := status.NewMachine("collector-test", b)
	_ = m.Transition(status.Connecting)
	_ = m.Transition(status.Open)

	gauge := ConnectionOpen.WithLabelValues("collector-test")
	deadline := time.Now().Add(time.Second)
	for testutil.ToFloat64(gauge) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("gauge never reached 1 after OPEN")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_ = m.Transition(status.Closed)
	deadline = time.Now().Add(time.Second)
	for testutil.ToFloat64(gauge) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("gauge never dropped to 0 after CLOSED")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
