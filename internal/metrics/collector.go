package metrics

import (
	"context"

	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/status"
)

// Collector derives metrics from bus traffic.
type Collector struct {
	bus    *bus.Bus
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCollector creates a collector for b.
func NewCollector(b *bus.Bus) *Collector {
	return &Collector{bus: b}
}

// Start subscribes to every event kind.
func (c *Collector) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	ch, unsub := c.bus.Subscribe("", 512)

	go func() {
		defer close(c.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				c.observe(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the collector and waits for it to exit.
func (c *Collector) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
}

func (c *Collector) observe(evt bus.Event) {
	BusEvents.WithLabelValues(evt.Kind).Inc()
	if evt.Kind != bus.ConnStateChanged {
		return
	}
	change, ok := evt.Payload.(status.StateChange)
	if !ok {
		return
	}
	v := 0.0
	if change.To == status.Open {
		v = 1
	}
	ConnectionOpen.WithLabelValues(change.Channel).Set(v)
}
