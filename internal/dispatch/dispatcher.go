// Package dispatch turns raw inbound frames into handler calls.
package dispatch

import (
	"fmt"

	"github.com/matheus3301/rentchat/internal/metrics"
	"github.com/matheus3301/rentchat/internal/protocol"
	"go.uber.org/zap"
)

// Dispatcher decodes frames from one channel and invokes exactly one
// Handler method per frame.
type Dispatcher struct {
	channel string
	handler protocol.Handler
	post    func(func()) bool
	logger  *zap.Logger
}

// New creates a dispatcher. post schedules the handler call; passing the
// engine loop's Post keeps frames in arrival order on a single goroutine.
// A nil post calls the handler inline.
func New(channel string, h protocol.Handler, post func(func()) bool, logger *zap.Logger) *Dispatcher {
	if post == nil {
		post = func(fn func()) bool { fn(); return true }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		channel: channel,
		handler: h,
		post:    post,
		logger:  logger.With(zap.String("channel", channel)),
	}
}

// Dispatch is the connection's OnMessage callback. It never panics and never
// returns an error: bad frames are logged, counted and dropped.
func (d *Dispatcher) Dispatch(frame []byte) {
	ev, err := protocol.Decode(frame)
	if err != nil {
		metrics.FramesDropped.WithLabelValues(d.channel, "malformed").Inc()
		d.logger.Warn("dropping malformed frame", zap.Error(err), zap.Int("size", len(frame)))
		return
	}
	if _, ok := ev.(protocol.Unknown); ok {
		metrics.FramesDropped.WithLabelValues(d.channel, "unknown").Inc()
	} else {
		metrics.FramesDispatched.WithLabelValues(d.channel, ev.Kind()).Inc()
	}

	if !d.post(func() { d.deliver(ev) }) {
		d.logger.Debug("loop stopped, frame discarded", zap.String("kind", ev.Kind()))
	}
}

func (d *Dispatcher) deliver(ev protocol.Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.FramesDropped.WithLabelValues(d.channel, "panic").Inc()
			d.logger.Error("handler panicked",
				zap.String("kind", ev.Kind()),
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"),
			)
		}
	}()
	ev.Dispatch(d.handler)
}
