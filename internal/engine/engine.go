// Package engine composes the synchronization engine. Every inbound event
// and every caller request runs on one loop goroutine, so the reconciler,
// trackers and controllers need no locks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/clock"
	"github.com/matheus3301/rentchat/internal/dispatch"
	"github.com/matheus3301/rentchat/internal/loop"
	"github.com/matheus3301/rentchat/internal/membership"
	"github.com/matheus3301/rentchat/internal/notify"
	"github.com/matheus3301/rentchat/internal/outbox"
	"github.com/matheus3301/rentchat/internal/presence"
	"github.com/matheus3301/rentchat/internal/protocol"
	"github.com/matheus3301/rentchat/internal/realtime"
	"github.com/matheus3301/rentchat/internal/rest"
	"github.com/matheus3301/rentchat/internal/sched"
	"github.com/matheus3301/rentchat/internal/status"
	"github.com/matheus3301/rentchat/internal/sync"
	"github.com/matheus3301/rentchat/internal/typing"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrNoREST is returned by REST-backed operations when no API is configured.
var ErrNoREST = errors.New("rest api not configured")

const restTimeout = 15 * time.Second

// Connection is one realtime channel. *realtime.Manager implements it.
type Connection interface {
	Channel() string
	Start(ctx context.Context)
	Disconnect() error
	Send(cmd protocol.Command) error
	State() status.State
	Attempts() int
	LastHeartbeat() time.Time
	OnMessage(fn func(frame []byte))
}

// REST is the part of the REST API the engine uses. *rest.Client implements it.
type REST interface {
	GetThread(ctx context.Context, conv string) (*rest.Thread, error)
	GetMessages(ctx context.Context, conv string, since time.Time) ([]protocol.WireMessage, error)
	CreateMessage(ctx context.Context, conv, content string) (*protocol.WireMessage, error)
	NotifyRecipient(ctx context.Context, conv, content string) error
}

// Checkpointer returns where a conversation's backfill starts.
type Checkpointer interface {
	Since(conv string) (time.Time, error)
}

type Config struct {
	UserID       string
	SendTimeout  time.Duration
	TypingIdle   time.Duration
	TypingExpiry time.Duration
}

// Deps are the engine's collaborators. Loop and Sched must be the ones the
// connections were built with, so heartbeat and reconnect callbacks run on
// the engine loop too. REST, Checkpoints and Display are optional.
type Deps struct {
	Loop        *loop.Loop
	Sched       *sched.Scheduler
	Clock       clock.Clock
	Bus         *bus.Bus
	Messaging   Connection
	Presence    Connection
	REST        REST
	Checkpoints Checkpointer
	Display     notify.Displayer
	Logger      *zap.Logger
}

type Engine struct {
	cfg         Config
	loop        *loop.Loop
	sched       *sched.Scheduler
	clock       clock.Clock
	bus         *bus.Bus
	messaging   Connection
	presenceCh  Connection
	rest        REST
	checkpoints Checkpointer
	display     notify.Displayer
	logger      *zap.Logger

	reconciler *sync.Reconciler
	outbox     *outbox.Controller
	local      *typing.Local
	typers     *typing.Tracker
	presence   *presence.Tracker
	membership *membership.Controller

	// Loop-owned.
	titles      map[string]string
	stopping    bool
	everOpened  bool
	unsubscribe func()

	ctx     context.Context
	cancel  context.CancelFunc
	stopped atomic.Bool
}

// New wires the engine. Call Start to run it.
func New(cfg Config, d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Display == nil {
		d.Display = notify.BusDisplayer{Bus: d.Bus}
	}

	e := &Engine{
		cfg:         cfg,
		loop:        d.Loop,
		sched:       d.Sched,
		clock:       d.Clock,
		bus:         d.Bus,
		messaging:   d.Messaging,
		presenceCh:  d.Presence,
		rest:        d.REST,
		checkpoints: d.Checkpoints,
		display:     d.Display,
		logger:      logger,
		titles:      make(map[string]string),
	}

	e.membership = membership.NewController(d.Messaging, logger.Named("membership"))
	e.reconciler = sync.NewReconciler(cfg.UserID, sync.Hooks{
		IsForeground: e.membership.IsForeground,
		MarkRead:     e.sendMarkRead,
		Notify:       e.notifyNewMessage,
	}, d.Clock, d.Bus, logger.Named("reconciler"))
	e.outbox = outbox.NewController(d.Messaging, e.reconciler, d.Sched, d.Clock, d.Bus, cfg.SendTimeout, logger.Named("outbox"))
	if d.REST != nil {
		e.outbox.NotifyRecipient = func(conv, body string) error {
			ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
			defer cancel()
			return d.REST.NotifyRecipient(ctx, conv, body)
		}
	}
	e.local = typing.NewLocal(d.Messaging, d.Sched, cfg.TypingIdle, logger.Named("typing"))
	e.typers = typing.NewTracker(d.Sched, d.Clock, d.Bus, cfg.TypingExpiry)
	e.presence = presence.NewTracker(d.Clock, d.Bus)

	d.Messaging.OnMessage(dispatch.New(d.Messaging.Channel(), e, d.Loop.Post, logger).Dispatch)
	if d.Presence != nil {
		d.Presence.OnMessage(dispatch.New(d.Presence.Channel(), e, d.Loop.Post, logger).Dispatch)
	}
	return e
}

// Start runs the loop and opens both channels. Channels that fail to
// connect keep retrying in the background.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(context.Background())
	go e.loop.Run(e.ctx)

	events, unsub := e.bus.Subscribe("conn.", 64)
	e.unsubscribe = unsub
	go func() {
		for {
			select {
			case evt := <-events:
				e.loop.Post(func() { e.onConnEvent(evt) })
			case <-e.ctx.Done():
				return
			}
		}
	}()

	e.messaging.Start(ctx)
	if e.presenceCh != nil {
		e.presenceCh.Start(ctx)
	}
}

// Stop closes both channels, cancels every timer and stops the loop.
func (e *Engine) Stop() error {
	if e.cancel == nil || !e.stopped.CompareAndSwap(false, true) {
		return nil
	}
	_ = e.loop.Do(context.Background(), func() { e.stopping = true })

	err := e.messaging.Disconnect()
	if e.presenceCh != nil {
		err = multierr.Append(err, e.presenceCh.Disconnect())
	}
	e.sched.CancelAll()
	e.unsubscribe()
	e.cancel()
	<-e.loop.Done()
	return err
}

func (e *Engine) onConnEvent(evt bus.Event) {
	switch p := evt.Payload.(type) {
	case status.StateChange:
		if p.Channel != e.messaging.Channel() {
			return
		}
		switch p.To {
		case status.Open:
			e.onMessagingOpen()
		case status.Closed:
			if p.From == status.Open || p.From == status.Closing {
				e.onMessagingLost()
			}
		}
	case realtime.GaveUp:
		if e.stopping {
			return
		}
		e.display.Display(
			fmt.Sprintf("%s connection lost after %d attempts", p.Channel, p.Attempts),
			notify.Error, notify.Options{Sticky: true})
	}
}

func (e *Engine) onMessagingOpen() {
	if e.everOpened {
		e.display.Display("connected", notify.Info, notify.Options{Sticky: true})
	}
	e.everOpened = true
	if failed := e.membership.Rejoin(); failed > 0 {
		e.logger.Warn("rejoin incomplete", zap.Int("failed", failed))
	}
	e.backfill(e.membership.Joined())
}

func (e *Engine) onMessagingLost() {
	n := e.outbox.FailAll(outbox.ReasonConnectionLost)
	e.local.Reset()
	if e.stopping {
		return
	}
	e.logger.Warn("messaging channel lost", zap.Int("failed_sends", n))
	e.display.Display("disconnected, reconnecting", notify.Warning, notify.Options{Sticky: true})
}

// backfill fetches what was missed on each conversation while the channel
// was down. REST calls run off the loop; results are posted back.
func (e *Engine) backfill(convs []string) {
	if e.rest == nil || len(convs) == 0 {
		return
	}
	starts := make(map[string]time.Time, len(convs))
	for _, conv := range convs {
		if m, ok := e.reconciler.Latest(conv); ok {
			starts[conv] = m.SentAt
		}
	}

	ctx := e.ctx
	go func() {
		for _, conv := range convs {
			since := starts[conv]
			if e.checkpoints != nil {
				if cp, err := e.checkpoints.Since(conv); err == nil && cp.After(since) {
					since = cp
				}
			}
			rctx, cancel := context.WithTimeout(ctx, restTimeout)
			msgs, err := e.rest.GetMessages(rctx, conv, since)
			cancel()
			if err != nil {
				e.logger.Warn("backfill failed", zap.String("conversation", conv), zap.Error(err))
				continue
			}
			e.loop.Post(func() {
				for _, w := range msgs {
					e.applyIncoming(conv, w)
				}
			})
		}
	}()
}

// applyIncoming routes a server message: our own messages first try to
// confirm a pending send, everything else is reconciled. A server id that
// is already stored is a redelivery and never confirms another send.
func (e *Engine) applyIncoming(conv string, w protocol.WireMessage) {
	m := sync.FromWire(conv, w, e.cfg.UserID)
	if m.ID == "" || m.ConversationID == "" {
		return
	}
	if m.Provenance == sync.Local {
		if _, seen := e.reconciler.Message(m.ConversationID, m.ID); !seen && e.outbox.Confirm(m) {
			return
		}
	}
	e.reconciler.ApplyNew(m)
}

func (e *Engine) sendMarkRead(conv string, ids []string) {
	if err := e.messaging.Send(protocol.MarkAsRead{ConversationID: conv, MessageIDs: ids}); err != nil {
		e.logger.Debug("mark_as_read not sent", zap.String("conversation", conv), zap.Error(err))
	}
}

func (e *Engine) notifyNewMessage(m sync.Message) {
	from := m.SenderName
	if from == "" {
		from = m.SenderID
	}
	text := fmt.Sprintf("%s: %s", from, preview(m.Body, 60))
	notify.FireAndForget(e.logger, "notify_new_message", func() error {
		e.display.Display(text, notify.Info, notify.Options{ConversationID: m.ConversationID})
		return nil
	})
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
