// Package outbox implements optimistic sends: a message shows up in its
// conversation at once as PENDING and is later confirmed by the server or
// marked FAILED. A failed send is never removed implicitly.
package outbox

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/clock"
	"github.com/matheus3301/rentchat/internal/metrics"
	"github.com/matheus3301/rentchat/internal/notify"
	"github.com/matheus3301/rentchat/internal/protocol"
	"github.com/matheus3301/rentchat/internal/realtime"
	"github.com/matheus3301/rentchat/internal/sched"
	"github.com/matheus3301/rentchat/internal/status"
	"github.com/matheus3301/rentchat/internal/sync"
	"go.uber.org/zap"
)

// DefaultTimeout is how long a send waits for its confirmation.
const DefaultTimeout = 5 * time.Second

// TempPrefix marks client-generated message ids.
const TempPrefix = "tmp-"

// LateConfirmFactor bounds how long a FAILED send still accepts its
// confirmation, in send timeouts counted from the last submission.
const LateConfirmFactor = 6

var (
	ErrEmptyBody    = errors.New("message body is empty")
	ErrNotConnected = realtime.ErrNotConnected
	ErrUnknownSend  = errors.New("unknown pending send")
	ErrNotFailed    = errors.New("send has not failed")
)

// Failure reasons.
const (
	ReasonTimeout        = "no confirmation from server"
	ReasonConnectionLost = "connection lost"
)

// Conn is the messaging connection.
type Conn interface {
	Send(cmd protocol.Command) error
	State() status.State
}

// Messages is the part of the reconciler the controller drives.
type Messages interface {
	AppendPending(conv, tempID, body string) sync.Message
	Confirm(conv, tempID string, server sync.Message) bool
	MarkFailed(conv, id, reason string) bool
	MarkPending(conv, id string) bool
	Remove(conv, id string) bool
}

// PendingSend is a submitted message still waiting for its confirmation,
// or one that failed.
type PendingSend struct {
	TempID         string
	ConversationID string
	Body           string
	SubmittedAt    time.Time
	Attempts       int
	Status         sync.Status
	FailureReason  string
}

// Ack is the payload of message.send_ack.
type Ack struct {
	TempID         string
	ServerID       string
	ConversationID string
}

// Failure is the payload of message.send_failed.
type Failure struct {
	TempID         string
	ConversationID string
	Reason         string
}

// Controller owns every PendingSend. Engine loop only.
type Controller struct {
	conn     Conn
	messages Messages
	sched    *sched.Scheduler
	clock    clock.Clock
	bus      *bus.Bus
	timeout  time.Duration
	logger   *zap.Logger

	// NotifyRecipient, when set, runs after each successful submission as
	// a best-effort side effect.
	NotifyRecipient func(conv, body string) error

	pending map[string]*PendingSend
	order   []string
}

func NewController(conn Conn, m Messages, sc *sched.Scheduler, c clock.Clock, b *bus.Bus, timeout time.Duration, logger *zap.Logger) *Controller {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		conn:     conn,
		messages: m,
		sched:    sc,
		clock:    c,
		bus:      b,
		timeout:  timeout,
		logger:   logger,
		pending:  make(map[string]*PendingSend),
	}
}

func timeoutKey(tempID string) sched.Key {
	return sched.Key{Feature: sched.OutboxTimeout, ID: tempID}
}

// Send submits body to conv optimistically and returns the temporary id.
// An empty body or a connection that is not OPEN fails synchronously and
// creates nothing. If the frame cannot be written the entry exists but is
// already FAILED; the temporary id is returned with the error.
func (c *Controller) Send(conv, body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		metrics.Sends.WithLabelValues("rejected").Inc()
		return "", ErrEmptyBody
	}
	if c.conn.State() != status.Open {
		metrics.Sends.WithLabelValues("rejected").Inc()
		return "", ErrNotConnected
	}

	ps := &PendingSend{
		TempID:         TempPrefix + uuid.NewString(),
		ConversationID: conv,
		Body:           body,
		SubmittedAt:    c.clock.Now(),
		Attempts:       1,
		Status:         sync.Pending,
	}
	c.messages.AppendPending(conv, ps.TempID, body)
	c.pending[ps.TempID] = ps
	c.order = append(c.order, ps.TempID)

	if err := c.submit(ps); err != nil {
		return ps.TempID, err
	}
	return ps.TempID, nil
}

func (c *Controller) submit(ps *PendingSend) error {
	if err := c.conn.Send(protocol.SendMessage{ConversationID: ps.ConversationID, Content: ps.Body}); err != nil {
		c.fail(ps, err.Error())
		return fmt.Errorf("submit %s: %w", ps.TempID, err)
	}
	metrics.Sends.WithLabelValues("submitted").Inc()

	tempID := ps.TempID
	c.sched.Schedule(timeoutKey(tempID), c.timeout, func() {
		if p, ok := c.pending[tempID]; ok && p.Status == sync.Pending {
			c.fail(p, ReasonTimeout)
		}
	})

	if c.NotifyRecipient != nil {
		conv, body := ps.ConversationID, ps.Body
		notify.FireAndForget(c.logger, "notify_recipient", func() error {
			return c.NotifyRecipient(conv, body)
		})
	}
	return nil
}

func (c *Controller) fail(ps *PendingSend, reason string) {
	c.sched.Cancel(timeoutKey(ps.TempID))
	ps.Status = sync.Failed
	ps.FailureReason = reason
	c.messages.MarkFailed(ps.ConversationID, ps.TempID, reason)
	metrics.Sends.WithLabelValues("failed").Inc()
	c.logger.Warn("send failed",
		zap.String("temp_id", ps.TempID),
		zap.String("conversation", ps.ConversationID),
		zap.String("reason", reason))
	c.bus.Publish(bus.Event{
		Kind:           bus.MessageSendFailed,
		ConversationID: ps.ConversationID,
		Timestamp:      c.clock.Now(),
		Payload:        Failure{TempID: ps.TempID, ConversationID: ps.ConversationID, Reason: reason},
	})
}

// Confirm matches a server message sent by the local user to the oldest
// pending or failed send of the same conversation with the same content,
// and replaces that entry in place. A failed send matches only within
// LateConfirmFactor timeouts of its last submission. Reports whether a
// send matched.
func (c *Controller) Confirm(server sync.Message) bool {
	body := strings.TrimSpace(server.Body)
	now := c.clock.Now()
	idx := slices.IndexFunc(c.order, func(id string) bool {
		ps := c.pending[id]
		if ps.ConversationID != server.ConversationID || ps.Body != body {
			return false
		}
		return ps.Status != sync.Failed || now.Sub(ps.SubmittedAt) <= LateConfirmFactor*c.timeout
	})
	if idx < 0 {
		return false
	}
	ps := c.pending[c.order[idx]]
	c.forget(idx)

	c.messages.Confirm(ps.ConversationID, ps.TempID, server)
	metrics.Sends.WithLabelValues("confirmed").Inc()
	c.logger.Info("send confirmed", zap.String("temp_id", ps.TempID), zap.String("server_id", server.ID))
	c.bus.Publish(bus.Event{
		Kind:           bus.MessageSendAck,
		ConversationID: ps.ConversationID,
		Timestamp:      c.clock.Now(),
		Payload:        Ack{TempID: ps.TempID, ServerID: server.ID, ConversationID: ps.ConversationID},
	})
	return true
}

func (c *Controller) forget(idx int) {
	id := c.order[idx]
	c.sched.Cancel(timeoutKey(id))
	delete(c.pending, id)
	c.order = slices.Delete(c.order, idx, idx+1)
}

// Retry resubmits a FAILED send in its original slot.
func (c *Controller) Retry(tempID string) error {
	ps, ok := c.pending[tempID]
	if !ok {
		return ErrUnknownSend
	}
	if ps.Status != sync.Failed {
		return ErrNotFailed
	}
	if c.conn.State() != status.Open {
		return ErrNotConnected
	}
	ps.Status = sync.Pending
	ps.FailureReason = ""
	ps.Attempts++
	ps.SubmittedAt = c.clock.Now()
	c.messages.MarkPending(ps.ConversationID, tempID)
	metrics.Sends.WithLabelValues("retried").Inc()
	return c.submit(ps)
}

// Discard drops a send and removes its message.
func (c *Controller) Discard(tempID string) error {
	idx := slices.Index(c.order, tempID)
	if idx < 0 {
		return ErrUnknownSend
	}
	ps := c.pending[tempID]
	c.forget(idx)
	c.messages.Remove(ps.ConversationID, tempID)
	return nil
}

// FailAll marks every PENDING send FAILED, e.g. when the connection drops.
func (c *Controller) FailAll(reason string) int {
	n := 0
	for _, id := range c.order {
		if ps := c.pending[id]; ps.Status == sync.Pending {
			c.fail(ps, reason)
			n++
		}
	}
	return n
}

// Get returns a copy of the send with tempID.
func (c *Controller) Get(tempID string) (PendingSend, bool) {
	ps, ok := c.pending[tempID]
	if !ok {
		return PendingSend{}, false
	}
	return *ps, true
}

// Pending lists live sends in submission order.
func (c *Controller) Pending() []PendingSend {
	out := make([]PendingSend, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.pending[id])
	}
	return out
}
