package engine

import (
	"context"
	"strings"
	"time"

	"github.com/matheus3301/rentchat/internal/outbox"
	"github.com/matheus3301/rentchat/internal/presence"
	"github.com/matheus3301/rentchat/internal/protocol"
	"github.com/matheus3301/rentchat/internal/status"
	"github.com/matheus3301/rentchat/internal/sync"
	"github.com/matheus3301/rentchat/internal/typing"
	"go.uber.org/zap"
)

// ConversationView is a conversation summary with its title, when known.
type ConversationView struct {
	sync.Conversation
	Title string
}

// ChannelStatus describes one realtime channel.
type ChannelStatus struct {
	Channel       string
	State         status.State
	Attempts      int
	LastHeartbeat time.Time
}

// Connectivity is the state of both channels plus the foreground
// conversation.
type Connectivity struct {
	Messaging ChannelStatus
	Presence  ChannelStatus
	Current   string
}

// call runs fn on the loop and returns its result.
func call[T any](ctx context.Context, e *Engine, fn func() (T, error)) (T, error) {
	var (
		out T
		err error
	)
	if derr := e.loop.Do(ctx, func() { out, err = fn() }); derr != nil {
		var zero T
		return zero, derr
	}
	return out, err
}

func (e *Engine) do(ctx context.Context, fn func()) error {
	return e.loop.Do(ctx, fn)
}

// Send submits body to conv and returns the temporary id of the pending
// message. The message is visible immediately with status PENDING.
func (e *Engine) Send(ctx context.Context, conv, body string) (string, error) {
	return call(ctx, e, func() (string, error) {
		id, err := e.outbox.Send(conv, body)
		if id != "" {
			e.local.Stop(conv)
		}
		return id, err
	})
}

// SendFallback posts body through the REST API instead of the realtime
// channel. The stored message is reconciled like any server message.
func (e *Engine) SendFallback(ctx context.Context, conv, body string) (sync.Message, error) {
	if strings.TrimSpace(body) == "" {
		return sync.Message{}, outbox.ErrEmptyBody
	}
	if e.rest == nil {
		return sync.Message{}, ErrNoREST
	}
	w, err := e.rest.CreateMessage(ctx, conv, strings.TrimSpace(body))
	if err != nil {
		return sync.Message{}, err
	}
	return call(ctx, e, func() (sync.Message, error) {
		m := sync.FromWire(conv, *w, e.cfg.UserID)
		e.reconciler.ApplyNew(m)
		return m, nil
	})
}

// Retry resubmits a FAILED message under the same temporary id.
func (e *Engine) Retry(ctx context.Context, tempID string) error {
	return e.doErr(ctx, func() error { return e.outbox.Retry(tempID) })
}

// Discard drops a FAILED or PENDING message.
func (e *Engine) Discard(ctx context.Context, tempID string) error {
	return e.doErr(ctx, func() error { return e.outbox.Discard(tempID) })
}

func (e *Engine) doErr(ctx context.Context, fn func() error) error {
	var err error
	if derr := e.loop.Do(ctx, func() { err = fn() }); derr != nil {
		return derr
	}
	return err
}

// Join makes conv the foreground conversation and marks what it holds as
// read. The join frame is best-effort; it is re-sent on reconnect.
func (e *Engine) Join(ctx context.Context, conv string) error {
	return e.do(ctx, func() {
		if err := e.membership.Join(conv); err != nil {
			e.logger.Debug("join not sent", zap.String("conversation", conv), zap.Error(err))
		}
		if ids := e.reconciler.MarkConversationRead(conv); len(ids) > 0 {
			e.sendMarkRead(conv, ids)
		}
	})
}

// Leave sends conv to the background and stops any local typing on it.
func (e *Engine) Leave(ctx context.Context, conv string) error {
	return e.do(ctx, func() {
		e.local.Stop(conv)
		if err := e.membership.Leave(conv); err != nil {
			e.logger.Debug("leave not sent", zap.String("conversation", conv), zap.Error(err))
		}
	})
}

// Keystroke reports local typing activity on conv.
func (e *Engine) Keystroke(ctx context.Context, conv string) error {
	return e.doErr(ctx, func() error { return e.local.Keystroke(conv) })
}

// StopTyping ends local typing on conv immediately.
func (e *Engine) StopTyping(ctx context.Context, conv string) error {
	return e.do(ctx, func() { e.local.Stop(conv) })
}

// MarkRead marks every unread message of conv as read and tells the server.
func (e *Engine) MarkRead(ctx context.Context, conv string) ([]string, error) {
	return call(ctx, e, func() ([]string, error) {
		ids := e.reconciler.MarkConversationRead(conv)
		if len(ids) > 0 {
			if err := e.messaging.Send(protocol.MarkAsRead{ConversationID: conv, MessageIDs: ids}); err != nil {
				return ids, err
			}
		}
		return ids, nil
	})
}

func (e *Engine) Messages(ctx context.Context, conv string) ([]sync.Message, error) {
	return call(ctx, e, func() ([]sync.Message, error) { return e.reconciler.Messages(conv), nil })
}

func (e *Engine) Conversations(ctx context.Context) ([]ConversationView, error) {
	return call(ctx, e, func() ([]ConversationView, error) {
		convs := e.reconciler.Conversations()
		out := make([]ConversationView, len(convs))
		for i, c := range convs {
			out[i] = ConversationView{Conversation: c, Title: e.titles[c.ID]}
		}
		return out, nil
	})
}

func (e *Engine) Typing(ctx context.Context, conv string) ([]typing.Entry, error) {
	return call(ctx, e, func() ([]typing.Entry, error) { return e.typers.Typing(conv), nil })
}

func (e *Engine) Presence(ctx context.Context) ([]presence.Entry, error) {
	return call(ctx, e, func() ([]presence.Entry, error) { return e.presence.List(), nil })
}

func (e *Engine) Pending(ctx context.Context) ([]outbox.PendingSend, error) {
	return call(ctx, e, func() ([]outbox.PendingSend, error) { return e.outbox.Pending(), nil })
}

// Connectivity reports both channels. Channel state is read directly; only
// the foreground conversation comes from the loop.
func (e *Engine) Connectivity(ctx context.Context) Connectivity {
	c := Connectivity{Messaging: channelStatus(e.messaging)}
	if e.presenceCh != nil {
		c.Presence = channelStatus(e.presenceCh)
	}
	_ = e.do(ctx, func() { c.Current = e.membership.Current() })
	return c
}

func channelStatus(c Connection) ChannelStatus {
	return ChannelStatus{
		Channel:       c.Channel(),
		State:         c.State(),
		Attempts:      c.Attempts(),
		LastHeartbeat: c.LastHeartbeat(),
	}
}
