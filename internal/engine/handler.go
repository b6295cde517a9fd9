package engine

import (
	"context"
	"fmt"

	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/notify"
	"github.com/matheus3301/rentchat/internal/protocol"
	"github.com/matheus3301/rentchat/internal/sync"
	"go.uber.org/zap"
)

// The protocol.Handler methods below run on the engine loop.

var _ protocol.Handler = (*Engine)(nil)

func (e *Engine) OnNewMessage(ev protocol.NewMessage) {
	conv := string(ev.ConversationID)
	e.applyIncoming(conv, ev.Message)
	// A message from someone ends their typing indicator.
	if sender := string(ev.Message.SenderID); sender != "" && sender != e.cfg.UserID {
		e.typers.Apply(protocol.TypingNotification{
			UserID:         ev.Message.SenderID,
			ConversationID: ev.ConversationID,
		})
	}
}

func (e *Engine) OnMessageReadUpdate(ev protocol.MessageReadUpdate) {
	ids := make([]string, len(ev.MessageIDs))
	for i, id := range ev.MessageIDs {
		ids[i] = string(id)
	}
	e.reconciler.ApplyReadReceipt(string(ev.ConversationID), ids)
}

func (e *Engine) OnTypingNotification(ev protocol.TypingNotification) {
	if string(ev.UserID) == e.cfg.UserID {
		return
	}
	e.typers.Apply(ev)
}

func (e *Engine) OnConversationUpdated(ev protocol.ConversationUpdated) {
	conv := string(ev.ConversationID)
	e.reconciler.Touch(conv)
	if e.rest == nil {
		return
	}
	ctx := e.ctx
	go func() {
		rctx, cancel := context.WithTimeout(ctx, restTimeout)
		defer cancel()
		th, err := e.rest.GetThread(rctx, conv)
		if err != nil {
			e.logger.Debug("thread refresh failed", zap.String("conversation", conv), zap.Error(err))
			return
		}
		e.loop.Post(func() {
			e.titles[conv] = th.Title
			e.bus.Publish(bus.Event{
				Kind:           bus.ConversationUpdated,
				ConversationID: conv,
				Timestamp:      e.clock.Now(),
				Payload: sync.Thread{
					ConversationID: conv,
					Title:          th.Title,
					Participants:   th.ParticipantIDs,
				},
			})
		})
	}()
}

func (e *Engine) OnUserStatusUpdate(ev protocol.UserStatusUpdate) {
	entry, changed := e.presence.Apply(ev)
	if changed && !entry.IsOnline {
		e.typers.ClearUser(entry.UserID)
	}
}

func (e *Engine) OnPendingNotifications(ev protocol.PendingNotifications) {
	n := ev.Total()
	if n == 0 {
		return
	}
	e.bus.Publish(bus.Event{Kind: bus.NotifyPending, Timestamp: e.clock.Now(), Payload: n})
	e.display.Display(fmt.Sprintf("%d pending notifications", n), notify.Info, notify.Options{})
}

func (e *Engine) OnServerError(ev protocol.ServerError) {
	e.logger.Warn("server error", zap.String("message", ev.Message))
	e.bus.Publish(bus.Event{Kind: bus.ServerError, Timestamp: e.clock.Now(), Payload: ev.Message})
	e.display.Display("server: "+ev.Message, notify.Warning, notify.Options{})
}

func (e *Engine) OnPong(protocol.Pong) {}

func (e *Engine) OnUnknown(ev protocol.Unknown) {
	e.logger.Debug("unknown frame ignored", zap.String("type", ev.Type))
}
