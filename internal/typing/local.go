// Package typing implements both halves of the typing indicator: the local
// user's start/stop signalling and the expiring set of remote typers.
package typing

import (
	"time"

	"github.com/matheus3301/rentchat/internal/protocol"
	"github.com/matheus3301/rentchat/internal/sched"
	"go.uber.org/zap"
)

// DefaultIdle is how long after the last keystroke typing_stop is sent.
const DefaultIdle = 3 * time.Second

// Sender submits a command on the messaging channel.
type Sender interface {
	Send(cmd protocol.Command) error
}

// Local tracks whether the local user is typing in each conversation.
// Engine loop only.
type Local struct {
	sender Sender
	sched  *sched.Scheduler
	idle   time.Duration
	logger *zap.Logger

	typing map[string]bool
}

func NewLocal(s Sender, sc *sched.Scheduler, idle time.Duration, logger *zap.Logger) *Local {
	if idle <= 0 {
		idle = DefaultIdle
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{
		sender: s,
		sched:  sc,
		idle:   idle,
		logger: logger,
		typing: make(map[string]bool),
	}
}

func idleKey(conv string) sched.Key {
	return sched.Key{Feature: sched.TypingIdle, ID: conv}
}

// Keystroke sends typing_start on the first keystroke and pushes the idle
// deadline back on every keystroke. If typing_start cannot be sent the
// flag stays clear, so the next keystroke tries again.
func (l *Local) Keystroke(conv string) error {
	if !l.typing[conv] {
		if err := l.sender.Send(protocol.TypingStart{ConversationID: conv}); err != nil {
			return err
		}
		l.typing[conv] = true
	}
	l.sched.Schedule(idleKey(conv), l.idle, func() { l.Stop(conv) })
	return nil
}

// Stop ends the typing state for conv, sending typing_stop if it was set.
// Called on idle expiry and when a message is sent.
func (l *Local) Stop(conv string) {
	l.sched.Cancel(idleKey(conv))
	if !l.typing[conv] {
		return
	}
	delete(l.typing, conv)
	if err := l.sender.Send(protocol.TypingStop{ConversationID: conv}); err != nil {
		l.logger.Debug("typing_stop not sent", zap.String("conversation", conv), zap.Error(err))
	}
}

// Reset clears every flag and idle timer without sending anything. Used
// when the connection drops: the server forgets typers on its own.
func (l *Local) Reset() {
	l.sched.CancelFeature(sched.TypingIdle)
	clear(l.typing)
}

// IsTyping reports whether typing_start is in effect for conv.
func (l *Local) IsTyping(conv string) bool {
	return l.typing[conv]
}
