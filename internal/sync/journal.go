package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/presence"
	"github.com/matheus3301/rentchat/internal/store"
	"go.uber.org/zap"
)

const previewLen = 100

// Journal persists reconciled state to the session database. It
// subscribes to the bus, so the reconciler never waits on disk. Only
// server-confirmed messages are journaled; pending and failed sends live
// in memory until they are confirmed.
type Journal struct {
	db          *store.DB
	checkpoints *Checkpoints
	bus         *bus.Bus
	logger      *zap.Logger
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewJournal creates a new journal.
func NewJournal(db *store.DB, cp *Checkpoints, b *bus.Bus, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{
		db:          db,
		checkpoints: cp,
		bus:         b,
		logger:      logger,
	}
}

// Start subscribes to message, conversation and presence events.
func (j *Journal) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	j.done = make(chan struct{})
	ch, unsub := j.bus.Subscribe("", 1024)

	go func() {
		defer close(j.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				j.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the journal and waits for the in-flight write.
func (j *Journal) Stop() {
	if j.cancel != nil {
		j.cancel()
		<-j.done
	}
}

func (j *Journal) handleEvent(evt bus.Event) {
	var err error
	switch p := evt.Payload.(type) {
	case Message:
		if evt.Kind == bus.MessageAppended {
			err = j.RecordMessage(p)
		}
	case MessageChange:
		err = j.RecordMessage(p.Message)
	case ReadChange:
		err = j.db.MarkMessagesRead(p.ConversationID, p.IDs)
	case Conversation:
		err = j.db.UpsertConversation(&store.Conversation{
			ID:            p.ID,
			UnreadCount:   p.Unread,
			LastMessageAt: millis(p.LastActivity),
		})
	case Thread:
		err = j.db.SetConversationTitle(p.ConversationID, p.Title)
	case presence.Entry:
		err = j.db.UpsertPresence(&store.Presence{
			UserID:   p.UserID,
			UserName: p.UserName,
			IsOnline: p.IsOnline,
			LastSeen: millis(p.LastSeen),
		})
	}
	if err != nil {
		j.logger.Error("journal write failed", zap.String("kind", evt.Kind), zap.Error(err))
	}
}

// RecordMessage journals m if it is server-confirmed (idempotent).
func (j *Journal) RecordMessage(m Message) error {
	if m.Status != Sent {
		return nil
	}
	ts := millis(m.SentAt)
	if err := j.db.UpsertConversation(&store.Conversation{
		ID:                 m.ConversationID,
		LastMessageAt:      ts,
		LastMessagePreview: truncate(m.Body, previewLen),
	}); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	if err := j.db.UpsertMessage(&store.Message{
		ConversationID: m.ConversationID,
		MsgID:          m.ID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Body:           m.Body,
		FromMe:         m.Provenance == Local,
		Read:           m.Read,
		SentAt:         ts,
	}); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	if j.checkpoints != nil {
		if err := j.checkpoints.Advance(m.ConversationID, m.SentAt); err != nil {
			return fmt.Errorf("advance checkpoint: %w", err)
		}
	}
	return nil
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}
