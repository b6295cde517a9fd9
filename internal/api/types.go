package api

import (
	"time"

	"github.com/matheus3301/rentchat/internal/engine"
	"github.com/matheus3301/rentchat/internal/notify"
	"github.com/matheus3301/rentchat/internal/outbox"
	"github.com/matheus3301/rentchat/internal/presence"
	"github.com/matheus3301/rentchat/internal/status"
	"github.com/matheus3301/rentchat/internal/store"
	"github.com/matheus3301/rentchat/internal/sync"
	"github.com/matheus3301/rentchat/internal/typing"
)

// Wire messages. Timestamps are unix milliseconds; 0 means unknown.

type Empty struct{}

type ChannelStatus struct {
	Channel         string `cbor:"channel"`
	State           string `cbor:"state"`
	Attempts        int    `cbor:"attempts"`
	LastHeartbeatMs int64  `cbor:"last_heartbeat_ms,omitempty"`
}

type StatusResponse struct {
	Session           string        `cbor:"session"`
	UserID            string        `cbor:"user_id"`
	UptimeMs          int64         `cbor:"uptime_ms"`
	Messaging         ChannelStatus `cbor:"messaging"`
	Presence          ChannelStatus `cbor:"presence"`
	Current           string        `cbor:"current,omitempty"`
	ConversationCount int64         `cbor:"conversation_count"`
	MessageCount      int64         `cbor:"message_count"`
	PendingSends      int           `cbor:"pending_sends"`
}

type PresenceEntry struct {
	UserID     string `cbor:"user_id"`
	UserName   string `cbor:"user_name,omitempty"`
	IsOnline   bool   `cbor:"is_online"`
	LastSeenMs int64  `cbor:"last_seen_ms,omitempty"`
}

type PresenceResponse struct {
	Users []PresenceEntry `cbor:"users"`
}

type Conversation struct {
	ID             string `cbor:"id"`
	Title          string `cbor:"title,omitempty"`
	Preview        string `cbor:"preview,omitempty"`
	Unread         int    `cbor:"unread"`
	LastActivityMs int64  `cbor:"last_activity_ms,omitempty"`
	Live           bool   `cbor:"live"`
}

type ListConversationsRequest struct {
	Limit  int `cbor:"limit,omitempty"`
	Offset int `cbor:"offset,omitempty"`
}

type ConversationsResponse struct {
	Conversations []Conversation `cbor:"conversations"`
}

type Message struct {
	ID             string `cbor:"id"`
	ConversationID string `cbor:"conversation_id"`
	SenderID       string `cbor:"sender_id,omitempty"`
	SenderName     string `cbor:"sender_name,omitempty"`
	Body           string `cbor:"body"`
	SentAtMs       int64  `cbor:"sent_at_ms,omitempty"`
	Read           bool   `cbor:"read"`
	FromMe         bool   `cbor:"from_me"`
	Status         string `cbor:"status,omitempty"`
	FailureReason  string `cbor:"failure_reason,omitempty"`
}

type ConversationRef struct {
	ConversationID string `cbor:"conversation_id"`
}

type MessagesResponse struct {
	Messages []Message `cbor:"messages"`
	HasMore  bool      `cbor:"has_more,omitempty"`
}

type HistoryRequest struct {
	ConversationID string `cbor:"conversation_id"`
	BeforeMs       int64  `cbor:"before_ms,omitempty"`
	Limit          int    `cbor:"limit,omitempty"`
}

type SearchRequest struct {
	Query          string `cbor:"query"`
	ConversationID string `cbor:"conversation_id,omitempty"`
	Limit          int    `cbor:"limit,omitempty"`
}

type SearchResult struct {
	Message Message `cbor:"message"`
	Snippet string  `cbor:"snippet"`
}

type SearchResponse struct {
	Results []SearchResult `cbor:"results"`
}

type SendRequest struct {
	ConversationID string `cbor:"conversation_id"`
	Body           string `cbor:"body"`
}

type SendResponse struct {
	TempID  string  `cbor:"temp_id,omitempty"`
	Message Message `cbor:"message"`
}

type TempRef struct {
	TempID string `cbor:"temp_id"`
}

type MarkReadResponse struct {
	IDs []string `cbor:"ids"`
}

type Typer struct {
	UserID   string `cbor:"user_id"`
	UserName string `cbor:"user_name,omitempty"`
	SinceMs  int64  `cbor:"since_ms"`
}

type TypingResponse struct {
	Users []Typer `cbor:"users"`
}

type PendingSend struct {
	TempID         string `cbor:"temp_id"`
	ConversationID string `cbor:"conversation_id"`
	Body           string `cbor:"body"`
	Status         string `cbor:"status"`
	Attempts       int    `cbor:"attempts"`
	FailureReason  string `cbor:"failure_reason,omitempty"`
	SubmittedAtMs  int64  `cbor:"submitted_at_ms"`
}

type PendingResponse struct {
	Sends []PendingSend `cbor:"sends"`
}

type WatchRequest struct {
	// Prefix filters events by kind ("message.", "conn."). Empty means all.
	Prefix string `cbor:"prefix,omitempty"`
}

// KindWatchLagged is sent on a watch stream in place of events the
// subscriber was too slow to receive; Count says how many. Clients should
// reload what they cache.
const KindWatchLagged = "watch.lagged"

// Event is one bus event. Exactly the field matching Kind is set.
type Event struct {
	ID             string         `cbor:"id"`
	Seq            uint64         `cbor:"seq"`
	Session        string         `cbor:"session"`
	Kind           string         `cbor:"kind"`
	ConversationID string         `cbor:"conversation_id,omitempty"`
	AtMs           int64          `cbor:"at_ms"`
	Message        *Message       `cbor:"message,omitempty"`
	PreviousID     string         `cbor:"previous_id,omitempty"`
	IDs            []string       `cbor:"ids,omitempty"`
	Channel        *ChannelStatus `cbor:"channel,omitempty"`
	Conversation   *Conversation  `cbor:"conversation,omitempty"`
	Typing         []Typer        `cbor:"typing,omitempty"`
	Presence       *PresenceEntry `cbor:"presence,omitempty"`
	Alert          *Alert         `cbor:"alert,omitempty"`
	TempID         string         `cbor:"temp_id,omitempty"`
	Text           string         `cbor:"text,omitempty"`
	Count          int            `cbor:"count,omitempty"`
}

type Alert struct {
	Message  string `cbor:"message"`
	Severity string `cbor:"severity"`
	Sticky   bool   `cbor:"sticky,omitempty"`
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromSync(m sync.Message) Message {
	return Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Body:           m.Body,
		SentAtMs:       millis(m.SentAt),
		Read:           m.Read,
		FromMe:         m.Provenance == sync.Local,
		Status:         string(m.Status),
		FailureReason:  m.FailureReason,
	}
}

func fromStore(m *store.Message) Message {
	return Message{
		ID:             m.MsgID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Body:           m.Body,
		SentAtMs:       m.SentAt,
		Read:           m.Read,
		FromMe:         m.FromMe,
		Status:         string(sync.Sent),
	}
}

func fromChannel(c engine.ChannelStatus) ChannelStatus {
	return ChannelStatus{
		Channel:         c.Channel,
		State:           string(c.State),
		Attempts:        c.Attempts,
		LastHeartbeatMs: millis(c.LastHeartbeat),
	}
}

func fromPresence(e presence.Entry) PresenceEntry {
	return PresenceEntry{UserID: e.UserID, UserName: e.UserName, IsOnline: e.IsOnline, LastSeenMs: millis(e.LastSeen)}
}

func fromTyping(entries []typing.Entry) []Typer {
	out := make([]Typer, len(entries))
	for i, e := range entries {
		out[i] = Typer{UserID: e.UserID, UserName: e.UserName, SinceMs: millis(e.Since)}
	}
	return out
}

func fromPending(p outbox.PendingSend) PendingSend {
	return PendingSend{
		TempID:         p.TempID,
		ConversationID: p.ConversationID,
		Body:           p.Body,
		Status:         string(p.Status),
		Attempts:       p.Attempts,
		FailureReason:  p.FailureReason,
		SubmittedAtMs:  millis(p.SubmittedAt),
	}
}

func fromStateChange(c status.StateChange) *ChannelStatus {
	return &ChannelStatus{Channel: c.Channel, State: string(c.To)}
}

func fromAlert(a notify.Alert) *Alert {
	return &Alert{Message: a.Message, Severity: string(a.Severity), Sticky: a.Options.Sticky}
}
