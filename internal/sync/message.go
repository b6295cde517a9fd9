package sync

import (
	"time"

	"github.com/matheus3301/rentchat/internal/protocol"
)

// Status is the delivery status of a message.
type Status string

const (
	Pending Status = "PENDING"
	Sent    Status = "SENT"
	Failed  Status = "FAILED"
)

// Provenance tells whether a message was written on this client or pushed
// by the server.
type Provenance string

const (
	Local  Provenance = "LOCAL"
	Remote Provenance = "REMOTE"
)

// Message is one entry of a conversation's ordered sequence. ID is the
// server id once confirmed and a client temporary id before that.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderName     string
	Body           string
	SentAt         time.Time
	Read           bool
	Status         Status
	Provenance     Provenance
	FailureReason  string
}

// Conversation summarizes one conversation slot.
type Conversation struct {
	ID           string
	Messages     int
	Unread       int
	LastActivity time.Time
}

// MessageChange is the payload of message.updated. PreviousID differs from
// Message.ID when a pending entry was confirmed under its server id.
type MessageChange struct {
	PreviousID string
	Message    Message
}

// ReadChange is the payload of message.read.
type ReadChange struct {
	ConversationID string
	IDs            []string
}

// FromWire converts a server message. Provenance is derived from the sender
// and the status is always SENT: the server only pushes stored messages.
func FromWire(conv string, w protocol.WireMessage, localUser string) Message {
	if conv == "" {
		conv = string(w.ConversationID)
	}
	m := Message{
		ID:             string(w.ID),
		ConversationID: conv,
		SenderID:       string(w.SenderID),
		SenderName:     w.SenderName,
		Body:           w.Content,
		SentAt:         w.SentAt.Time,
		Read:           w.Read,
		Status:         Sent,
		Provenance:     Remote,
	}
	if localUser != "" && m.SenderID == localUser {
		m.Provenance = Local
	}
	return m
}

// Thread is the payload of conversation.updated when the conversation's
// metadata was refreshed from the REST API.
type Thread struct {
	ConversationID string
	Title          string
	Participants   []string
}
