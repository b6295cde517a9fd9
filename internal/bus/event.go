package bus

import "time"

// Event kinds published by the engine. Subscribers filter by prefix, so
// "message." receives every message kind.
const (
	ConnStateChanged = "conn.state_changed"
	ConnGaveUp       = "conn.gave_up"

	MessageAppended   = "message.appended"
	MessageUpdated    = "message.updated"
	MessageRemoved    = "message.removed"
	MessageRead       = "message.read"
	MessageSendAck    = "message.send_ack"
	MessageSendFailed = "message.send_failed"

	ConversationUpdated = "conversation.updated"
	TypingChanged       = "typing.changed"
	PresenceChanged     = "presence.changed"

	NotifyDisplay = "notify.display"
	NotifyPending = "notify.pending"
	ServerError   = "server.error"
)

// Event is one domain event. Seq increases by one per Publish on a bus.
type Event struct {
	Seq            uint64
	Kind           string
	ConversationID string
	Timestamp      time.Time
	Payload        any
}
