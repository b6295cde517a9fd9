package protocol

import (
	"encoding/json"
	"fmt"
)

// Outbound frame types.
const (
	TypeSendMessage       = "send_message"
	TypeMarkAsRead        = "mark_as_read"
	TypeTypingStart       = "typing_start"
	TypeTypingStop        = "typing_stop"
	TypeJoinConversation  = "join_conversation"
	TypeLeaveConversation = "leave_conversation"
	TypeHeartbeat         = "heartbeat"
	TypePing              = "ping"
)

// Command is an outbound frame.
type Command interface {
	Type() string
}

type SendMessage struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

type MarkAsRead struct {
	ConversationID string   `json:"conversation_id"`
	MessageIDs     []string `json:"message_ids"`
}

type TypingStart struct {
	ConversationID string `json:"conversation_id"`
}

type TypingStop struct {
	ConversationID string `json:"conversation_id"`
}

type JoinConversation struct {
	ConversationID string `json:"conversation_id"`
}

type LeaveConversation struct {
	ConversationID string `json:"conversation_id"`
}

// Heartbeat keeps the presence channel alive. Timestamp is unix milliseconds.
type Heartbeat struct {
	Timestamp int64 `json:"timestamp"`
}

// Ping keeps the messaging channel alive; the server answers with pong.
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

func (SendMessage) Type() string       { return TypeSendMessage }
func (MarkAsRead) Type() string        { return TypeMarkAsRead }
func (TypingStart) Type() string       { return TypeTypingStart }
func (TypingStop) Type() string        { return TypeTypingStop }
func (JoinConversation) Type() string  { return TypeJoinConversation }
func (LeaveConversation) Type() string { return TypeLeaveConversation }
func (Heartbeat) Type() string         { return TypeHeartbeat }
func (Ping) Type() string              { return TypePing }

// Encode renders cmd as a flat JSON object with "type" as the first key.
func Encode(cmd Command) ([]byte, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.Type(), err)
	}
	typ, _ := json.Marshal(cmd.Type())
	out := make([]byte, 0, len(body)+len(typ)+10)
	out = append(out, `{"type":`...)
	out = append(out, typ...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}
