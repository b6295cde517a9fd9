// Package protocol defines the JSON frames exchanged with the realtime
// servers: a closed set of inbound events and the outbound commands.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound frame types.
const (
	KindNewMessage           = "new_message"
	KindMessageReadUpdate    = "message_read_update"
	KindTypingNotification   = "typing_notification"
	KindConversationUpdated  = "conversation_updated"
	KindUserStatusUpdate     = "user_status_update"
	KindPendingNotifications = "pending_notifications"
	KindError                = "error"
	KindPong                 = "pong"
)

var (
	ErrMissingType = errors.New("frame has no type")
	ErrInvalid     = errors.New("invalid frame")
)

// Event is one decoded inbound frame. The set of implementations is closed:
// every variant lives in this package.
type Event interface {
	Kind() string
	// Dispatch calls the Handler method for this variant.
	Dispatch(h Handler)
	validate() error
}

// Handler has one method per Event variant. Adding a variant adds a method
// here, which breaks every Handler that does not handle it.
type Handler interface {
	OnNewMessage(NewMessage)
	OnMessageReadUpdate(MessageReadUpdate)
	OnTypingNotification(TypingNotification)
	OnConversationUpdated(ConversationUpdated)
	OnUserStatusUpdate(UserStatusUpdate)
	OnPendingNotifications(PendingNotifications)
	OnServerError(ServerError)
	OnPong(Pong)
	OnUnknown(Unknown)
}

// WireMessage is the message object carried by new_message.
type WireMessage struct {
	ID             ID     `json:"id"`
	ConversationID ID     `json:"conversation_id,omitempty"`
	SenderID       ID     `json:"sender_id"`
	SenderName     string `json:"sender_name,omitempty"`
	Content        string `json:"content"`
	SentAt         Time   `json:"sent_at"`
	Read           bool   `json:"read,omitempty"`
}

type NewMessage struct {
	ConversationID ID          `json:"conversation_id"`
	Message        WireMessage `json:"message"`
}

func (NewMessage) Kind() string         { return KindNewMessage }
func (e NewMessage) Dispatch(h Handler) { h.OnNewMessage(e) }
func (e NewMessage) validate() error {
	if e.ConversationID == "" || e.Message.ID == "" {
		return fmt.Errorf("%w: new_message needs conversation_id and message.id", ErrInvalid)
	}
	return nil
}

type MessageReadUpdate struct {
	ConversationID ID   `json:"conversation_id"`
	MessageIDs     []ID `json:"message_ids"`
}

func (MessageReadUpdate) Kind() string         { return KindMessageReadUpdate }
func (e MessageReadUpdate) Dispatch(h Handler) { h.OnMessageReadUpdate(e) }
func (e MessageReadUpdate) validate() error {
	if e.ConversationID == "" {
		return fmt.Errorf("%w: message_read_update needs conversation_id", ErrInvalid)
	}
	return nil
}

type TypingNotification struct {
	UserID         ID     `json:"user_id"`
	UserName       string `json:"user_name"`
	ConversationID ID     `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}

func (TypingNotification) Kind() string         { return KindTypingNotification }
func (e TypingNotification) Dispatch(h Handler) { h.OnTypingNotification(e) }
func (e TypingNotification) validate() error {
	if e.ConversationID == "" || e.UserID == "" {
		return fmt.Errorf("%w: typing_notification needs conversation_id and user_id", ErrInvalid)
	}
	return nil
}

type ConversationUpdated struct {
	ConversationID ID `json:"conversation_id"`
}

func (ConversationUpdated) Kind() string         { return KindConversationUpdated }
func (e ConversationUpdated) Dispatch(h Handler) { h.OnConversationUpdated(e) }
func (e ConversationUpdated) validate() error {
	if e.ConversationID == "" {
		return fmt.Errorf("%w: conversation_updated needs conversation_id", ErrInvalid)
	}
	return nil
}

type UserStatusUpdate struct {
	UserID   ID     `json:"user_id"`
	UserName string `json:"user_name"`
	IsOnline bool   `json:"is_online"`
	LastSeen Time   `json:"last_seen"`
}

func (UserStatusUpdate) Kind() string         { return KindUserStatusUpdate }
func (e UserStatusUpdate) Dispatch(h Handler) { h.OnUserStatusUpdate(e) }
func (e UserStatusUpdate) validate() error {
	if e.UserID == "" {
		return fmt.Errorf("%w: user_status_update needs user_id", ErrInvalid)
	}
	return nil
}

// PendingNotifications carries notifications queued while the client was
// away. Their shape belongs to the notification service, so they stay raw.
type PendingNotifications struct {
	Notifications []json.RawMessage `json:"notifications"`
	Count         int               `json:"count"`
}

func (PendingNotifications) Kind() string         { return KindPendingNotifications }
func (e PendingNotifications) Dispatch(h Handler) { h.OnPendingNotifications(e) }
func (PendingNotifications) validate() error      { return nil }

// Total returns Count, or the number of notifications when Count is absent.
func (e PendingNotifications) Total() int {
	if e.Count > 0 {
		return e.Count
	}
	return len(e.Notifications)
}

type ServerError struct {
	Message string `json:"message"`
}

func (ServerError) Kind() string         { return KindError }
func (e ServerError) Dispatch(h Handler) { h.OnServerError(e) }
func (ServerError) validate() error      { return nil }

type Pong struct {
	Timestamp int64 `json:"timestamp,omitempty"`
}

func (Pong) Kind() string         { return KindPong }
func (e Pong) Dispatch(h Handler) { h.OnPong(e) }
func (Pong) validate() error      { return nil }

// Unknown is a well-formed frame whose type this client does not know.
type Unknown struct {
	Type string
	Raw  []byte
}

func (e Unknown) Kind() string       { return e.Type }
func (e Unknown) Dispatch(h Handler) { h.OnUnknown(e) }
func (Unknown) validate() error      { return nil }

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses one inbound frame. Fields are read from the top level, or
// from "payload" when the server wraps them in one.
func Decode(frame []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}
	body := frame
	if len(env.Payload) > 0 && env.Payload[0] == '{' {
		body = env.Payload
	}

	switch env.Type {
	case KindNewMessage:
		ev, err := decodeAs[NewMessage](env.Type, body)
		if err != nil {
			return nil, err
		}
		nm := ev.(NewMessage)
		if nm.ConversationID == "" {
			nm.ConversationID = nm.Message.ConversationID
		}
		return checked(nm)
	case KindMessageReadUpdate:
		return decodeChecked[MessageReadUpdate](env.Type, body)
	case KindTypingNotification:
		return decodeChecked[TypingNotification](env.Type, body)
	case KindConversationUpdated:
		return decodeChecked[ConversationUpdated](env.Type, body)
	case KindUserStatusUpdate:
		return decodeChecked[UserStatusUpdate](env.Type, body)
	case KindPendingNotifications:
		return decodeChecked[PendingNotifications](env.Type, body)
	case KindError:
		return decodeChecked[ServerError](env.Type, body)
	case KindPong:
		return decodeChecked[Pong](env.Type, body)
	default:
		return Unknown{Type: env.Type, Raw: frame}, nil
	}
}

func decodeAs[T Event](kind string, body []byte) (Event, error) {
	var ev T
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return ev, nil
}

func decodeChecked[T Event](kind string, body []byte) (Event, error) {
	ev, err := decodeAs[T](kind, body)
	if err != nil {
		return nil, err
	}
	return checked(ev)
}

func checked(ev Event) (Event, error) {
	if err := ev.validate(); err != nil {
		return nil, err
	}
	return ev, nil
}
