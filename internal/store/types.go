package store

// Conversation is a journaled conversation row.
type Conversation struct {
	ID                 string
	Title              string
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
}

// Message is a journaled, server-confirmed message. ID is the row id used
// as the FTS docid; MsgID is the server id.
type Message struct {
	ID             int64
	ConversationID string
	MsgID          string
	SenderID       string
	SenderName     string
	Body           string
	FromMe         bool
	Read           bool
	SentAt         int64
}

// Presence is the last known status of a user.
type Presence struct {
	UserID   string
	UserName string
	IsOnline bool
	LastSeen int64
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
