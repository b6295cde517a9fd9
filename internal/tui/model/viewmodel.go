// Package model caches daemon state for the TUI and folds the daemon's
// event stream into it.
package model

import (
	"context"
	"sort"
	"sync"

	"github.com/matheus3301/rentchat/internal/api"
	"google.golang.org/grpc"
)

// SessionAPI is the part of the session service the TUI reads.
type SessionAPI interface {
	GetStatus(ctx context.Context, opts ...grpc.CallOption) (*api.StatusResponse, error)
	ListPresence(ctx context.Context, opts ...grpc.CallOption) (*api.PresenceResponse, error)
}

// ChatAPI is the part of the chat service the TUI drives.
type ChatAPI interface {
	ListConversations(ctx context.Context, in *api.ListConversationsRequest, opts ...grpc.CallOption) (*api.ConversationsResponse, error)
	ListMessages(ctx context.Context, in *api.ConversationRef, opts ...grpc.CallOption) (*api.MessagesResponse, error)
	History(ctx context.Context, in *api.HistoryRequest, opts ...grpc.CallOption) (*api.MessagesResponse, error)
	SearchMessages(ctx context.Context, in *api.SearchRequest, opts ...grpc.CallOption) (*api.SearchResponse, error)
	SendText(ctx context.Context, in *api.SendRequest, opts ...grpc.CallOption) (*api.SendResponse, error)
	SendFallback(ctx context.Context, in *api.SendRequest, opts ...grpc.CallOption) (*api.SendResponse, error)
	Retry(ctx context.Context, in *api.TempRef, opts ...grpc.CallOption) error
	Discard(ctx context.Context, in *api.TempRef, opts ...grpc.CallOption) error
	Join(ctx context.Context, in *api.ConversationRef, opts ...grpc.CallOption) error
	Leave(ctx context.Context, in *api.ConversationRef, opts ...grpc.CallOption) error
	MarkRead(ctx context.Context, in *api.ConversationRef, opts ...grpc.CallOption) (*api.MarkReadResponse, error)
	Keystroke(ctx context.Context, in *api.ConversationRef, opts ...grpc.CallOption) error
	ListTyping(ctx context.Context, in *api.ConversationRef, opts ...grpc.CallOption) (*api.TypingResponse, error)
	WatchEvents(ctx context.Context, in *api.WatchRequest, opts ...grpc.CallOption) (*api.EventStream, error)
}

// Change tells the UI which panes an event touched.
type Change struct {
	Conversations bool
	Messages      bool
	Typing        bool
	Status        bool
	Presence      bool
	Alert         *api.Alert
	// Resync means events were lost and the cache must be reloaded.
	Resync bool
}

// Any reports whether anything needs redrawing.
func (c Change) Any() bool {
	return c.Conversations || c.Messages || c.Typing || c.Status || c.Presence || c.Alert != nil || c.Resync
}

// ViewModel caches state from the daemon and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	session       SessionAPI
	chat          ChatAPI
	status        *api.StatusResponse
	conversations []api.Conversation
	messages      []api.Message
	typing        []api.Typer
	presence      []api.PresenceEntry
	active        string
}

// NewViewModel creates a view model backed by the daemon clients.
func NewViewModel(session SessionAPI, chat ChatAPI) *ViewModel {
	return &ViewModel{session: session, chat: chat}
}

// LoadStatus fetches the session and connectivity status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.session.GetStatus(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = resp
	vm.mu.Unlock()
	return nil
}

// LoadConversations fetches the conversation list.
func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	resp, err := vm.chat.ListConversations(ctx, &api.ListConversationsRequest{Limit: 200})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.conversations = resp.Conversations
	vm.mu.Unlock()
	return nil
}

// LoadPresence fetches the presence roster.
func (vm *ViewModel) LoadPresence(ctx context.Context) error {
	resp, err := vm.session.ListPresence(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.presence = resp.Users
	vm.mu.Unlock()
	return nil
}

// Open joins conv and loads its messages. Conversations the engine has not
// seen since the daemon started fall back to the journal.
func (vm *ViewModel) Open(ctx context.Context, conv string) error {
	ref := &api.ConversationRef{ConversationID: conv}
	if err := vm.chat.Join(ctx, ref); err != nil {
		return err
	}
	resp, err := vm.chat.ListMessages(ctx, ref)
	if err != nil {
		return err
	}
	msgs := resp.Messages
	if len(msgs) == 0 {
		hist, err := vm.chat.History(ctx, &api.HistoryRequest{ConversationID: conv, Limit: 100})
		if err != nil {
			return err
		}
		// History is newest first.
		msgs = hist.Messages
		sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].SentAtMs < msgs[j].SentAtMs })
	}
	typers, err := vm.chat.ListTyping(ctx, ref)
	if err != nil {
		return err
	}

	vm.mu.Lock()
	vm.active = conv
	vm.messages = msgs
	vm.typing = typers.Users
	for i := range vm.conversations {
		if vm.conversations[i].ID == conv {
			vm.conversations[i].Unread = 0
		}
	}
	vm.mu.Unlock()
	return nil
}

// Resync reloads everything the cache holds after lost events. The open
// conversation is reloaded without joining it again.
func (vm *ViewModel) Resync(ctx context.Context) error {
	if err := vm.LoadStatus(ctx); err != nil {
		return err
	}
	if err := vm.LoadConversations(ctx); err != nil {
		return err
	}
	conv := vm.Active()
	if conv == "" {
		return nil
	}
	resp, err := vm.chat.ListMessages(ctx, &api.ConversationRef{ConversationID: conv})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	if vm.active == conv && len(resp.Messages) > 0 {
		vm.messages = resp.Messages
	}
	vm.mu.Unlock()
	return nil
}

// Close leaves the active conversation.
func (vm *ViewModel) Close(ctx context.Context) error {
	vm.mu.Lock()
	conv := vm.active
	vm.active = ""
	vm.messages = nil
	vm.typing = nil
	vm.mu.Unlock()
	if conv == "" {
		return nil
	}
	return vm.chat.Leave(ctx, &api.ConversationRef{ConversationID: conv})
}

// Send submits text to the active conversation.
func (vm *ViewModel) Send(ctx context.Context, text string, fallback bool) (*api.SendResponse, error) {
	req := &api.SendRequest{ConversationID: vm.Active(), Body: text}
	if fallback {
		return vm.chat.SendFallback(ctx, req)
	}
	return vm.chat.SendText(ctx, req)
}

// MarkRead marks the active conversation read and returns how many
// messages changed.
func (vm *ViewModel) MarkRead(ctx context.Context) (int, error) {
	conv := vm.Active()
	if conv == "" {
		return 0, nil
	}
	resp, err := vm.chat.MarkRead(ctx, &api.ConversationRef{ConversationID: conv})
	if err != nil {
		return 0, err
	}
	return len(resp.IDs), nil
}

// Keystroke reports typing in the active conversation.
func (vm *ViewModel) Keystroke(ctx context.Context) error {
	conv := vm.Active()
	if conv == "" {
		return nil
	}
	return vm.chat.Keystroke(ctx, &api.ConversationRef{ConversationID: conv})
}

// RetryLastFailed retries the newest failed message in the active
// conversation. It returns false if there is none.
func (vm *ViewModel) RetryLastFailed(ctx context.Context) (bool, error) {
	id := vm.lastFailed()
	if id == "" {
		return false, nil
	}
	return true, vm.chat.Retry(ctx, &api.TempRef{TempID: id})
}

// DiscardLastFailed drops the newest failed message in the active
// conversation.
func (vm *ViewModel) DiscardLastFailed(ctx context.Context) (bool, error) {
	id := vm.lastFailed()
	if id == "" {
		return false, nil
	}
	return true, vm.chat.Discard(ctx, &api.TempRef{TempID: id})
}

func (vm *ViewModel) lastFailed() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for i := len(vm.messages) - 1; i >= 0; i-- {
		if vm.messages[i].Status == "FAILED" {
			return vm.messages[i].ID
		}
	}
	return ""
}

// Search runs a full-text query over the journal.
// Search queries the journal; conv limits it to one conversation.
func (vm *ViewModel) Search(ctx context.Context, query, conv string) ([]api.SearchResult, error) {
	resp, err := vm.chat.SearchMessages(ctx, &api.SearchRequest{Query: query, ConversationID: conv, Limit: 50})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Watch streams daemon events into the cache, calling onChange after each
// one that touched something. It returns when the stream ends.
func (vm *ViewModel) Watch(ctx context.Context, onChange func(Change)) error {
	stream, err := vm.chat.WatchEvents(ctx, &api.WatchRequest{})
	if err != nil {
		return err
	}
	for {
		evt, err := stream.Recv()
		if err != nil {
			return err
		}
		if c := vm.Apply(evt); c.Any() {
			onChange(c)
		}
	}
}

// Apply folds one event into the cache.
func (vm *ViewModel) Apply(evt *api.Event) Change {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	var c Change
	active := evt.ConversationID != "" && evt.ConversationID == vm.active
	switch evt.Kind {
	case "message.appended":
		if evt.Message != nil && active {
			vm.messages = append(vm.messages, *evt.Message)
			c.Messages = true
		}
		c.Conversations = vm.touch(evt)
	case "message.updated":
		if evt.Message != nil && active {
			prev := evt.PreviousID
			if prev == "" {
				prev = evt.Message.ID
			}
			for i := range vm.messages {
				if vm.messages[i].ID == prev {
					vm.messages[i] = *evt.Message
					c.Messages = true
					break
				}
			}
		}
	case "message.removed":
		if evt.Message != nil && active {
			for i := range vm.messages {
				if vm.messages[i].ID == evt.Message.ID {
					vm.messages = append(vm.messages[:i], vm.messages[i+1:]...)
					c.Messages = true
					break
				}
			}
		}
	case "message.read":
		if active {
			read := make(map[string]bool, len(evt.IDs))
			for _, id := range evt.IDs {
				read[id] = true
			}
			for i := range vm.messages {
				if read[vm.messages[i].ID] {
					vm.messages[i].Read = true
					c.Messages = true
				}
			}
		}
	case "conversation.updated":
		if evt.Conversation != nil {
			vm.updateConversation(*evt.Conversation)
			c.Conversations = true
		}
	case "typing.changed":
		if active {
			vm.typing = evt.Typing
			c.Typing = true
		}
	case "presence.changed":
		if evt.Presence != nil {
			vm.upsertPresence(*evt.Presence)
			c.Presence = true
		}
	case "conn.state_changed", "conn.gave_up":
		if evt.Channel != nil && vm.status != nil {
			switch evt.Channel.Channel {
			case vm.status.Messaging.Channel:
				vm.status.Messaging.State = evt.Channel.State
			case vm.status.Presence.Channel:
				vm.status.Presence.State = evt.Channel.State
			}
			c.Status = true
		}
	case "notify.display":
		c.Alert = evt.Alert
	case "server.error":
		c.Alert = &api.Alert{Message: "server: " + evt.Text, Severity: "warning"}
	case api.KindWatchLagged:
		c.Resync = true
	}
	return c
}

// touch moves the conversation of an appended message to the top of the
// list, creating it if new. Unread counts arrive with conversation.updated.
// Caller holds mu.
func (vm *ViewModel) touch(evt *api.Event) bool {
	if evt.Message == nil {
		return false
	}
	idx := vm.indexOf(evt.ConversationID)
	var conv api.Conversation
	if idx >= 0 {
		conv = vm.conversations[idx]
		vm.conversations = append(vm.conversations[:idx], vm.conversations[idx+1:]...)
	} else {
		conv = api.Conversation{ID: evt.ConversationID, Live: true}
	}
	conv.Preview = evt.Message.Body
	if evt.Message.SentAtMs > 0 {
		conv.LastActivityMs = evt.Message.SentAtMs
	}
	vm.conversations = append([]api.Conversation{conv}, vm.conversations...)
	return true
}

// updateConversation merges a summary or a refreshed title. Caller holds mu.
func (vm *ViewModel) updateConversation(u api.Conversation) {
	idx := vm.indexOf(u.ID)
	if idx < 0 {
		vm.conversations = append(vm.conversations, u)
		return
	}
	c := &vm.conversations[idx]
	if u.Title != "" {
		c.Title = u.Title
		return
	}
	c.Unread = u.Unread
	if u.LastActivityMs > c.LastActivityMs {
		c.LastActivityMs = u.LastActivityMs
	}
	c.Live = true
}

func (vm *ViewModel) indexOf(conv string) int {
	for i := range vm.conversations {
		if vm.conversations[i].ID == conv {
			return i
		}
	}
	return -1
}

func (vm *ViewModel) upsertPresence(p api.PresenceEntry) {
	for i := range vm.presence {
		if vm.presence[i].UserID == p.UserID {
			vm.presence[i] = p
			return
		}
	}
	vm.presence = append(vm.presence, p)
}

// Active returns the open conversation id, or "".
func (vm *ViewModel) Active() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active
}

// Conversations returns a snapshot of the conversation list.
func (vm *ViewModel) Conversations() []api.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]api.Conversation(nil), vm.conversations...)
}

// Conversation looks up one conversation from the cached list.
func (vm *ViewModel) Conversation(id string) (api.Conversation, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, c := range vm.conversations {
		if c.ID == id {
			return c, true
		}
	}
	return api.Conversation{}, false
}

// Messages returns a snapshot of the open conversation's messages.
func (vm *ViewModel) Messages() []api.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]api.Message(nil), vm.messages...)
}

// Typing returns who is typing in the open conversation.
func (vm *ViewModel) Typing() []api.Typer {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]api.Typer(nil), vm.typing...)
}

// Presence returns a snapshot of the roster.
func (vm *ViewModel) Presence() []api.PresenceEntry {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]api.PresenceEntry(nil), vm.presence...)
}

// Status returns a snapshot of session status, or nil before the first load.
func (vm *ViewModel) Status() *api.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.status == nil {
		return nil
	}
	s := *vm.status
	return &s
}
