package api

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/engine"
	"github.com/matheus3301/rentchat/internal/notify"
	"github.com/matheus3301/rentchat/internal/outbox"
	"github.com/matheus3301/rentchat/internal/presence"
	"github.com/matheus3301/rentchat/internal/realtime"
	"github.com/matheus3301/rentchat/internal/status"
	"github.com/matheus3301/rentchat/internal/store"
	"github.com/matheus3301/rentchat/internal/sync"
	"github.com/matheus3301/rentchat/internal/typing"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Engine is the part of the synchronization engine the API serves.
// *engine.Engine implements it.
type Engine interface {
	Send(ctx context.Context, conv, body string) (string, error)
	SendFallback(ctx context.Context, conv, body string) (sync.Message, error)
	Retry(ctx context.Context, tempID string) error
	Discard(ctx context.Context, tempID string) error
	Join(ctx context.Context, conv string) error
	Leave(ctx context.Context, conv string) error
	Keystroke(ctx context.Context, conv string) error
	MarkRead(ctx context.Context, conv string) ([]string, error)
	Messages(ctx context.Context, conv string) ([]sync.Message, error)
	Conversations(ctx context.Context) ([]engine.ConversationView, error)
	Typing(ctx context.Context, conv string) ([]typing.Entry, error)
	Presence(ctx context.Context) ([]presence.Entry, error)
	Pending(ctx context.Context) ([]outbox.PendingSend, error)
	Connectivity(ctx context.Context) engine.Connectivity
}

// ChatService implements rentchat.v1.ChatService.
type ChatService struct {
	engine      Engine
	db          *store.DB
	bus         *bus.Bus
	sessionName string
}

// NewChatService creates a new chat service backed by the engine and the journal.
func NewChatService(e Engine, db *store.DB, b *bus.Bus, sessionName string) *ChatService {
	return &ChatService{engine: e, db: db, bus: b, sessionName: sessionName}
}

// ListConversations merges the journal with the live engine view. Live
// unread counts and activity win over journaled ones.
func (s *ChatService) ListConversations(ctx context.Context, req *ListConversationsRequest) (*ConversationsResponse, error) {
	limit := 50
	if req.Limit > 0 {
		limit = req.Limit
	}

	byID := make(map[string]*Conversation)
	var order []*Conversation
	if s.db != nil {
		stored, err := s.db.ListConversations(limit, req.Offset)
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "list conversations: %v", err)
		}
		for _, c := range stored {
			conv := &Conversation{
				ID:             c.ID,
				Title:          c.Title,
				Preview:        c.LastMessagePreview,
				Unread:         c.UnreadCount,
				LastActivityMs: c.LastMessageAt,
			}
			byID[c.ID] = conv
			order = append(order, conv)
		}
	}

	live, err := s.engine.Conversations(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	for _, v := range live {
		conv, ok := byID[v.ID]
		if !ok {
			conv = &Conversation{ID: v.ID}
			byID[v.ID] = conv
			order = append(order, conv)
		}
		conv.Live = true
		conv.Unread = v.Unread
		if v.Title != "" {
			conv.Title = v.Title
		}
		conv.LastActivityMs = max(conv.LastActivityMs, millis(v.LastActivity))
	}

	slices.SortStableFunc(order, func(a, b *Conversation) int {
		if c := cmp.Compare(b.LastActivityMs, a.LastActivityMs); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	resp := &ConversationsResponse{Conversations: make([]Conversation, 0, len(order))}
	for _, c := range order {
		resp.Conversations = append(resp.Conversations, *c)
	}
	return resp, nil
}

// ListMessages returns the live ordered sequence, pending and failed
// entries included.
func (s *ChatService) ListMessages(ctx context.Context, req *ConversationRef) (*MessagesResponse, error) {
	if err := requireConversation(req.ConversationID); err != nil {
		return nil, err
	}
	msgs, err := s.engine.Messages(ctx, req.ConversationID)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &MessagesResponse{Messages: make([]Message, len(msgs))}
	for i, m := range msgs {
		resp.Messages[i] = fromSync(m)
	}
	return resp, nil
}

// History pages through the journal, newest first.
func (s *ChatService) History(_ context.Context, req *HistoryRequest) (*MessagesResponse, error) {
	if err := requireConversation(req.ConversationID); err != nil {
		return nil, err
	}
	if s.db == nil {
		return nil, grpcstatus.Error(codes.FailedPrecondition, "journal not available")
	}
	limit := 50
	if req.Limit > 0 {
		limit = req.Limit
	}
	msgs, err := s.db.ListMessages(req.ConversationID, req.BeforeMs, limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list messages: %v", err)
	}
	resp := &MessagesResponse{Messages: make([]Message, len(msgs)), HasMore: len(msgs) == limit}
	for i := range msgs {
		resp.Messages[i] = fromStore(&msgs[i])
	}
	return resp, nil
}

func (s *ChatService) SearchMessages(_ context.Context, req *SearchRequest) (*SearchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "query is required")
	}
	if s.db == nil {
		return nil, grpcstatus.Error(codes.FailedPrecondition, "journal not available")
	}
	limit := 50
	if req.Limit > 0 {
		limit = req.Limit
	}
	results, err := s.db.SearchMessages(req.Query, req.ConversationID, limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "search messages: %v", err)
	}
	resp := &SearchResponse{Results: make([]SearchResult, len(results))}
	for i := range results {
		resp.Results[i] = SearchResult{Message: fromStore(&results[i].Message), Snippet: results[i].Snippet}
	}
	return resp, nil
}

func (s *ChatService) SendText(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	if err := requireConversation(req.ConversationID); err != nil {
		return nil, err
	}
	tempID, err := s.engine.Send(ctx, req.ConversationID, req.Body)
	if tempID == "" {
		return nil, toStatus(err)
	}
	// A write failure still created a FAILED entry; report it in the body.
	resp := &SendResponse{TempID: tempID}
	if msgs, lerr := s.engine.Messages(ctx, req.ConversationID); lerr == nil {
		for _, m := range msgs {
			if m.ID == tempID {
				resp.Message = fromSync(m)
			}
		}
	}
	return resp, nil
}

func (s *ChatService) SendFallback(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	if err := requireConversation(req.ConversationID); err != nil {
		return nil, err
	}
	m, err := s.engine.SendFallback(ctx, req.ConversationID, req.Body)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SendResponse{Message: fromSync(m)}, nil
}

func (s *ChatService) Retry(ctx context.Context, req *TempRef) (*Empty, error) {
	return &Empty{}, toStatus(s.engine.Retry(ctx, req.TempID))
}

func (s *ChatService) Discard(ctx context.Context, req *TempRef) (*Empty, error) {
	return &Empty{}, toStatus(s.engine.Discard(ctx, req.TempID))
}

func (s *ChatService) ListPending(ctx context.Context, _ *Empty) (*PendingResponse, error) {
	pending, err := s.engine.Pending(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &PendingResponse{Sends: make([]PendingSend, len(pending))}
	for i, p := range pending {
		resp.Sends[i] = fromPending(p)
	}
	return resp, nil
}

func (s *ChatService) Join(ctx context.Context, req *ConversationRef) (*Empty, error) {
	if err := requireConversation(req.ConversationID); err != nil {
		return nil, err
	}
	return &Empty{}, toStatus(s.engine.Join(ctx, req.ConversationID))
}

func (s *ChatService) Leave(ctx context.Context, req *ConversationRef) (*Empty, error) {
	if err := requireConversation(req.ConversationID); err != nil {
		return nil, err
	}
	return &Empty{}, toStatus(s.engine.Leave(ctx, req.ConversationID))
}

func (s *ChatService) MarkRead(ctx context.Context, req *ConversationRef) (*MarkReadResponse, error) {
	if err := requireConversation(req.ConversationID); err != nil {
		return nil, err
	}
	ids, err := s.engine.MarkRead(ctx, req.ConversationID)
	if err != nil && len(ids) == 0 {
		return nil, toStatus(err)
	}
	return &MarkReadResponse{IDs: ids}, nil
}

func (s *ChatService) Keystroke(ctx context.Context, req *ConversationRef) (*Empty, error) {
	if err := requireConversation(req.ConversationID); err != nil {
		return nil, err
	}
	return &Empty{}, toStatus(s.engine.Keystroke(ctx, req.ConversationID))
}

func (s *ChatService) ListTyping(ctx context.Context, req *ConversationRef) (*TypingResponse, error) {
	entries, err := s.engine.Typing(ctx, req.ConversationID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &TypingResponse{Users: fromTyping(entries)}, nil
}

// WatchEvents streams bus events until the client goes away. Events the
// client was too slow for are reported as one watch.lagged event.
func (s *ChatService) WatchEvents(req *WatchRequest, stream EventSender) error {
	sub := s.bus.SubscribeFull(req.Prefix, 256)
	defer sub.Cancel()

	var reported uint64
	for {
		select {
		case evt := <-sub.C:
			if missed := sub.Dropped(); missed > reported {
				lag := &Event{
					ID:      uuid.New().String(),
					Session: s.sessionName,
					Kind:    KindWatchLagged,
					AtMs:    millis(evt.Timestamp),
					Count:   int(missed - reported),
				}
				reported = missed
				if err := stream.Send(lag); err != nil {
					return err
				}
			}
			if err := stream.Send(s.envelope(evt)); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *ChatService) envelope(evt bus.Event) *Event {
	out := &Event{
		ID:             uuid.New().String(),
		Seq:            evt.Seq,
		Session:        s.sessionName,
		Kind:           evt.Kind,
		ConversationID: evt.ConversationID,
		AtMs:           millis(evt.Timestamp),
	}
	switch p := evt.Payload.(type) {
	case sync.Message:
		m := fromSync(p)
		out.Message = &m
	case sync.MessageChange:
		m := fromSync(p.Message)
		out.Message = &m
		out.PreviousID = p.PreviousID
	case sync.ReadChange:
		out.IDs = p.IDs
	case sync.Conversation:
		out.Conversation = &Conversation{ID: p.ID, Unread: p.Unread, LastActivityMs: millis(p.LastActivity), Live: true}
	case sync.Thread:
		out.Conversation = &Conversation{ID: p.ConversationID, Title: p.Title, Live: true}
	case typing.Change:
		out.Typing = fromTyping(p.Typing)
	case presence.Entry:
		e := fromPresence(p)
		out.Presence = &e
	case status.StateChange:
		out.Channel = fromStateChange(p)
	case realtime.GaveUp:
		out.Channel = &ChannelStatus{Channel: p.Channel, State: "GAVE_UP", Attempts: p.Attempts}
	case notify.Alert:
		out.Alert = fromAlert(p)
	case outbox.Ack:
		out.TempID = p.TempID
		out.IDs = []string{p.ServerID}
	case outbox.Failure:
		out.TempID = p.TempID
		out.Text = p.Reason
	case string:
		out.Text = p
	case int:
		out.Count = p
	}
	return out
}
