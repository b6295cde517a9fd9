package api

import (
	"context"
	"net"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/engine"
	"github.com/matheus3301/rentchat/internal/outbox"
	"github.com/matheus3301/rentchat/internal/presence"
	"github.com/matheus3301/rentchat/internal/status"
	"github.com/matheus3301/rentchat/internal/store"
	"github.com/matheus3301/rentchat/internal/sync"
	"github.com/matheus3301/rentchat/internal/typing"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeEngine struct {
	mu       gosync.Mutex
	sendErr  error
	messages map[string][]sync.Message
	convs    []engine.ConversationView
	pending  map[string]outbox.PendingSend
	joined   []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		messages: make(map[string][]sync.Message),
		pending:  make(map[string]outbox.PendingSend),
	}
}

func (f *fakeEngine) Send(_ context.Context, conv, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	if body == "" {
		return "", outbox.ErrEmptyBody
	}
	id := "tmp-1"
	f.messages[conv] = append(f.messages[conv], sync.Message{ID: id, ConversationID: conv, Body: body, Status: sync.Pending, Provenance: sync.Local})
	f.pending[id] = outbox.PendingSend{TempID: id, ConversationID: conv, Body: body, Status: sync.Pending, Attempts: 1}
	return id, nil
}

func (f *fakeEngine) SendFallback(_ context.Context, conv, body string) (sync.Message, error) {
	return sync.Message{}, engine.ErrNoREST
}

func (f *fakeEngine) Retry(_ context.Context, tempID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pending[tempID]
	if !ok {
		return outbox.ErrUnknownSend
	}
	if p.Status != sync.Failed {
		return outbox.ErrNotFailed
	}
	return nil
}

func (f *fakeEngine) Discard(_ context.Context, tempID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pending[tempID]; !ok {
		return outbox.ErrUnknownSend
	}
	delete(f.pending, tempID)
	return nil
}

func (f *fakeEngine) Join(_ context.Context, conv string) error {
	f.mu.Lock()
	f.joined = append(f.joined, conv)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Leave(context.Context, string) error     { return nil }
func (f *fakeEngine) Keystroke(context.Context, string) error { return outbox.ErrNotConnected }

func (f *fakeEngine) MarkRead(context.Context, string) ([]string, error) {
	return []string{"100"}, nil
}

func (f *fakeEngine) Messages(_ context.Context, conv string) ([]sync.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sync.Message(nil), f.messages[conv]...), nil
}

func (f *fakeEngine) Conversations(context.Context) ([]engine.ConversationView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.convs, nil
}

func (f *fakeEngine) Typing(_ context.Context, conv string) ([]typing.Entry, error) {
	return []typing.Entry{{UserID: "2", UserName: "Tenant", ConversationID: conv, Since: epoch}}, nil
}

func (f *fakeEngine) Presence(context.Context) ([]presence.Entry, error) {
	return []presence.Entry{{UserID: "2", UserName: "Tenant", IsOnline: true}}, nil
}

func (f *fakeEngine) Pending(context.Context) ([]outbox.PendingSend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []outbox.PendingSend
	for _, p := range f.pending {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeEngine) Connectivity(context.Context) engine.Connectivity {
	return engine.Connectivity{
		Messaging: engine.ChannelStatus{Channel: "messaging", State: status.Open, LastHeartbeat: epoch},
		Presence:  engine.ChannelStatus{Channel: "presence", State: status.Connecting, Attempts: 2},
		Current:   "42",
	}
}

type harness struct {
	engine  *fakeEngine
	db      *store.DB
	bus     *bus.Bus
	session *SessionClient
	chat    *ChatClient
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{engine: newFakeEngine(), db: db, bus: bus.New()}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	Register(srv,
		NewSessionService("main", "1", h.engine, db),
		NewChatService(h.engine, db, h.bus, "main"))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(CallOption()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	h.session = NewSessionClient(conn)
	h.chat = NewChatClient(conn)
	return h
}

func wantCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	if got := grpcstatus.Code(err); got != want {
		t.Errorf("code = %s, want %s (err = %v)", got, want, err)
	}
}

func TestGetStatus(t *testing.T) {
	h := newHarness(t)
	if err := h.db.UpsertConversation(&store.Conversation{ID: "7", LastMessageAt: 1}); err != nil {
		t.Fatal(err)
	}
	if err := h.db.UpsertMessage(&store.Message{ConversationID: "7", MsgID: "100", Body: "hi", SentAt: 1}); err != nil {
		t.Fatal(err)
	}

	resp, err := h.session.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if resp.Session != "main" || resp.UserID != "1" || resp.Current != "42" {
		t.Errorf("status = %+v", resp)
	}
	if resp.Messaging.State != "OPEN" || resp.Messaging.LastHeartbeatMs != epoch.UnixMilli() {
		t.Errorf("messaging = %+v", resp.Messaging)
	}
	if resp.Presence.State != "CONNECTING" || resp.Presence.Attempts != 2 {
		t.Errorf("presence = %+v", resp.Presence)
	}
	if resp.ConversationCount != 1 || resp.MessageCount != 1 {
		t.Errorf("counts = %d/%d, want 1/1", resp.ConversationCount, resp.MessageCount)
	}
}

func TestListPresenceMergesJournal(t *testing.T) {
	h := newHarness(t)
	if err := h.db.UpsertPresence(&store.Presence{UserID: "3", UserName: "Owner", IsOnline: true, LastSeen: 5}); err != nil {
		t.Fatal(err)
	}
	resp, err := h.session.ListPresence(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Users) != 2 {
		t.Fatalf("users = %+v", resp.Users)
	}
	if !resp.Users[0].IsOnline || resp.Users[0].UserID != "2" {
		t.Errorf("live entry = %+v", resp.Users[0])
	}
	if resp.Users[1].IsOnline || resp.Users[1].LastSeenMs != 5 {
		t.Errorf("journaled entry = %+v", resp.Users[1])
	}
}

func TestSendTextReturnsPendingMessage(t *testing.T) {
	h := newHarness(t)
	resp, err := h.chat.SendText(context.Background(), &SendRequest{ConversationID: "42", Body: "Hi"})
	if err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if resp.TempID != "tmp-1" || resp.Message.Status != "PENDING" || !resp.Message.FromMe {
		t.Errorf("response = %+v", resp)
	}
}

func TestErrorCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want codes.Code
	}{
		{"missing conversation", func() error {
			_, err := h.chat.SendText(ctx, &SendRequest{Body: "x"})
			return err
		}, codes.InvalidArgument},
		{"empty body", func() error {
			_, err := h.chat.SendText(ctx, &SendRequest{ConversationID: "42"})
			return err
		}, codes.InvalidArgument},
		{"retry unknown", func() error {
			return h.chat.Retry(ctx, &TempRef{TempID: "tmp-x"})
		}, codes.NotFound},
		{"keystroke disconnected", func() error {
			return h.chat.Keystroke(ctx, &ConversationRef{ConversationID: "42"})
		}, codes.Unavailable},
		{"fallback without rest", func() error {
			_, err := h.chat.SendFallback(ctx, &SendRequest{ConversationID: "42", Body: "x"})
			return err
		}, codes.FailedPrecondition},
		{"blank search", func() error {
			_, err := h.chat.SearchMessages(ctx, &SearchRequest{Query: " "})
			return err
		}, codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantCode(t, tt.call(), tt.want)
		})
	}

	h.engine.mu.Lock()
	h.engine.sendErr = outbox.ErrNotConnected
	h.engine.mu.Unlock()
	_, err := h.chat.SendText(ctx, &SendRequest{ConversationID: "42", Body: "Hello"})
	wantCode(t, err, codes.Unavailable)
}

func TestRetryNotFailedAndDiscard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, err := h.chat.SendText(ctx, &SendRequest{ConversationID: "42", Body: "Hi"})
	if err != nil {
		t.Fatal(err)
	}
	wantCode(t, h.chat.Retry(ctx, &TempRef{TempID: resp.TempID}), codes.FailedPrecondition)

	pending, err := h.chat.ListPending(ctx)
	if err != nil || len(pending.Sends) != 1 {
		t.Fatalf("ListPending() = %+v, %v", pending, err)
	}
	if err := h.chat.Discard(ctx, &TempRef{TempID: resp.TempID}); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	pending, _ = h.chat.ListPending(ctx)
	if len(pending.Sends) != 0 {
		t.Errorf("pending after discard = %+v", pending.Sends)
	}
}

func TestListConversationsMergesLiveAndJournal(t *testing.T) {
	h := newHarness(t)
	if err := h.db.UpsertConversation(&store.Conversation{
		ID: "7", Title: "Unit 7", UnreadCount: 5, LastMessageAt: epoch.UnixMilli(), LastMessagePreview: "rent due",
	}); err != nil {
		t.Fatal(err)
	}
	if err := h.db.UpsertConversation(&store.Conversation{ID: "3", LastMessageAt: epoch.Add(-time.Hour).UnixMilli()}); err != nil {
		t.Fatal(err)
	}
	h.engine.mu.Lock()
	h.engine.convs = []engine.ConversationView{
		{Conversation: sync.Conversation{ID: "7", Unread: 2, LastActivity: epoch.Add(time.Minute)}},
		{Conversation: sync.Conversation{ID: "9", Unread: 1, LastActivity: epoch.Add(2 * time.Minute)}, Title: "Unit 9"},
	}
	h.engine.mu.Unlock()

	resp, err := h.chat.ListConversations(context.Background(), &ListConversationsRequest{})
	if err != nil {
		t.Fatal(err)
	}
	got := resp.Conversations
	if len(got) != 3 || got[0].ID != "9" || got[1].ID != "7" || got[2].ID != "3" {
		t.Fatalf("order = %+v", got)
	}
	if got[1].Title != "Unit 7" || got[1].Unread != 2 || got[1].Preview != "rent due" || !got[1].Live {
		t.Errorf("merged conversation = %+v", got[1])
	}
	if got[2].Live {
		t.Errorf("journal-only conversation marked live: %+v", got[2])
	}
}

func TestHistoryAndSearch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i, body := range []string{"the lease starts Monday", "keys at the office", "lease signed"} {
		if err := h.db.UpsertMessage(&store.Message{
			ConversationID: "7", MsgID: string(rune('a' + i)), SenderID: "2", Body: body, SentAt: int64(1000 + i),
		}); err != nil {
			t.Fatal(err)
		}
	}

	page, err := h.chat.History(ctx, &HistoryRequest{ConversationID: "7", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 2 || !page.HasMore || page.Messages[0].ID != "c" {
		t.Fatalf("first page = %+v", page)
	}
	page, err = h.chat.History(ctx, &HistoryRequest{ConversationID: "7", BeforeMs: page.Messages[1].SentAtMs, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 1 || page.Messages[0].ID != "a" || page.HasMore {
		t.Errorf("second page = %+v", page)
	}

	res, err := h.chat.SearchMessages(ctx, &SearchRequest{Query: "lease"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 2 {
		t.Errorf("search results = %+v", res.Results)
	}
}

func TestJoinTypingAndMarkRead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.chat.Join(ctx, &ConversationRef{ConversationID: "42"}); err != nil {
		t.Fatal(err)
	}
	h.engine.mu.Lock()
	joined := h.engine.joined
	h.engine.mu.Unlock()
	if len(joined) != 1 || joined[0] != "42" {
		t.Errorf("joined = %v", joined)
	}
	typers, err := h.chat.ListTyping(ctx, &ConversationRef{ConversationID: "42"})
	if err != nil || len(typers.Users) != 1 || typers.Users[0].SinceMs != epoch.UnixMilli() {
		t.Errorf("ListTyping() = %+v, %v", typers, err)
	}
	read, err := h.chat.MarkRead(ctx, &ConversationRef{ConversationID: "42"})
	if err != nil || len(read.IDs) != 1 {
		t.Errorf("MarkRead() = %+v, %v", read, err)
	}
}

func TestWatchEventsStreamsBusEvents(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	base := h.bus.Subscribers()
	stream, err := h.chat.WatchEvents(ctx, &WatchRequest{Prefix: "message."})
	if err != nil {
		t.Fatal(err)
	}
	for h.bus.Subscribers() == base {
		if ctx.Err() != nil {
			t.Fatal("server never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.bus.Publish(bus.Event{Kind: bus.TypingChanged, ConversationID: "42"})
	h.bus.Publish(bus.Event{
		Kind:           bus.MessageAppended,
		ConversationID: "42",
		Timestamp:      epoch,
		Payload:        sync.Message{ID: "100", ConversationID: "42", Body: "hello", Status: sync.Sent, Provenance: sync.Remote},
	})

	evt, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if evt.Kind != bus.MessageAppended || evt.Session != "main" || evt.AtMs != epoch.UnixMilli() {
		t.Errorf("event = %+v", evt)
	}
	if evt.Message == nil || evt.Message.Body != "hello" || evt.Message.FromMe {
		t.Errorf("event message = %+v", evt.Message)
	}
}

func TestCodecIgnoresUnknownFields(t *testing.T) {
	type future struct {
		ConversationID string `cbor:"conversation_id"`
		Extra          string `cbor:"extra"`
	}
	data, err := Codec{}.Marshal(future{ConversationID: "42", Extra: "x"})
	if err != nil {
		t.Fatal(err)
	}
	var ref ConversationRef
	if err := (Codec{}).Unmarshal(data, &ref); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if ref.ConversationID != "42" {
		t.Errorf("ConversationID = %q", ref.ConversationID)
	}
	if err := (Codec{}).Unmarshal([]byte{0xff}, &ref); err == nil {
		t.Error("Unmarshal() accepted garbage")
	}
}
