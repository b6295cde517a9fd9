package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/clock"
	"github.com/matheus3301/rentchat/internal/protocol"
	"github.com/matheus3301/rentchat/internal/sched"
	"github.com/matheus3301/rentchat/internal/status"
)

func TestWebSocketRoundTrip(t *testing.T) {
	gotAuth := make(chan string, 1)
	gotToken := make(chan string, 1)
	received := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		gotToken <- r.URL.Query().Get("token")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"pong","timestamp":1}`)); err != nil {
			return
		}
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		received <- string(data)
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	frames := make(chan string, 1)
	m := NewManager(
		Config{Channel: Messaging, URL: "ws" + strings.TrimPrefix(srv.URL, "http")},
		WebSocketDialer{Token: "secret", TokenParam: "token"},
		clock.Real(), sched.New(clock.Real(), nil), bus.New(), nil,
	)
	m.OnMessage(func(f []byte) { frames <- string(f) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer m.Disconnect()

	if auth := <-gotAuth; auth != "Bearer secret" {
		t.Errorf("Authorization = %q", auth)
	}
	if tok := <-gotToken; tok != "secret" {
		t.Errorf("token param = %q", tok)
	}

	select {
	case f := <-frames:
		if ev, err := protocol.Decode([]byte(f)); err != nil || ev.Kind() != protocol.KindPong {
			t.Errorf("inbound frame %q decoded to %v, %v", f, ev, err)
		}
	case <-ctx.Done():
		t.Fatal("no inbound frame")
	}

	if err := m.Send(protocol.JoinConversation{ConversationID: "42"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	select {
	case f := <-received:
		if !strings.Contains(f, `"join_conversation"`) || !strings.Contains(f, `"42"`) {
			t.Errorf("server received %q", f)
		}
	case <-ctx.Done():
		t.Fatal("server did not receive the command")
	}
	if m.State() != status.Open {
		t.Errorf("state = %s, want OPEN", m.State())
	}
}

func TestWebSocketPingAnsweredBySilentServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		// Never writes; reading is what answers pings.
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tr, err := WebSocketDialer{}.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer tr.Close("done")
	go func() {
		for {
			if _, err := tr.Read(ctx); err != nil {
				return
			}
		}
	}()

	for i := 0; i < 3; i++ {
		if err := tr.Ping(ctx); err != nil {
			t.Fatalf("Ping() #%d error = %v", i+1, err)
		}
	}
}
