package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/matheus3301/rentchat/internal/loop"
	"github.com/matheus3301/rentchat/internal/metrics"
	"github.com/matheus3301/rentchat/internal/protocol"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recorder struct {
	calls   []string
	panicOn string
}

func (r *recorder) record(kind string) {
	if kind == r.panicOn {
		r.panicOn = ""
		panic("boom")
	}
	r.calls = append(r.calls, kind)
}

func (r *recorder) OnNewMessage(e protocol.NewMessage) { r.record("new:" + string(e.Message.ID)) }
func (r *recorder) OnMessageReadUpdate(protocol.MessageReadUpdate) {
	r.record(protocol.KindMessageReadUpdate)
}
func (r *recorder) OnTypingNotification(protocol.TypingNotification) {
	r.record(protocol.KindTypingNotification)
}
func (r *recorder) OnConversationUpdated(protocol.ConversationUpdated) {
	r.record(protocol.KindConversationUpdated)
}
func (r *recorder) OnUserStatusUpdate(protocol.UserStatusUpdate) {
	r.record(protocol.KindUserStatusUpdate)
}
func (r *recorder) OnPendingNotifications(protocol.PendingNotifications) {
	r.record(protocol.KindPendingNotifications)
}
func (r *recorder) OnServerError(protocol.ServerError) { r.record(protocol.KindError) }
func (r *recorder) OnPong(protocol.Pong)               { r.record(protocol.KindPong) }
func (r *recorder) OnUnknown(e protocol.Unknown)       { r.record("unknown:" + e.Type) }

func TestDispatchRoutesEachKind(t *testing.T) {
	tests := []struct {
		frame string
		want  string
	}{
		{`{"type":"new_message","conversation_id":"c1","message":{"id":7,"sender_id":2,"content":"hi"}}`, "new:7"},
		{`{"type":"message_read_update","conversation_id":"c1","message_ids":["1"]}`, protocol.KindMessageReadUpdate},
		{`{"type":"typing_notification","user_id":"2","conversation_id":"c1","is_typing":true}`, protocol.KindTypingNotification},
		{`{"type":"conversation_updated","conversation_id":"c1"}`, protocol.KindConversationUpdated},
		{`{"type":"user_status_update","user_id":"2","is_online":true}`, protocol.KindUserStatusUpdate},
		{`{"type":"pending_notifications","count":3}`, protocol.KindPendingNotifications},
		{`{"type":"error","message":"nope"}`, protocol.KindError},
		{`{"type":"pong"}`, protocol.KindPong},
		{`{"type":"brand_new_thing"}`, "unknown:brand_new_thing"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			r := &recorder{}
			New("messaging", r, nil, nil).Dispatch([]byte(tt.frame))
			if len(r.calls) != 1 || r.calls[0] != tt.want {
				t.Errorf("calls = %v, want [%s]", r.calls, tt.want)
			}
		})
	}
}

func TestDispatchDropsMalformedFrames(t *testing.T) {
	dropped := metrics.FramesDropped.WithLabelValues("test-malformed", "malformed")
	before := testutil.ToFloat64(dropped)

	r := &recorder{}
	d := New("test-malformed", r, nil, nil)
	for _, frame := range []string{
		`not json`,
		`{"no_type":true}`,
		`{"type":"new_message","message":{"content":"missing ids"}}`,
	} {
		d.Dispatch([]byte(frame))
	}

	if len(r.calls) != 0 {
		t.Errorf("handler called for malformed frames: %v", r.calls)
	}
	if got := testutil.ToFloat64(dropped) - before; got != 3 {
		t.Errorf("malformed drops = %v, want 3", got)
	}
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	panics := metrics.FramesDropped.WithLabelValues("test-panic", "panic")
	before := testutil.ToFloat64(panics)

	r := &recorder{panicOn: protocol.KindPong}
	d := New("test-panic", r, nil, nil)
	d.Dispatch([]byte(`{"type":"pong"}`))
	d.Dispatch([]byte(`{"type":"pong"}`))

	if len(r.calls) != 1 {
		t.Errorf("calls = %v, want the second pong only", r.calls)
	}
	if got := testutil.ToFloat64(panics) - before; got != 1 {
		t.Errorf("panic drops = %v, want 1", got)
	}
}

func TestDispatchPreservesArrivalOrderOnLoop(t *testing.T) {
	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	r := &recorder{}
	d := New("messaging", r, l.Post, nil)
	for _, id := range []string{"1", "2", "3", "4"} {
		d.Dispatch([]byte(`{"type":"new_message","conversation_id":"c","message":{"id":"` + id + `","sender_id":"9","content":"x"}}`))
	}

	var got []string
	if err := l.Do(ctx, func() { got = append(got, r.calls...) }); err != nil {
		t.Fatal(err)
	}
	want := []string{"new:1", "new:2", "new:3", "new:4"}
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

func TestDispatchAfterLoopStopped(t *testing.T) {
	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	cancel()
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}

	r := &recorder{}
	New("messaging", r, l.Post, nil).Dispatch([]byte(`{"type":"pong"}`))
	if len(r.calls) != 0 {
		t.Errorf("handler ran after loop stop: %v", r.calls)
	}
}
