package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestEncodeFlattensType(t *testing.T) {
	tests := []struct {
		cmd  Command
		want map[string]any
	}{
		{SendMessage{ConversationID: "c1", Content: "Hi"}, map[string]any{"type": "send_message", "conversation_id": "c1", "content": "Hi"}},
		{TypingStart{ConversationID: "c1"}, map[string]any{"type": "typing_start", "conversation_id": "c1"}},
		{LeaveConversation{ConversationID: "c2"}, map[string]any{"type": "leave_conversation", "conversation_id": "c2"}},
		{Heartbeat{Timestamp: 1700000000000}, map[string]any{"type": "heartbeat", "timestamp": float64(1700000000000)}},
	}
	for _, tt := range tests {
		t.Run(tt.cmd.Type(), func(t *testing.T) {
			b, err := Encode(tt.cmd)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(string(b), `{"type":"`+tt.cmd.Type()+`"`) {
				t.Errorf("frame %s does not start with type", b)
			}
			var got map[string]any
			if err := json.Unmarshal(b, &got); err != nil {
				t.Fatalf("frame %s is not valid JSON: %v", b, err)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestEncodeMarkAsReadIDs(t *testing.T) {
	b, err := Encode(MarkAsRead{ConversationID: "c1", MessageIDs: []string{"1", "2"}})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"mark_as_read","conversation_id":"c1","message_ids":["1","2"]}`
	if string(b) != want {
		t.Errorf("frame = %s, want %s", b, want)
	}
}
