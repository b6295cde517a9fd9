package membership

import (
	"errors"
	"testing"

	"github.com/matheus3301/rentchat/internal/protocol"
)

type fakeSender struct {
	sent []protocol.Command
	err  error
}

func (f *fakeSender) Send(cmd protocol.Command) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func TestJoinSupersedesForegroundWithoutLeaving(t *testing.T) {
	fs := &fakeSender{}
	c := NewController(fs, nil)

	_ = c.Join("a")
	_ = c.Join("b")

	if c.Current() != "b" || !c.IsForeground("b") || c.IsForeground("a") {
		t.Errorf("current = %q", c.Current())
	}
	if joined := c.Joined(); len(joined) != 2 {
		t.Errorf("Joined() = %v, want both", joined)
	}
	for _, cmd := range fs.sent {
		if cmd.Type() == protocol.TypeLeaveConversation {
			t.Error("switching conversations sent leave_conversation")
		}
	}
}

func TestLeave(t *testing.T) {
	fs := &fakeSender{}
	c := NewController(fs, nil)
	_ = c.Join("a")
	_ = c.Join("b")

	_ = c.Leave("a")
	if c.Current() != "b" {
		t.Errorf("leaving a background conversation cleared current: %q", c.Current())
	}
	_ = c.Leave("b")
	if c.Current() != "" || c.IsForeground("") {
		t.Errorf("current = %q after leaving it", c.Current())
	}
	if len(c.Joined()) != 0 {
		t.Errorf("Joined() = %v", c.Joined())
	}
	last := fs.sent[len(fs.sent)-1].(protocol.LeaveConversation)
	if last.ConversationID != "b" {
		t.Errorf("last frame = %+v", last)
	}
}

func TestJoinIsBestEffort(t *testing.T) {
	fs := &fakeSender{err: errors.New("not connected")}
	c := NewController(fs, nil)

	if err := c.Join("a"); err == nil {
		t.Error("Join() error = nil with a failing sender")
	}
	if !c.IsForeground("a") {
		t.Error("failed send did not update membership")
	}

	fs.err = nil
	_ = c.Join("b")
	fs.sent = nil
	if failed := c.Rejoin(); failed != 0 {
		t.Errorf("Rejoin() failed = %d", failed)
	}
	if len(fs.sent) != 2 {
		t.Fatalf("rejoin sent %d frames, want 2", len(fs.sent))
	}
	if fs.sent[0].(protocol.JoinConversation).ConversationID != "a" {
		t.Errorf("rejoin order = %+v", fs.sent)
	}
}
