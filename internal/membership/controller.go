// Package membership tracks which conversations the client has joined and
// which one is in the foreground.
package membership

import (
	"slices"

	"github.com/matheus3301/rentchat/internal/protocol"
	"go.uber.org/zap"
)

// Sender submits a command on the messaging channel.
type Sender interface {
	Send(cmd protocol.Command) error
}

// Controller is owned by the engine loop.
type Controller struct {
	sender Sender
	logger *zap.Logger

	current string
	joined  map[string]struct{}
}

func NewController(s Sender, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{sender: s, logger: logger, joined: make(map[string]struct{})}
}

// Join makes conv the foreground conversation and tells the server.
// Membership changes locally even if the frame cannot be sent; the engine
// re-sends joins after the next reconnect. A previous foreground
// conversation stays joined.
func (c *Controller) Join(conv string) error {
	c.current = conv
	c.joined[conv] = struct{}{}
	if err := c.sender.Send(protocol.JoinConversation{ConversationID: conv}); err != nil {
		c.logger.Debug("join_conversation not sent", zap.String("conversation", conv), zap.Error(err))
		return err
	}
	return nil
}

// Leave drops conv from the joined set and clears the foreground pointer
// if it pointed at conv.
func (c *Controller) Leave(conv string) error {
	delete(c.joined, conv)
	if c.current == conv {
		c.current = ""
	}
	if err := c.sender.Send(protocol.LeaveConversation{ConversationID: conv}); err != nil {
		c.logger.Debug("leave_conversation not sent", zap.String("conversation", conv), zap.Error(err))
		return err
	}
	return nil
}

// Current returns the foreground conversation, or "".
func (c *Controller) Current() string { return c.current }

// IsForeground reports whether conv is the foreground conversation.
func (c *Controller) IsForeground(conv string) bool {
	return conv != "" && c.current == conv
}

// Joined lists every joined conversation in id order.
func (c *Controller) Joined() []string {
	out := make([]string, 0, len(c.joined))
	for conv := range c.joined {
		out = append(out, conv)
	}
	slices.Sort(out)
	return out
}

// Rejoin re-sends join_conversation for every joined conversation and
// returns how many frames could not be sent.
func (c *Controller) Rejoin() int {
	failed := 0
	for _, conv := range c.Joined() {
		if err := c.sender.Send(protocol.JoinConversation{ConversationID: conv}); err != nil {
			failed++
		}
	}
	return failed
}
