package sync

import (
	"slices"
	"strings"
	"time"

	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/clock"
	"go.uber.org/zap"
)

// Hooks connect the reconciler to its collaborators. Every hook is optional.
type Hooks struct {
	// IsForeground reports whether the user is viewing conv.
	IsForeground func(conv string) bool
	// MarkRead asks the server to mark ids read. Best-effort.
	MarkRead func(conv string, ids []string)
	// Notify surfaces a new remote message for a background conversation.
	// It must not block.
	Notify func(Message)
}

type conversation struct {
	id           string
	messages     []Message
	index        map[string]int
	unread       int
	lastActivity time.Time
}

func (c *conversation) reindexFrom(pos int) {
	for i := pos; i < len(c.messages); i++ {
		c.index[c.messages[i].ID] = i
	}
}

// Reconciler owns the per-conversation message sequences. It is not safe for
// concurrent use; the engine calls it from its loop goroutine only.
type Reconciler struct {
	localUser string
	hooks     Hooks
	clock     clock.Clock
	bus       *bus.Bus
	logger    *zap.Logger

	convs map[string]*conversation
}

// NewReconciler creates an empty reconciler for localUser.
func NewReconciler(localUser string, hooks Hooks, c clock.Clock, b *bus.Bus, logger *zap.Logger) *Reconciler {
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		localUser: localUser,
		hooks:     hooks,
		clock:     c,
		bus:       b,
		logger:    logger,
		convs:     make(map[string]*conversation),
	}
}

func (r *Reconciler) conv(id string) *conversation {
	c, ok := r.convs[id]
	if !ok {
		c = &conversation{id: id, index: make(map[string]int)}
		r.convs[id] = c
	}
	return c
}

func (r *Reconciler) touch(c *conversation, m Message) {
	if m.SentAt.After(c.lastActivity) {
		c.lastActivity = m.SentAt
	}
}

// ApplyNew reconciles a server-pushed message. A message whose id is already
// in the conversation is skipped and ApplyNew returns false.
func (r *Reconciler) ApplyNew(m Message) bool {
	if m.ID == "" || m.ConversationID == "" {
		return false
	}
	c := r.conv(m.ConversationID)
	if _, dup := c.index[m.ID]; dup {
		r.logger.Debug("duplicate message skipped",
			zap.String("conversation", m.ConversationID), zap.String("id", m.ID))
		return false
	}
	if m.SentAt.IsZero() {
		m.SentAt = r.clock.Now()
	}
	if m.Status == "" {
		m.Status = Sent
	}
	if m.Provenance == "" {
		m.Provenance = Remote
		if r.localUser != "" && m.SenderID == r.localUser {
			m.Provenance = Local
		}
	}

	if m.Provenance == Remote && !m.Read {
		if r.isForeground(m.ConversationID) {
			m.Read = true
			if r.hooks.MarkRead != nil {
				r.hooks.MarkRead(m.ConversationID, []string{m.ID})
			}
		} else {
			c.unread++
			if r.hooks.Notify != nil {
				r.hooks.Notify(m)
			}
		}
	}

	r.append(c, m)
	return true
}

func (r *Reconciler) isForeground(conv string) bool {
	return r.hooks.IsForeground != nil && r.hooks.IsForeground(conv)
}

func (r *Reconciler) append(c *conversation, m Message) {
	c.index[m.ID] = len(c.messages)
	c.messages = append(c.messages, m)
	r.touch(c, m)
	r.publish(bus.MessageAppended, c.id, m)
	r.publish(bus.ConversationUpdated, c.id, r.summary(c))
}

// ApplyReadReceipt sets the read flag on every known id. Unknown ids are
// ignored: the message may simply not be reconciled yet.
func (r *Reconciler) ApplyReadReceipt(conv string, ids []string) []string {
	c, ok := r.convs[conv]
	if !ok {
		return nil
	}
	var changed []string
	for _, id := range ids {
		pos, ok := c.index[id]
		if !ok || c.messages[pos].Read {
			continue
		}
		m := &c.messages[pos]
		m.Read = true
		if m.Provenance == Remote && c.unread > 0 {
			c.unread--
		}
		changed = append(changed, id)
	}
	if len(changed) > 0 {
		r.publish(bus.MessageRead, conv, ReadChange{ConversationID: conv, IDs: changed})
	}
	return changed
}

// AppendPending inserts a locally composed message at the tail with status
// PENDING.
func (r *Reconciler) AppendPending(conv, tempID, body string) Message {
	m := Message{
		ID:             tempID,
		ConversationID: conv,
		SenderID:       r.localUser,
		Body:           body,
		SentAt:         r.clock.Now(),
		Read:           true,
		Status:         Pending,
		Provenance:     Local,
	}
	r.append(r.conv(conv), m)
	return m
}

// Confirm replaces the pending entry tempID with the server's copy, in the
// same slot. If the server id is already present (a backfill got there
// first) the pending slot is dropped instead. Returns false if tempID is
// unknown.
func (r *Reconciler) Confirm(conv, tempID string, server Message) bool {
	c, ok := r.convs[conv]
	if !ok {
		return false
	}
	pos, ok := c.index[tempID]
	if !ok {
		return false
	}

	if _, dup := c.index[server.ID]; dup && server.ID != tempID {
		r.remove(c, pos)
		m := &c.messages[c.index[server.ID]]
		if m.Status != Sent {
			prev := *m
			m.Status = Sent
			m.FailureReason = ""
			r.publish(bus.MessageUpdated, conv, MessageChange{PreviousID: prev.ID, Message: *m})
		}
		return true
	}

	old := c.messages[pos]
	m := server
	m.ConversationID = conv
	m.Status = Sent
	m.Provenance = Local
	m.Read = true
	m.FailureReason = ""
	if m.SentAt.IsZero() {
		m.SentAt = old.SentAt
	}
	if m.SenderID == "" {
		m.SenderID = old.SenderID
	}
	c.messages[pos] = m
	delete(c.index, tempID)
	c.index[m.ID] = pos
	r.touch(c, m)
	r.publish(bus.MessageUpdated, conv, MessageChange{PreviousID: tempID, Message: m})
	return true
}

// MarkFailed moves a message to FAILED with reason.
func (r *Reconciler) MarkFailed(conv, id, reason string) bool {
	return r.setStatus(conv, id, Failed, reason)
}

// MarkPending moves a message back to PENDING, for retries.
func (r *Reconciler) MarkPending(conv, id string) bool {
	return r.setStatus(conv, id, Pending, "")
}

func (r *Reconciler) setStatus(conv, id string, s Status, reason string) bool {
	c, ok := r.convs[conv]
	if !ok {
		return false
	}
	pos, ok := c.index[id]
	if !ok {
		return false
	}
	m := &c.messages[pos]
	m.Status = s
	m.FailureReason = reason
	r.publish(bus.MessageUpdated, conv, MessageChange{PreviousID: id, Message: *m})
	return true
}

// Remove deletes a message from its conversation.
func (r *Reconciler) Remove(conv, id string) bool {
	c, ok := r.convs[conv]
	if !ok {
		return false
	}
	pos, ok := c.index[id]
	if !ok {
		return false
	}
	r.remove(c, pos)
	return true
}

func (r *Reconciler) remove(c *conversation, pos int) {
	m := c.messages[pos]
	delete(c.index, m.ID)
	c.messages = slices.Delete(c.messages, pos, pos+1)
	c.reindexFrom(pos)
	if m.Provenance == Remote && !m.Read && c.unread > 0 {
		c.unread--
	}
	r.publish(bus.MessageRemoved, c.id, m)
}

// MarkConversationRead marks every unread remote message of conv read and
// returns their ids, which the caller reports to the server.
func (r *Reconciler) MarkConversationRead(conv string) []string {
	c, ok := r.convs[conv]
	if !ok {
		return nil
	}
	var ids []string
	for i := range c.messages {
		m := &c.messages[i]
		if m.Provenance == Remote && !m.Read {
			m.Read = true
			ids = append(ids, m.ID)
		}
	}
	c.unread = 0
	if len(ids) > 0 {
		r.publish(bus.MessageRead, conv, ReadChange{ConversationID: conv, IDs: ids})
		r.publish(bus.ConversationUpdated, conv, r.summary(c))
	}
	return ids
}

// Touch records server-side activity on conv (conversation_updated).
func (r *Reconciler) Touch(conv string) {
	c := r.conv(conv)
	c.lastActivity = r.clock.Now()
	r.publish(bus.ConversationUpdated, conv, r.summary(c))
}

// Messages returns a copy of conv's ordered sequence.
func (r *Reconciler) Messages(conv string) []Message {
	c, ok := r.convs[conv]
	if !ok {
		return nil
	}
	return slices.Clone(c.messages)
}

// Message looks up one message by id.
func (r *Reconciler) Message(conv, id string) (Message, bool) {
	c, ok := r.convs[conv]
	if !ok {
		return Message{}, false
	}
	pos, ok := c.index[id]
	if !ok {
		return Message{}, false
	}
	return c.messages[pos], true
}

// UnreadCount returns the number of unread remote messages in conv.
func (r *Reconciler) UnreadCount(conv string) int {
	if c, ok := r.convs[conv]; ok {
		return c.unread
	}
	return 0
}

// Conversations lists every known conversation, most recently active first.
func (r *Reconciler) Conversations() []Conversation {
	out := make([]Conversation, 0, len(r.convs))
	for _, c := range r.convs {
		out = append(out, r.summary(c))
	}
	slices.SortFunc(out, func(a, b Conversation) int {
		if c := b.LastActivity.Compare(a.LastActivity); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Latest returns conv's newest server-confirmed message.
func (r *Reconciler) Latest(conv string) (Message, bool) {
	var latest Message
	found := false
	c, ok := r.convs[conv]
	if !ok {
		return latest, false
	}
	for _, m := range c.messages {
		if m.Status == Sent && (!found || m.SentAt.After(latest.SentAt)) {
			latest, found = m, true
		}
	}
	return latest, found
}

func (r *Reconciler) summary(c *conversation) Conversation {
	return Conversation{
		ID:           c.id,
		Messages:     len(c.messages),
		Unread:       c.unread,
		LastActivity: c.lastActivity,
	}
}

func (r *Reconciler) publish(kind, conv string, payload any) {
	r.bus.Publish(bus.Event{
		Kind:           kind,
		ConversationID: conv,
		Timestamp:      r.clock.Now(),
		Payload:        payload,
	})
}
