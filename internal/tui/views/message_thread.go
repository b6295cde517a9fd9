package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/rentchat/internal/api"
	"github.com/matheus3301/rentchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread displays messages and a composer for a single conversation.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	typing   *tview.TextView
	composer *tview.InputField
	name     string
	onSend   func(text string)
	onType   func()
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	typing := tview.NewTextView().SetDynamicColors(true)
	typing.SetBackgroundColor(theme.BgColor)
	typing.SetTextColor(theme.PendingColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(typing, 1, 0, false).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		typing:   typing,
		composer: composer,
	}

	composer.SetChangedFunc(func(text string) {
		if text != "" && mt.onType != nil {
			mt.onType()
		}
	})
	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && mt.onSend != nil {
			text := composer.GetText()
			if text != "" {
				composer.SetText("")
				mt.onSend(text)
			}
		}
	})

	return mt
}

func (mt *MessageThread) Name() string { return "thread" }

// Title is the open conversation's name.
func (mt *MessageThread) Title() string {
	if mt.name != "" {
		return mt.name
	}
	return "Messages"
}

// Focus lands on the composer.
func (mt *MessageThread) Focus() tview.Primitive {
	return mt.composer
}

// SetConversation updates the title.
func (mt *MessageThread) SetConversation(c api.Conversation) {
	mt.name = conversationName(c)
	mt.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(mt.name)))
}

// SetOnSend sets the callback when a message is submitted.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// SetOnType sets the callback fired on every edit of a non-empty draft.
func (mt *MessageThread) SetOnType(fn func()) {
	mt.onType = fn
}

// Update renders msgs oldest first.
func (mt *MessageThread) Update(msgs []api.Message) {
	mt.messages.Clear()
	for _, m := range msgs {
		_, _ = fmt.Fprint(mt.messages, mt.line(m))
	}
	mt.messages.ScrollToEnd()
}

func (mt *MessageThread) line(m api.Message) string {
	marker := ""
	switch m.Status {
	case "PENDING":
		marker = fmt.Sprintf(" [%s]sending...[-]", mt.theme.Tag(mt.theme.PendingColor))
	case "FAILED":
		reason := m.FailureReason
		if reason == "" {
			reason = "failed"
		}
		marker = fmt.Sprintf(" [%s]failed: %s (r retry, x discard)[-]", mt.theme.Tag(mt.theme.FailedColor), tview.Escape(reason))
	default:
		if m.FromMe && m.Read {
			marker = " [::d]read[-:-:-]"
		}
	}
	return fmt.Sprintf("[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n",
		tview.Escape(sanitizeForTerminal(senderName(m))), formatTimestamp(m.SentAtMs), marker,
		tview.Escape(sanitizeForTerminal(m.Body)))
}

// SetTyping shows who is typing under the messages.
func (mt *MessageThread) SetTyping(typers []api.Typer) {
	mt.typing.SetText(" " + tview.Escape(typingLine(typers)))
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
