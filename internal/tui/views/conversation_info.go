package views

import (
	"fmt"

	"github.com/matheus3301/rentchat/internal/api"
	"github.com/matheus3301/rentchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationInfo shows a conversation's details and a QR code of its
// deep link, for picking the thread up on a phone.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (ci *ConversationInfo) Name() string  { return "details" }
func (ci *ConversationInfo) Title() string { return "Details" }

func (ci *ConversationInfo) Focus() tview.Primitive {
	return ci
}

// Update renders conversation details.
func (ci *ConversationInfo) Update(c api.Conversation, typers []api.Typer) {
	ci.Clear()

	fg := ci.theme.Tag(ci.theme.FgColor)
	ct := ci.theme.Tag(ci.theme.CounterColor)

	lastActive := formatTimestamp(c.LastActivityMs)
	if lastActive == "" {
		lastActive = "-"
	}
	source := "journal"
	if c.Live {
		source = "live"
	}
	typing := typingLine(typers)
	if typing == "" {
		typing = "-"
	}
	link := DeepLink(c.ID)

	_, _ = fmt.Fprintf(ci,
		"\n [%s::b]Title:[-:-:-]        [%s]%s[-]\n"+
			" [%s::b]ID:[-:-:-]           [%s]%s[-]\n"+
			" [%s::b]Unread:[-:-:-]       [%s]%d[-]\n"+
			" [%s::b]Last Active:[-:-:-]  [%s]%s[-]\n"+
			" [%s::b]Last Message:[-:-:-] [%s]%s[-]\n"+
			" [%s::b]Typing:[-:-:-]       [%s]%s[-]\n"+
			" [%s::b]Source:[-:-:-]       [%s]%s[-]\n"+
			" [%s::b]Link:[-:-:-]         [%s]%s[-]\n\n%s",
		fg, ct, tview.Escape(conversationName(c)),
		fg, ct, c.ID,
		fg, ct, c.Unread,
		fg, ct, lastActive,
		fg, ct, tview.Escape(sanitizeForTerminal(c.Preview)),
		fg, ct, tview.Escape(typing),
		fg, ct, source,
		fg, ct, link,
		renderQR(link),
	)
	ci.SetTitle(fmt.Sprintf(" %s Details ", tview.Escape(conversationName(c))))
	ci.ScrollToBeginning()
}
