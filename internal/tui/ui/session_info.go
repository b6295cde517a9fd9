package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// SessionData holds session information for display.
type SessionData struct {
	Session       string
	UserID        string
	Messaging     string
	Presence      string
	Attempts      int
	Conversations int64
	Messages      int64
	Pending       int
	Uptime        time.Duration
}

// SessionInfo displays session metadata in the header.
type SessionInfo struct {
	*tview.TextView
	theme *Theme
}

// NewSessionInfo creates a new session info panel.
func NewSessionInfo(theme *Theme) *SessionInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &SessionInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the session info.
func (si *SessionInfo) Update(data *SessionData) {
	si.Clear()
	if data == nil {
		return
	}

	fg := colorName(si.theme.FgColor)
	ct := colorName(si.theme.CounterColor)

	messaging := data.Messaging
	if data.Attempts > 0 {
		messaging = fmt.Sprintf("%s (retry %d)", messaging, data.Attempts)
	}
	presence := data.Presence
	if presence == "" {
		presence = "-"
	}

	_, _ = fmt.Fprintf(si,
		"[%s::b]Session:[-:-:-]   [%s]%s[-]\n"+
			"[%s::b]User:[-:-:-]      [%s]%s[-]\n"+
			"[%s::b]Messaging:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]Presence:[-:-:-]  [%s]%s[-]\n"+
			"[%s::b]Convs:[-:-:-]     [%s]%d[-] [%s::b]Msgs:[-:-:-] [%s]%d[-]\n"+
			"[%s::b]Pending:[-:-:-]   [%s]%d[-] [%s::b]Up:[-:-:-] [%s]%s[-]",
		fg, ct, data.Session,
		fg, ct, data.UserID,
		fg, colorName(si.theme.StateColor(data.Messaging)), messaging,
		fg, colorName(si.theme.StateColor(data.Presence)), presence,
		fg, ct, data.Conversations, fg, ct, data.Messages,
		fg, ct, data.Pending, fg, ct, formatDuration(data.Uptime),
	)
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
