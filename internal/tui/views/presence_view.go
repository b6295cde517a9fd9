package views

import (
	"fmt"
	"sort"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/rentchat/internal/api"
	"github.com/matheus3301/rentchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// PresenceView lists known users, online first.
type PresenceView struct {
	*tview.Table
	theme *ui.Theme
}

func NewPresenceView(theme *ui.Theme) *PresenceView {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Presence ")
	table.SetTitleColor(theme.TitleColor)
	return &PresenceView{Table: table, theme: theme}
}

func (pv *PresenceView) Name() string  { return "presence" }
func (pv *PresenceView) Title() string { return "Presence" }

func (pv *PresenceView) Focus() tview.Primitive {
	return pv
}

// Update renders users sorted online first, then by name.
func (pv *PresenceView) Update(users []api.PresenceEntry) {
	users = append([]api.PresenceEntry(nil), users...)
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].IsOnline != users[j].IsOnline {
			return users[i].IsOnline
		}
		return presenceName(users[i]) < presenceName(users[j])
	})

	pv.Clear()
	for col, h := range []string{" USER", " STATUS", " LAST SEEN"} {
		pv.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(pv.theme.TableHeaderFg).
			SetBackgroundColor(pv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(1))
	}
	online := 0
	for i, u := range users {
		state, color := "offline", pv.theme.PendingColor
		if u.IsOnline {
			state, color = "online", pv.theme.OpenColor
			online++
		}
		seen := "-"
		if u.LastSeenMs > 0 {
			seen = time.UnixMilli(u.LastSeenMs).Format("01/02 15:04")
		}
		pv.SetCell(i+1, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(presenceName(u)))).SetTextColor(pv.theme.FgColor))
		pv.SetCell(i+1, 1, tview.NewTableCell(" "+state).SetTextColor(color))
		pv.SetCell(i+1, 2, tview.NewTableCell(" "+seen).SetTextColor(pv.theme.FgColor))
	}
	pv.SetTitle(fmt.Sprintf(" Presence (%d/%d online) ", online, len(users)))
}

func presenceName(u api.PresenceEntry) string {
	if u.UserName != "" {
		return u.UserName
	}
	return u.UserID
}
