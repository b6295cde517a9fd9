package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/rentchat/internal/api"
	"github.com/matheus3301/rentchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// SearchView runs full-text queries over the message journal, either across
// every conversation or scoped to the one that is open. Tab toggles scope.
type SearchView struct {
	*tview.Flex
	theme   *ui.Theme
	input   *tview.InputField
	results *tview.Table
	data    []api.SearchResult

	conv    string // open conversation, "" when none
	scoped  bool
	onQuery func(query, conv string)
}

func NewSearchView(theme *ui.Theme) *SearchView {
	input := tview.NewInputField().SetFieldWidth(0)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	results.SetBorder(true)
	results.SetBorderColor(theme.BorderColor)
	results.SetBackgroundColor(theme.BgColor)
	results.SetTitleColor(theme.TitleColor)
	results.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	sv := &SearchView{
		Flex: tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(input, 1, 0, true).
			AddItem(results, 0, 1, false),
		theme:   theme,
		input:   input,
		results: results,
	}

	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			if q := strings.TrimSpace(input.GetText()); q != "" && sv.onQuery != nil {
				sv.onQuery(q, sv.Scope())
			}
		case tcell.KeyTab:
			sv.scoped = !sv.scoped && sv.conv != ""
			sv.relabel()
		}
	})
	sv.relabel()
	sv.Update(nil)
	return sv
}

func (sv *SearchView) Name() string  { return "search" }
func (sv *SearchView) Title() string { return "Search" }

// Focus lands on the results once there are any, else on the query.
func (sv *SearchView) Focus() tview.Primitive {
	if len(sv.data) > 0 {
		return sv.results
	}
	return sv.input
}

// SetOnQuery sets the callback run with the query and the conversation it
// is scoped to ("" for all).
func (sv *SearchView) SetOnQuery(fn func(query, conv string)) {
	sv.onQuery = fn
}

// SetConversation records the open conversation; scoping is on by default
// while one is open.
func (sv *SearchView) SetConversation(conv string) {
	sv.conv = conv
	sv.scoped = conv != ""
	sv.relabel()
}

// Scope is the conversation the next query is limited to.
func (sv *SearchView) Scope() string {
	if sv.scoped {
		return sv.conv
	}
	return ""
}

// SetQuery fills the input without running it.
func (sv *SearchView) SetQuery(q string) {
	sv.input.SetText(q)
}

func (sv *SearchView) relabel() {
	label := " Search all: "
	if sv.scoped {
		label = fmt.Sprintf(" Search #%s: ", sv.conv)
	}
	sv.input.SetLabel(label)
}

func (sv *SearchView) Update(results []api.SearchResult) {
	sv.data = results
	sv.results.Clear()

	for col, h := range []string{" CONVERSATION", " FROM", " MATCH", " TIME"} {
		sv.results.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(sv.theme.TableHeaderFg).
			SetBackgroundColor(sv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold))
	}

	hl := sv.theme.Tag(sv.theme.UnreadColor)
	for i, r := range results {
		m := r.Message
		sv.results.SetCell(i+1, 0, tview.NewTableCell(" #"+tview.Escape(m.ConversationID)).SetMaxWidth(16).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(i+1, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(senderName(m)))).SetMaxWidth(20).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(i+1, 2, tview.NewTableCell(" "+highlightSnippet(sanitizeForTerminal(r.Snippet), hl)).SetExpansion(1).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(i+1, 3, tview.NewTableCell(" "+formatTimestamp(m.SentAtMs)).SetMaxWidth(12).SetTextColor(sv.theme.FgColor))
	}
	sv.results.SetTitle(fmt.Sprintf(" Results (%d) ", len(results)))
}

// SelectedResult returns the conversation and message id under the cursor.
func (sv *SearchView) SelectedResult() (string, string) {
	row, _ := sv.results.GetSelection()
	if i := row - 1; i >= 0 && i < len(sv.data) {
		return sv.data[i].Message.ConversationID, sv.data[i].Message.ID
	}
	return "", ""
}

func (sv *SearchView) Results() *tview.Table {
	return sv.results
}
