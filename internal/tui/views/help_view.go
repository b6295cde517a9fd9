package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/rentchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements Component.
func (hv *HelpView) Name() string  { return "help" }
func (hv *HelpView) Title() string { return "Help" }

func (hv *HelpView) Focus() tview.Primitive {
	return hv
}

var helpSections = []struct {
	title string
	keys  [][2]string
}{
	{"Global Keys", [][2]string{
		{":", "Command mode"},
		{"Esc", "Cancel / Go back"},
		{"?", "Help"},
		{"q", "Quit"},
		{"Ctrl-L", "Dismiss alert"},
		{"Ctrl-C", "Quit immediately"},
	}},
	{"Conversation List", [][2]string{
		{"Enter", "Open conversation"},
		{"/", "Filter by title or last message"},
		{"1-9", "Jump to Nth conversation"},
		{"s", "Search message history"},
		{"p", "Presence roster"},
	}},
	{"Message Thread", [][2]string{
		{"i", "Focus composer"},
		{"Enter", "Send message (in composer)"},
		{"r", "Retry last failed message"},
		{"x", "Discard last failed message"},
		{"d", "Conversation details and QR link"},
		{"/", "Search this conversation (Tab: all)"},
	}},
	{"Commands (: mode)", [][2]string{
		{":open <id>", "Open conversation by id"},
		{":search <query>", "Search message history"},
		{":fallback <text>", "Send through the REST API"},
		{":read", "Mark the open conversation read"},
		{":presence", "Presence roster"},
		{":help / :h", "Show this help"},
		{":quit / :q", "Quit application"},
		{"Up / Down", "Previous commands"},
	}},
}

func (hv *HelpView) render() {
	kc := hv.theme.Tag(hv.theme.MenuKeyColor)
	var b strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, k := range s.keys {
			fmt.Fprintf(&b, "  [%s]%-18s[-:-:-] %s\n", kc, tview.Escape(k[0]), k[1])
		}
	}
	_, _ = fmt.Fprint(hv, b.String())
}
