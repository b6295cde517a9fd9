package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// MenuHint is one shortcut shown in the header menu.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // digit shortcuts get their own color
}

// Component is a page of the app. Name is the stable page key; Title is
// what the breadcrumb shows and may change while the page is up (the
// thread shows the conversation name).
type Component interface {
	tview.Primitive
	Name() string
	Title() string
	Focus() tview.Primitive
}

// menuRows matches the header height minus its border padding.
const menuRows = 6

// Menu lays hints out column-major, menuRows per column.
type Menu struct {
	*tview.TextView
	theme *Theme
}

func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)
	return &Menu{TextView: tv, theme: theme}
}

func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	_, _ = fmt.Fprint(m, m.render(hints))
}

func (m *Menu) render(hints []MenuHint) string {
	cells := make([]string, len(hints))
	widths := make([]int, (len(hints)+menuRows-1)/menuRows)
	for i, h := range hints {
		plain := fmt.Sprintf("<%s> %s", h.Key, h.Description)
		if col := i / menuRows; len(plain) > widths[col] {
			widths[col] = len(plain)
		}
		kc := colorName(m.theme.MenuKeyColor)
		if h.Numeric {
			kc = colorName(m.theme.NumericKeyColor)
		}
		cells[i] = fmt.Sprintf("[%s::b]<%s>[-:-:-] %s", kc, h.Key, h.Description)
	}

	var b strings.Builder
	for row := 0; row < menuRows && row < len(hints); row++ {
		for col := range widths {
			i := col*menuRows + row
			if i >= len(hints) {
				break
			}
			b.WriteString(cells[i])
			if col < len(widths)-1 && i+menuRows < len(hints) {
				plain := len(hints[i].Key) + len(hints[i].Description) + 3
				b.WriteString(strings.Repeat(" ", widths[col]-plain+3))
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Crumbs shows the page stack as titles.
type Crumbs struct {
	*tview.TextView
	theme *Theme
}

func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	return &Crumbs{TextView: tv, theme: theme}
}

func (c *Crumbs) Update(titles []string) {
	c.Clear()
	parts := make([]string, len(titles))
	for i, t := range titles {
		fg, bg, attr := c.theme.CrumbInactiveFg, c.theme.CrumbInactiveBg, ""
		if i == len(titles)-1 {
			fg, bg, attr = c.theme.CrumbActiveFg, c.theme.CrumbActiveBg, "b"
		}
		parts[i] = fmt.Sprintf("[%s:%s:%s] %s [-:-:-]", colorName(fg), colorName(bg), attr, tview.Escape(t))
	}
	_, _ = fmt.Fprint(c, strings.Join(parts, " "))
}

// colorName returns a tview color tag for c.
func colorName(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
