package ui

import "github.com/rivo/tview"

// Header is the top band: session info, key hints and the logo.
type Header struct {
	*tview.Flex
	Info *SessionInfo
	Menu *Menu
	Logo *Logo
}

// NewHeader lays out the header widgets side by side.
func NewHeader(theme *Theme) *Header {
	h := &Header{
		Flex: tview.NewFlex(),
		Info: NewSessionInfo(theme),
		Menu: NewMenu(theme),
		Logo: NewLogo(theme),
	}
	h.SetBackgroundColor(theme.BgColor)
	h.AddItem(h.Info, 40, 0, false).
		AddItem(h.Menu, 0, 1, false).
		AddItem(h.Logo, 28, 0, false)
	return h
}
