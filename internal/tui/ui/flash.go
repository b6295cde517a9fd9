package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
)

type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

// FlashMessage is what the flash bar shows. Repeats counts how many times
// the same text arrived back to back.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Repeats int
	Sticky  bool
	Expires time.Time
}

// FlashModel holds the current notification. Daemon alerts and local
// errors both land here.
type FlashModel struct {
	mu      sync.RWMutex
	now     func() time.Time
	current FlashMessage
	watchCh chan FlashMessage
}

func NewFlashModel() *FlashModel {
	return &FlashModel{
		now:     time.Now,
		watchCh: make(chan FlashMessage, 8),
	}
}

func (f *FlashModel) Info(msg string) { f.set(msg, FlashInfo, false) }
func (f *FlashModel) Warn(msg string) { f.set(msg, FlashWarn, false) }
func (f *FlashModel) Err(err error)   { f.set(err.Error(), FlashErr, false) }

// Alert shows a daemon alert. Sticky alerts stay until dismissed or
// replaced by an error.
func (f *FlashModel) Alert(msg, severity string, sticky bool) {
	level := FlashInfo
	switch severity {
	case "warning":
		level = FlashWarn
	case "error":
		level = FlashErr
	}
	f.set(msg, level, sticky)
}

// Dismiss clears the current message, sticky or not.
func (f *FlashModel) Dismiss() {
	f.mu.Lock()
	f.current = FlashMessage{}
	f.mu.Unlock()
	f.publish(FlashMessage{})
}

func lifetime(level FlashLevel) time.Duration {
	switch level {
	case FlashWarn:
		return 8 * time.Second
	case FlashErr:
		return 10 * time.Second
	}
	return 5 * time.Second
}

func (f *FlashModel) set(msg string, level FlashLevel, sticky bool) {
	now := f.now()
	f.mu.Lock()
	cur := f.current
	live := cur.Text != "" && (cur.Sticky || now.Before(cur.Expires))
	if live && cur.Sticky && !sticky && level < FlashErr {
		// A sticky alert outranks routine chatter.
		f.mu.Unlock()
		return
	}
	fm := FlashMessage{Text: msg, Level: level, Sticky: sticky, Expires: now.Add(lifetime(level)), Repeats: 1}
	if live && cur.Text == msg {
		fm.Repeats = cur.Repeats + 1
	}
	f.current = fm
	f.mu.Unlock()
	f.publish(fm)
}

func (f *FlashModel) publish(fm FlashMessage) {
	select {
	case f.watchCh <- fm:
	default:
	}
}

// Current returns the live message, or nil once it expired.
func (f *FlashModel) Current() *FlashMessage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current.Text == "" || (!f.current.Sticky && f.now().After(f.current.Expires)) {
		return nil
	}
	m := f.current
	return &m
}

func (f *FlashModel) Watch() <-chan FlashMessage {
	return f.watchCh
}

// FlashBar is the bottom notification line.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	return &FlashBar{TextView: tv, theme: theme}
}

func (fb *FlashBar) Update(msg *FlashMessage) {
	fb.Clear()
	if msg == nil || msg.Text == "" {
		return
	}
	color := fb.theme.FlashInfoColor
	switch msg.Level {
	case FlashWarn:
		color = fb.theme.FlashWarnColor
	case FlashErr:
		color = fb.theme.FlashErrColor
	}
	text := tview.Escape(msg.Text)
	if msg.Repeats > 1 {
		text += fmt.Sprintf(" (x%d)", msg.Repeats)
	}
	if msg.Sticky {
		text += " [::d]ctrl-l to dismiss[::-]"
	}
	_, _ = fmt.Fprintf(fb, " [%s]%s[-]", colorName(color), text)
}
