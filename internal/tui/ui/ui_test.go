package ui

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestPagesPopTo(t *testing.T) {
	p := NewPages()
	var last []string
	p.SetOnChange(func(stack []string) { last = stack })
	for _, n := range []string{"conversations", "thread", "details"} {
		p.AddPage(n, NewCrumbs(DefaultTheme()), true, false)
	}

	p.Reset("conversations")
	p.Push("thread")
	p.Push("details")
	p.PopTo("conversations")
	if !slices.Equal(last, []string{"conversations"}) {
		t.Errorf("stack after PopTo = %v", last)
	}

	p.Push("search")
	p.PopTo("thread")
	if !slices.Equal(last, []string{"thread"}) {
		t.Errorf("PopTo missing page = %v, want reset to thread", last)
	}

	if got := p.Pop(); got != "" || p.Depth() != 1 {
		t.Errorf("Pop() on the last page = %q, depth %d", got, p.Depth())
	}
}

func TestMenuColumns(t *testing.T) {
	m := NewMenu(DefaultTheme())
	var hints []MenuHint
	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		hints = append(hints, MenuHint{Key: k, Description: "do " + k})
	}
	lines := strings.Split(strings.TrimRight(m.render(hints), "\n"), "\n")
	if len(lines) != menuRows {
		t.Fatalf("rendered %d rows, want %d", len(lines), menuRows)
	}
	if !strings.Contains(lines[0], "<a>") || !strings.Contains(lines[0], "<g>") {
		t.Errorf("first row = %q, want a and g side by side", lines[0])
	}
	if strings.Contains(lines[5], "<g>") || strings.Contains(lines[5], "<h>") {
		t.Errorf("last row = %q, second column has only two entries", lines[5])
	}
}

func TestPromptHistory(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	var got []string
	p.SetOnSubmit(func(_ PromptMode, text string) { got = append(got, text) })

	p.Activate(PromptCommand)
	for _, cmd := range []string{"open 7", "read", "read"} {
		p.remember(cmd)
	}
	p.Activate(PromptCommand)
	p.recall(-1)
	if p.GetText() != "read" {
		t.Errorf("recall -1 = %q, want read", p.GetText())
	}
	p.recall(-1)
	p.recall(-1)
	if p.GetText() != "open 7" {
		t.Errorf("recall at oldest = %q, want open 7", p.GetText())
	}
	p.recall(1)
	p.recall(1)
	if p.GetText() != "" {
		t.Errorf("recall past newest = %q, want empty", p.GetText())
	}

	p.Activate(PromptFilter)
	p.recall(-1)
	if p.GetText() != "" {
		t.Errorf("filter history leaked command history: %q", p.GetText())
	}
}

func TestFlashRepeatsAndSticky(t *testing.T) {
	now := time.Unix(1000, 0)
	f := NewFlashModel()
	f.now = func() time.Time { return now }

	f.Warn("reconnecting")
	f.Warn("reconnecting")
	if m := f.Current(); m == nil || m.Repeats != 2 {
		t.Fatalf("Current() = %+v, want 2 repeats", m)
	}

	f.Alert("connection lost", "warning", true)
	f.Info("sent")
	if m := f.Current(); m == nil || m.Text != "connection lost" {
		t.Errorf("info replaced a sticky alert: %+v", m)
	}
	now = now.Add(time.Hour)
	if f.Current() == nil {
		t.Error("sticky alert expired")
	}

	f.Err(errors.New("send failed"))
	if m := f.Current(); m == nil || m.Text != "send failed" {
		t.Errorf("error did not replace sticky alert: %+v", m)
	}
	now = now.Add(11 * time.Second)
	if m := f.Current(); m != nil {
		t.Errorf("error still shown after expiry: %+v", m)
	}

	f.Alert("daemon restarting", "info", true)
	f.Dismiss()
	if m := f.Current(); m != nil {
		t.Errorf("Current() after Dismiss = %+v", m)
	}
}
