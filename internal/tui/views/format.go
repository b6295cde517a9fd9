package views

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/matheus3301/rentchat/internal/api"
	"github.com/rivo/tview"
)

// sanitizeForTerminal drops codepoints tcell renders badly: skin tone
// modifiers, zero width joiners and variation selectors. A thumbs-up with a
// skin tone becomes a plain 2-cell thumbs-up.
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isProblematicRune(r) {
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// conversationName is the title, or the id for untitled conversations.
func conversationName(c api.Conversation) string {
	if c.Title != "" {
		return c.Title
	}
	return "#" + c.ID
}

func senderName(m api.Message) string {
	switch {
	case m.FromMe:
		return "You"
	case m.SenderName != "":
		return m.SenderName
	default:
		return m.SenderID
	}
}

// typingLine renders who is typing, or "" when nobody is.
func typingLine(typers []api.Typer) string {
	names := make([]string, 0, len(typers))
	for _, t := range typers {
		n := t.UserName
		if n == "" {
			n = t.UserID
		}
		names = append(names, n)
	}
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing..."
	default:
		return strings.Join(names, ", ") + " are typing..."
	}
}

// highlightSnippet escapes s for tview and colors the <<match>> spans the
// journal's snippet() marks.
func highlightSnippet(s, tag string) string {
	var b strings.Builder
	for {
		open := strings.Index(s, "<<")
		if open < 0 {
			break
		}
		end := strings.Index(s[open+2:], ">>")
		if end < 0 {
			break
		}
		b.WriteString(tview.Escape(s[:open]))
		b.WriteString("[" + tag + "::b]")
		b.WriteString(tview.Escape(s[open+2 : open+2+end]))
		b.WriteString("[-::-]")
		s = s[open+2+end+2:]
	}
	b.WriteString(tview.Escape(s))
	return b.String()
}
