package ui

import (
	"slices"

	"github.com/rivo/tview"
)

// Pages keeps a navigation stack over tview.Pages; only the top is visible.
type Pages struct {
	*tview.Pages
	stack    []string
	onChange func(stack []string)
}

func NewPages() *Pages {
	return &Pages{Pages: tview.NewPages()}
}

// SetOnChange registers fn to run with a copy of the stack after every change.
func (p *Pages) SetOnChange(fn func(stack []string)) {
	p.onChange = fn
}

func (p *Pages) Push(name string) {
	if top := p.Current(); top != "" {
		p.HidePage(top)
	}
	p.stack = append(p.stack, name)
	p.show()
}

// Pop removes the top page and returns its name. The last page stays.
func (p *Pages) Pop() string {
	if len(p.stack) < 2 {
		return ""
	}
	top := p.stack[len(p.stack)-1]
	p.HidePage(top)
	p.stack = p.stack[:len(p.stack)-1]
	p.show()
	return top
}

// PopTo unwinds to the nearest name on the stack, or resets to it when it
// is not there.
func (p *Pages) PopTo(name string) {
	i := slices.Index(p.stack, name)
	if i < 0 {
		p.Reset(name)
		return
	}
	if i == len(p.stack)-1 {
		return
	}
	for _, n := range p.stack[i+1:] {
		p.HidePage(n)
	}
	p.stack = p.stack[:i+1]
	p.show()
}

func (p *Pages) Reset(name string) {
	for _, n := range p.stack {
		p.HidePage(n)
	}
	p.stack = []string{name}
	p.show()
}

func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

func (p *Pages) Depth() int { return len(p.stack) }

func (p *Pages) show() {
	top := p.Current()
	p.ShowPage(top)
	p.SendToFront(top)
	if p.onChange != nil {
		p.onChange(slices.Clone(p.stack))
	}
}
