package keys

import (
	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/rentchat/internal/tui/ui"
)

// Action is one key binding. An action without a Handler is listed in the
// menu but handled elsewhere (table selection, digit jumps).
type Action struct {
	Key         tcell.Key
	Rune        rune
	Label       string // overrides the derived key label, e.g. "1-9"
	Description string
	Handler     func()
	Visible     bool
	Numeric     bool
}

// Matches reports whether ev triggers a.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Handler == nil {
		return false
	}
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// KeyLabel is how the menu shows the key.
func (a *Action) KeyLabel() string {
	switch {
	case a.Label != "":
		return a.Label
	case a.Key == tcell.KeyRune:
		return string(a.Rune)
	}
	if name, ok := tcell.KeyNames[a.Key]; ok {
		return name
	}
	return "?"
}

type binding struct {
	name   string
	action *Action
}

// Registry holds global and per-view bindings in registration order. View
// bindings win over global ones.
type Registry struct {
	global []binding
	views  map[string][]binding
}

func NewRegistry() *Registry {
	return &Registry{views: make(map[string][]binding)}
}

// AddGlobal registers or replaces a global binding.
func (r *Registry) AddGlobal(name string, action *Action) {
	r.global = upsert(r.global, name, action)
}

// AddView registers or replaces a binding scoped to view.
func (r *Registry) AddView(view, name string, action *Action) {
	r.views[view] = upsert(r.views[view], name, action)
}

func upsert(bs []binding, name string, a *Action) []binding {
	for i := range bs {
		if bs[i].name == name {
			bs[i].action = a
			return bs
		}
	}
	return append(bs, binding{name, a})
}

// Hints lists the visible bindings for view, view bindings first, in the
// order they were registered.
func (r *Registry) Hints(view string) []ui.MenuHint {
	var out []ui.MenuHint
	for _, bs := range [][]binding{r.views[view], r.global} {
		for _, b := range bs {
			if b.action.Visible {
				out = append(out, ui.MenuHint{Key: b.action.KeyLabel(), Description: b.action.Description, Numeric: b.action.Numeric})
			}
		}
	}
	return out
}

// HandleEvent runs the first binding matching ev and reports whether one did.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	for _, bs := range [][]binding{r.views[view], r.global} {
		for _, b := range bs {
			if b.action.Matches(ev) {
				b.action.Handler()
				return true
			}
		}
	}
	return false
}
