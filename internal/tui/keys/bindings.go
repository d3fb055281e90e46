package keys

import "github.com/gdamore/tcell/v2"

// Action is a single key binding.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func()
	Visible     bool
}

// Matches reports whether ev triggers the action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Registry holds global and per-page bindings in registration order, so
// hints render in a stable order.
type Registry struct {
	global []*Action
	pages  map[string][]*Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pages: make(map[string][]*Action)}
}

// AddGlobal registers a binding active on every page.
func (r *Registry) AddGlobal(action *Action) {
	r.global = append(r.global, action)
}

// AddPage registers a binding active only on the named page. Page bindings
// take precedence over global ones.
func (r *Registry) AddPage(page string, action *Action) {
	r.pages[page] = append(r.pages[page], action)
}

// Hints returns visible descriptions for the page, page bindings first.
func (r *Registry) Hints(page string) []string {
	var hints []string
	for _, a := range r.pages[page] {
		if a.Visible {
			hints = append(hints, a.Description)
		}
	}
	for _, a := range r.global {
		if a.Visible {
			hints = append(hints, a.Description)
		}
	}
	return hints
}

// HandleEvent runs the first binding matching ev on page and reports
// whether one matched.
func (r *Registry) HandleEvent(page string, ev *tcell.EventKey) bool {
	for _, a := range r.pages[page] {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	for _, a := range r.global {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	return false
}
