package views

import (
	"fmt"

	"github.com/rivo/tview"
)

// HelpView lists the dashboard's key bindings.
type HelpView struct {
	*tview.TextView
}

// NewHelpView creates the help page.
func NewHelpView() *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true).SetTitle(" Help ")

	_, _ = fmt.Fprint(tv, `
  [::b]Pages[-:-:-]

  [yellow]1[-]    Stalled deliveries      [yellow]2[-]    Filters
  [yellow]3[-]    Live events             [yellow]?[-]    This help

  [::b]Global[-:-:-]

  [yellow]r[-]    Refresh now             [yellow]Esc[-]  Back to stalled deliveries
  [yellow]q[-]    Quit

  [::b]Filters[-:-:-]

  [yellow]d[-]    Disable selected filter
`)
	return &HelpView{TextView: tv}
}
