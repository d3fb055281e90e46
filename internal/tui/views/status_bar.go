package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/tgfilter/internal/api"
	"github.com/rivo/tview"
)

// StatusBar shows the instance, daemon state, queue depths and a flash notice.
type StatusBar struct {
	*tview.TextView
	instance string
	status   *api.StatusResponse
	flash    string
	flashErr bool
	hints    []string
}

// NewStatusBar creates an empty status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetInstance sets the instance name shown first.
func (sb *StatusBar) SetInstance(name string) {
	sb.instance = name
	sb.render()
}

// SetStatus updates the daemon status; nil renders as disconnected.
func (sb *StatusBar) SetStatus(st *api.StatusResponse) {
	sb.status = st
	sb.render()
}

// SetFlash sets the transient notice.
func (sb *StatusBar) SetFlash(msg string, isError bool) {
	sb.flash, sb.flashErr = msg, isError
	sb.render()
}

// SetHints sets the key hints for the current page.
func (sb *StatusBar) SetHints(hints []string) {
	sb.hints = hints
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, statusLine(sb.instance, sb.status, sb.flash, sb.flashErr, sb.hints, time.Now()))
}

func statusLine(instance string, st *api.StatusResponse, flash string, flashErr bool, hints []string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, " [::b]%s[-:-:-] | ", tview.Escape(instance))
	if st == nil {
		b.WriteString("[red]disconnected[-]")
	} else {
		fmt.Fprintf(&b, "%s%s[-] | in %d/%d out %d/%d | jobs %d unroutable %d | stalled %d",
			stateColor(st.State), st.State,
			st.Inbound.Len, st.Inbound.Cap, st.Outbound.Len, st.Outbound.Cap,
			st.Pipeline.Jobs, st.Pipeline.Unroutable, st.LastStalled)
		if st.StoreError != "" {
			b.WriteString(" | [red]store error[-]")
		}
	}
	fmt.Fprintf(&b, " | %s", now.Format("15:04"))
	if flash != "" {
		color := "yellow"
		if flashErr {
			color = "red"
		}
		fmt.Fprintf(&b, " | [%s]%s[-]", color, tview.Escape(flash))
	}
	if len(hints) > 0 {
		fmt.Fprintf(&b, " | [::d]%s[-:-:-]", tview.Escape(strings.Join(hints, " ")))
	}
	return b.String()
}

func stateColor(state string) string {
	switch state {
	case "RUNNING":
		return "[green]"
	case "DEGRADED", "DRAINING", "BOOTING":
		return "[yellow]"
	case "ERROR":
		return "[red]"
	default:
		return "[white]"
	}
}
