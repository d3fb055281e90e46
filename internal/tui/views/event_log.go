package views

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/matheus3301/tgfilter/internal/api"
	"github.com/rivo/tview"
	"github.com/samber/lo"
)

// EventLog shows the daemon's live event stream.
type EventLog struct {
	*tview.TextView
}

// NewEventLog creates the event log view.
func NewEventLog() *EventLog {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true).
		SetMaxLines(1000)
	tv.SetBorder(true).SetTitle(" Events ")
	return &EventLog{TextView: tv}
}

// Update redraws the log from events, oldest first.
func (el *EventLog) Update(events []api.Event) {
	el.Clear()
	for _, ev := range events {
		_, _ = fmt.Fprintln(el, formatEvent(ev))
	}
	el.ScrollToEnd()
}

func formatEvent(ev api.Event) string {
	keys := lo.Keys(ev.Fields)
	slices.Sort(keys)
	fields := lo.Map(keys, func(k string, _ int) string {
		return k + "=" + ev.Fields[k]
	})
	ts := time.UnixMilli(ev.OccurredAtMs).Format("15:04:05")
	return fmt.Sprintf("[::d]%s[-:-:-] %s%s[-] %s", ts, kindColor(ev.Kind), ev.Kind, tview.Escape(strings.Join(fields, " ")))
}

func kindColor(kind string) string {
	switch {
	case kind == "delivery.queued":
		return "[green]"
	case kind == "delivery.unroutable", kind == "delivery.stalled", kind == "message.skipped":
		return "[yellow]"
	case strings.HasSuffix(kind, ".failed"):
		return "[red]"
	default:
		return "[white]"
	}
}
