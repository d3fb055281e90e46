package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

func header(t *tview.Table, titles ...string) {
	for col, title := range titles {
		t.SetCell(0, col, tview.NewTableCell(" "+title).
			SetSelectable(false).
			SetTextColor(tview.Styles.SecondaryTextColor))
	}
}

func formatTimestamp(ms int64, now time.Time) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02 15:04")
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
