package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/tgfilter/internal/api"
	"github.com/rivo/tview"
)

// StalledTable lists matched deliveries that never reached the outbound queue.
type StalledTable struct {
	*tview.Table
}

// NewStalledTable creates the stalled records table.
func NewStalledTable() *StalledTable {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	table.SetBorder(true).SetTitle(" Stalled deliveries ")
	return &StalledTable{Table: table}
}

// Update replaces the rows.
func (st *StalledTable) Update(records []api.DeliveryRecord, now time.Time) {
	st.Clear()
	header(st.Table, "User", "Channel", "Message", "Created", "Age")
	for i, r := range records {
		row := i + 1
		created := time.UnixMilli(r.CreatedAtMs)
		st.SetCell(row, 0, tview.NewTableCell(fmt.Sprintf(" %d", r.UserID)).SetExpansion(1))
		st.SetCell(row, 1, tview.NewTableCell(fmt.Sprintf(" %d", r.ChannelID)).SetExpansion(1))
		st.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf(" %d", r.MessageID)).SetExpansion(1))
		st.SetCell(row, 3, tview.NewTableCell(" "+formatTimestamp(r.CreatedAtMs, now)))
		st.SetCell(row, 4, tview.NewTableCell(" "+formatAge(now.Sub(created))))
	}
	st.SetTitle(fmt.Sprintf(" Stalled deliveries (%d) ", len(records)))
}
