package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/tgfilter/internal/api"
	"github.com/rivo/tview"
)

// FilterTable lists active filters across all users.
type FilterTable struct {
	*tview.Table
	filters []api.Filter
}

// NewFilterTable creates the filter table.
func NewFilterTable() *FilterTable {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	table.SetBorder(true).SetTitle(" Filters ")
	return &FilterTable{Table: table}
}

// Update replaces the rows, keeping the selected row in range.
func (ft *FilterTable) Update(filters []api.Filter, now time.Time) {
	ft.filters = filters
	row, _ := ft.GetSelection()
	ft.Clear()
	header(ft.Table, "ID", "User", "Pattern", "Created")
	for i, f := range filters {
		r := i + 1
		ft.SetCell(r, 0, tview.NewTableCell(fmt.Sprintf(" %d", f.ID)))
		ft.SetCell(r, 1, tview.NewTableCell(fmt.Sprintf(" %d", f.UserID)))
		ft.SetCell(r, 2, tview.NewTableCell(" "+f.Pattern).SetMaxWidth(60).SetExpansion(1))
		ft.SetCell(r, 3, tview.NewTableCell(" "+formatTimestamp(f.CreatedAtMs, now)))
	}
	if row > len(filters) {
		row = len(filters)
	}
	if row < 1 && len(filters) > 0 {
		row = 1
	}
	ft.Select(row, 0)
	ft.SetTitle(fmt.Sprintf(" Filters (%d) ", len(filters)))
}

// Selected returns the filter under the cursor.
func (ft *FilterTable) Selected() (api.Filter, bool) {
	row, _ := ft.GetSelection()
	idx := row - 1
	if idx < 0 || idx >= len(ft.filters) {
		return api.Filter{}, false
	}
	return ft.filters[idx], true
}
