package views

import (
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/tgfilter/internal/api"
)

func TestFormatAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{72 * time.Hour, "3d"},
	}
	for _, tt := range tests {
		if got := formatAge(tt.d); got != tt.want {
			t.Errorf("formatAge(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	now := time.Date(2025, 3, 10, 18, 0, 0, 0, time.Local)
	today := time.Date(2025, 3, 10, 9, 5, 0, 0, time.Local).UnixMilli()
	earlier := time.Date(2025, 3, 8, 9, 5, 0, 0, time.Local).UnixMilli()

	if got := formatTimestamp(today, now); got != "09:05" {
		t.Errorf("today = %q", got)
	}
	if got := formatTimestamp(earlier, now); got != "03/08 09:05" {
		t.Errorf("earlier = %q", got)
	}
	if got := formatTimestamp(0, now); got != "" {
		t.Errorf("zero = %q", got)
	}
}

func TestFormatEventSortsFields(t *testing.T) {
	line := formatEvent(api.Event{
		Kind:   "delivery.queued",
		Fields: map[string]string{"user_id": "7", "message_id": "100", "chat_id": "70"},
	})
	if !strings.Contains(line, "chat_id=70 message_id=100 user_id=7") {
		t.Errorf("line = %q", line)
	}
	if !strings.Contains(line, "[green]delivery.queued") {
		t.Errorf("line = %q", line)
	}
}

func TestStatusLine(t *testing.T) {
	now := time.Date(2025, 3, 10, 18, 4, 0, 0, time.Local)

	line := statusLine("main", nil, "", false, nil, now)
	if !strings.Contains(line, "disconnected") || !strings.Contains(line, "18:04") {
		t.Errorf("disconnected line = %q", line)
	}

	st := &api.StatusResponse{
		State:    "RUNNING",
		Inbound:  api.QueueDepth{Len: 3, Cap: 1024},
		Outbound: api.QueueDepth{Len: 0, Cap: 1024},
		Pipeline: api.PipelineCounters{Jobs: 10, Unroutable: 2},
	}
	line = statusLine("main", st, "refresh failed", true, []string{"q:quit"}, now)
	for _, want := range []string{"[green]RUNNING", "in 3/1024", "jobs 10 unroutable 2", "[red]refresh failed", "q:quit"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "store error") {
		t.Errorf("healthy store flagged: %q", line)
	}

	st.StoreError = "message count: database is closed"
	if line = statusLine("main", st, "", false, nil, now); !strings.Contains(line, "[red]store error") {
		t.Errorf("store failure not shown: %q", line)
	}
}

func TestFilterTableSelection(t *testing.T) {
	ft := NewFilterTable()
	now := time.Now()

	if _, ok := ft.Selected(); ok {
		t.Error("empty table has no selection")
	}

	ft.Update([]api.Filter{{ID: 1, UserID: 7, Pattern: "elm"}, {ID: 2, UserID: 9, Pattern: "oak"}}, now)
	f, ok := ft.Selected()
	if !ok || f.ID != 1 {
		t.Errorf("Selected = %+v, %v", f, ok)
	}

	ft.Select(2, 0)
	ft.Update([]api.Filter{{ID: 1, UserID: 7, Pattern: "elm"}}, now)
	f, ok = ft.Selected()
	if !ok || f.ID != 1 {
		t.Errorf("after shrink Selected = %+v, %v", f, ok)
	}
}
