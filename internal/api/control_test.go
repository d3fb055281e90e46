package api

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/tgfilter/internal/bus"
	"github.com/matheus3301/tgfilter/internal/pipeline"
	"github.com/matheus3301/tgfilter/internal/queue"
	"github.com/matheus3301/tgfilter/internal/status"
	"github.com/matheus3301/tgfilter/internal/store"
	"github.com/matheus3301/tgfilter/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

type fixture struct {
	db     *store.DB
	bus    *bus.Bus
	client *Client
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	machine := status.NewMachine(b)
	_ = machine.Transition(status.Running)
	in := queue.NewBounded[wire.ChannelMessage](4)
	_ = in.Put(context.Background(), wire.ChannelMessage{MessageID: 1})
	svc := NewControlService("test", db, machine, b, Sources{
		Inbound:  in,
		Outbound: queue.NewBounded[wire.ForwardingJob](8),
		Pipeline: func() pipeline.Stats { return pipeline.Stats{Messages: 3, Jobs: 2} },
		Stalled:  func() int { return 5 },
	})

	dir, err := os.MkdirTemp("/tmp", "tgf-api-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	socketPath := filepath.Join(dir, "d.sock")
	lis, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	srv := grpc.NewServer()
	RegisterControlServer(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return &fixture{db: db, bus: b, client: c}
}

func ctxTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStatus(t *testing.T) {
	f := setup(t)

	resp, err := f.client.Status(ctxTimeout(t))
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if resp.Instance != "test" || resp.State != string(status.Running) {
		t.Errorf("instance/state = %q/%q", resp.Instance, resp.State)
	}
	if resp.Inbound != (QueueDepth{Len: 1, Cap: 4}) {
		t.Errorf("Inbound = %+v, want {1 4}", resp.Inbound)
	}
	if resp.StoreError != "" {
		t.Errorf("StoreError = %q, want none", resp.StoreError)
	}
	if resp.Outbound.Cap != 8 {
		t.Errorf("Outbound.Cap = %d, want 8", resp.Outbound.Cap)
	}
	if resp.Pipeline.Messages != 3 || resp.Pipeline.Jobs != 2 {
		t.Errorf("Pipeline = %+v", resp.Pipeline)
	}
	if resp.LastStalled != 5 {
		t.Errorf("LastStalled = %d, want 5", resp.LastStalled)
	}
}

func TestStatusReportsStoreFailure(t *testing.T) {
	f := setup(t)
	ctx := ctxTimeout(t)
	_ = f.db.Close()

	resp, err := f.client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if resp.StoreError == "" {
		t.Errorf("StoreError is empty with a closed store; counts = %d/%d/%d", resp.MessageCount, resp.Processed, resp.Pending)
	}
	if resp.State != "RUNNING" || resp.Inbound.Len != 1 {
		t.Errorf("runtime readings should still be reported: %+v", resp)
	}
}

func TestFilterAdministration(t *testing.T) {
	f := setup(t)
	ctx := ctxTimeout(t)

	added, err := f.client.AddFilter(ctx, 7, "Elm")
	if err != nil {
		t.Fatalf("AddFilter() error = %v", err)
	}
	if added.ID == 0 || added.Status != string(store.StatusActive) {
		t.Errorf("added = %+v", added)
	}
	if _, err := f.client.AddFilter(ctx, 7, "Oak"); err != nil {
		t.Fatal(err)
	}

	filters, err := f.client.ListFilters(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(filters) != 2 || filters[0].Pattern != "Elm" {
		t.Fatalf("ListFilters() = %+v", filters)
	}

	if err := f.client.DisableFilter(ctx, 7, added.ID); err != nil {
		t.Fatalf("DisableFilter() error = %v", err)
	}
	err = f.client.DisableFilter(ctx, 7, added.ID)
	if grpcstatus.Code(err) != codes.NotFound {
		t.Errorf("second DisableFilter() code = %v, want NotFound", grpcstatus.Code(err))
	}

	all, err := f.client.ListFilters(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Pattern != "Oak" {
		t.Errorf("ListFilters(0) = %+v, want only Oak", all)
	}
}

func TestAddFilterRejectsInvalidPattern(t *testing.T) {
	f := setup(t)
	ctx := ctxTimeout(t)

	for _, pattern := range []string{"", "Elm("} {
		_, err := f.client.AddFilter(ctx, 7, pattern)
		if grpcstatus.Code(err) != codes.InvalidArgument {
			t.Errorf("AddFilter(%q) code = %v, want InvalidArgument", pattern, grpcstatus.Code(err))
		}
	}
	filters, _ := f.db.UserFilters(7)
	if len(filters) != 0 {
		t.Errorf("invalid filters were stored: %+v", filters)
	}
}

func TestUpsertBindingAndUserStatus(t *testing.T) {
	f := setup(t)
	ctx := ctxTimeout(t)

	d := wire.Destination{UserID: 7, ChatID: 70, DisplayName: "Ann", Username: "ann", Locale: "en"}
	if err := f.client.UpsertBinding(ctx, d); err != nil {
		t.Fatalf("UpsertBinding() error = %v", err)
	}
	dest, err := f.db.LatestDestination(7)
	if err != nil || dest == nil || dest.ChatID != 70 {
		t.Fatalf("LatestDestination() = %+v, %v", dest, err)
	}

	if err := f.client.SetUserStatus(ctx, 7, false); err != nil {
		t.Fatalf("SetUserStatus() error = %v", err)
	}
	if dest, _ := f.db.LatestDestination(7); dest != nil {
		t.Errorf("inactive user still has destination %+v", dest)
	}

	if grpcstatus.Code(f.client.UpsertBinding(ctx, wire.Destination{UserID: 7})) != codes.InvalidArgument {
		t.Error("UpsertBinding without chat should be InvalidArgument")
	}
	if grpcstatus.Code(f.client.SetUserStatus(ctx, 99, true)) != codes.NotFound {
		t.Error("SetUserStatus for unknown user should be NotFound")
	}
}

func TestStalledRecords(t *testing.T) {
	f := setup(t)
	ctx := ctxTimeout(t)

	if _, err := f.db.AddFilter(9, "Elm"); err != nil {
		t.Fatal(err)
	}
	if err := f.db.SaveMessage(&store.Message{ID: 1, ChannelID: -100, Body: "Elm"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.db.CreateDeliveryRecord(9, -100, 1); err != nil {
		t.Fatal(err)
	}
	recs, err := f.client.StalledRecords(ctx, &StalledRecordsRequest{OlderThanMs: 1})
	if err != nil {
		t.Fatal(err)
	}
	// created_at has millisecond resolution; a 1ms cutoff may still exclude it.
	if len(recs) > 1 {
		t.Fatalf("StalledRecords() = %+v", recs)
	}

	time.Sleep(5 * time.Millisecond)
	recs, err = f.client.StalledRecords(ctx, &StalledRecordsRequest{OlderThanMs: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].UserID != 9 || recs[0].ChannelID != -100 || recs[0].MessageID != 1 {
		t.Errorf("StalledRecords() = %+v, want (9,-100,1)", recs)
	}

	recs, err = f.client.StalledRecords(ctx, &StalledRecordsRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("default cutoff returned fresh records: %+v", recs)
	}
}

func TestWatchStreamsMatchingEvents(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan *Event, 4)
	done := make(chan error, 1)
	go func() {
		done <- f.client.Watch(ctx, "delivery.", func(evt *Event) { events <- evt })
	}()

	// The subscription is set up asynchronously; publish until one arrives.
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case evt := <-events:
			if evt.Kind != bus.KindDeliveryQueued {
				t.Fatalf("event kind = %q, want %s", evt.Kind, bus.KindDeliveryQueued)
			}
			if evt.Fields["user_id"] != "7" || evt.ID == "" {
				t.Errorf("event = %+v", evt)
			}
			cancel()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("Watch did not return after cancel")
			}
			return
		case <-ticker.C:
			f.bus.Emit(bus.KindMessagePersisted, map[string]string{"message_id": "1"})
			f.bus.Emit(bus.KindDeliveryQueued, map[string]string{"user_id": "7"})
		case <-deadline:
			t.Fatal("no event received")
		}
	}
}
