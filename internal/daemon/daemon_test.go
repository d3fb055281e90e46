package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/tgfilter/internal/api"
	"github.com/matheus3301/tgfilter/internal/config"
	"github.com/matheus3301/tgfilter/internal/lock"
	"github.com/matheus3301/tgfilter/internal/queue"
	"github.com/matheus3301/tgfilter/internal/status"
	"github.com/matheus3301/tgfilter/internal/wire"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

// testParams returns params rooted in a short /tmp dir (unix socket paths
// are limited to ~104 chars on macOS).
func testParams(t *testing.T) Params {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "tgf-d-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	cfg := config.Default()
	cfg.Queue.InboundSize = 8
	cfg.Queue.OutboundSize = 8
	cfg.Audit.Schedule = "@every 1h"
	return Params{Instance: "test", Config: cfg, Dir: dir}
}

func waitState(t *testing.T, c *api.Client, want status.State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := c.Status(context.Background())
		if err == nil && resp.State == string(want) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("daemon never reached %s", want)
}

func TestDaemonEndToEnd(t *testing.T) {
	p := testParams(t)
	app := fxtest.New(t, Module(p))
	app.RequireStart()
	defer app.RequireStop()

	c, err := api.Dial(p.socketPath())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()
	waitState(t, c, status.Running)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := c.AddFilter(ctx, 7, "Elm"); err != nil {
		t.Fatalf("AddFilter() error = %v", err)
	}
	if _, err := c.AddFilter(ctx, 9, "Oak"); err != nil {
		t.Fatal(err)
	}
	if err := c.UpsertBinding(ctx, wire.Destination{UserID: 7, ChatID: 70}); err != nil {
		t.Fatalf("UpsertBinding() error = %v", err)
	}

	inbound := queue.NewClient[wire.ChannelMessage](c.Conn, queue.InboundService)
	outbound := queue.NewClient[wire.ForwardingJob](c.Conn, queue.OutboundService)

	msg := wire.ChannelMessage{MessageID: 1, SourceChannelID: -100, Body: "Flat on Elm Street", Timestamp: time.Now()}
	if err := inbound.Put(ctx, msg); err != nil {
		t.Fatalf("inbound Put() error = %v", err)
	}
	job, err := outbound.Get(ctx)
	if err != nil {
		t.Fatalf("outbound Get() error = %v", err)
	}
	if job.Destination.UserID != 7 || job.Destination.ChatID != 70 || job.Message.Body != msg.Body {
		t.Errorf("job = %+v", job)
	}

	// The record is marked processed right after the job is queued.
	var resp *api.StatusResponse
	for range 50 {
		if resp, err = c.Status(ctx); err != nil {
			t.Fatal(err)
		}
		if resp.Processed == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if resp.Instance != "test" || resp.Processed != 1 || resp.MessageCount != 1 {
		t.Errorf("status = %+v", resp)
	}
	if resp.Inbound.Cap != 8 || resp.Outbound.Cap != 8 {
		t.Errorf("queue capacities = %d/%d, want 8/8", resp.Inbound.Cap, resp.Outbound.Cap)
	}
}

func TestSecondDaemonRefusesToStart(t *testing.T) {
	p := testParams(t)
	app := fxtest.New(t, Module(p))
	app.RequireStart()
	defer app.RequireStop()

	second := fx.New(Module(p), fx.NopLogger)
	if second.Err() == nil {
		t.Fatal("second daemon on the same instance should fail")
	}
	if _, err := os.Stat(p.socketPath()); err != nil {
		t.Errorf("first daemon's socket was disturbed: %v", err)
	}
}

func TestStopReleasesInstance(t *testing.T) {
	p := testParams(t)
	app := fxtest.New(t, Module(p))
	app.RequireStart()
	app.RequireStop()

	if _, err := os.Stat(p.socketPath()); !os.IsNotExist(err) {
		t.Errorf("socket should be removed, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(p.Dir, lock.FileName)); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed, stat err = %v", err)
	}

	l, err := lock.Acquire(p.Dir)
	if err != nil {
		t.Fatalf("lock should be free after stop: %v", err)
	}
	_ = l.Release()
}

func TestClosedInboundShutsDaemonDown(t *testing.T) {
	p := testParams(t)
	var (
		in      inboundQueue
		machine *status.Machine
	)
	app := fxtest.New(t, Module(p), fx.Populate(&in, &machine))
	app.RequireStart()
	defer app.RequireStop()

	in.Close()

	select {
	case <-app.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not request shutdown")
	}
	if got := machine.Current(); got != status.Error {
		t.Errorf("state = %s, want %s", got, status.Error)
	}
}
