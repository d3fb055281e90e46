package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/matheus3301/tgfilter/internal/queue"
	"go.uber.org/zap"
)

// fakeAPI answers getMe so New can validate the token.
func fakeAPI(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"tgf","username":"tgf_bot"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func postUpdate(id int) *models.Update {
	return &models.Update{
		ID:          int64(id),
		ChannelPost: &models.Message{ID: id, Chat: models.Chat{ID: -100, Type: models.ChatTypeChannel}},
	}
}

func newQueueingClient(t *testing.T, q *queue.Bounded[int], sequential bool) *Client {
	t.Helper()
	c, err := New(Options{
		Token:  "123:test",
		APIURL: fakeAPI(t),
		Handler: func(ctx context.Context, _ *bot.Bot, update *models.Update) {
			_ = q.Put(ctx, update.ChannelPost.ID)
		},
		Sequential: sequential,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRejectsEmptyToken(t *testing.T) {
	if _, err := New(Options{}, zap.NewNop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestSequentialHandlersKeepArrivalOrder(t *testing.T) {
	q := queue.NewBounded[int](64)
	c := newQueueingClient(t, q, true)
	ctx := context.Background()

	for i := 1; i <= 50; i++ {
		c.bot.ProcessUpdate(ctx, postUpdate(i))
		if q.Len() != i {
			t.Fatalf("after update %d Len() = %d; handler did not finish before the next update", i, q.Len())
		}
	}
	for want := 1; want <= 50; want++ {
		got, err := q.Get(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("Get() = %d, want %d", got, want)
		}
	}
}

func TestSequentialHandlerBlocksOnFullQueue(t *testing.T) {
	q := queue.NewBounded[int](1)
	c := newQueueingClient(t, q, true)
	ctx := context.Background()

	c.bot.ProcessUpdate(ctx, postUpdate(1))

	done := make(chan struct{})
	go func() {
		c.bot.ProcessUpdate(ctx, postUpdate(2))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("update 2 was accepted while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	if got, _ := q.Get(ctx); got != 1 {
		t.Fatalf("Get() = %d, want 1", got)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("update 2 still blocked after room was made")
	}
	if got, _ := q.Get(ctx); got != 2 {
		t.Fatalf("Get() = %d, want 2", got)
	}
}
