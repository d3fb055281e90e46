// Package delivery sends forwarding jobs to Telegram.
package delivery

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/matheus3301/tgfilter/internal/queue"
	"github.com/matheus3301/tgfilter/internal/telegram"
	"github.com/matheus3301/tgfilter/internal/wire"
	"github.com/samber/oops"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Forwarder delivers a job to its destination chat.
type Forwarder interface {
	Forward(ctx context.Context, job wire.ForwardingJob) error
	SendText(ctx context.Context, job wire.ForwardingJob) error
}

const maxAttempts = 3

var errRetriesExhausted = oops.In("delivery").Errorf("flood wait retries exhausted")

// Stats counts worker outcomes since start.
type Stats struct {
	Forwarded uint64
	Fallback  uint64
	Dropped   uint64
}

// Worker drains the outbound queue one job at a time.
type Worker struct {
	jobs    queue.Queue[wire.ForwardingJob]
	fwd     Forwarder
	limiter *rate.Limiter
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error

	forwarded atomic.Uint64
	fallback  atomic.Uint64
	dropped   atomic.Uint64
}

// NewWorker creates a worker sending at most perSecond messages per second.
// A non-positive rate disables throttling.
func NewWorker(jobs queue.Queue[wire.ForwardingJob], fwd Forwarder, perSecond float64, logger *zap.Logger) *Worker {
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = max(1, int(perSecond))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		jobs:    jobs,
		fwd:     fwd,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Run consumes jobs until ctx ends or the queue fails. Delivery failures
// are logged and never stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		job, err := w.jobs.Get(ctx)
		if err != nil {
			return err
		}
		w.Deliver(ctx, job)
	}
}

// Deliver forwards the original message. When Telegram rejects the forward
// (source message or chat gone) the body is sent as text instead. Flood
// waits are honoured and retried; any other failure drops the job.
func (w *Worker) Deliver(ctx context.Context, job wire.ForwardingJob) bool {
	log := w.logger.With(
		zap.String("job_id", job.JobID),
		zap.Int64("message_id", job.Message.MessageID),
		zap.Int64("user_id", job.Destination.UserID),
		zap.Int64("chat_id", job.Destination.ChatID),
	)

	send := w.fwd.Forward
	fallback := false
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := w.limiter.Wait(ctx); err != nil {
			w.drop(log, err)
			return false
		}
		err := send(ctx, job)
		if err == nil {
			if fallback {
				w.fallback.Add(1)
				log.Info("message sent as text")
			} else {
				w.forwarded.Add(1)
				log.Info("message forwarded")
			}
			return true
		}

		if d, ok := telegram.RetryAfter(err); ok {
			log.Warn("flood wait", zap.Duration("retry_after", d), zap.Int("attempt", attempt))
			if err := w.sleep(ctx, d); err != nil {
				w.drop(log, err)
				return false
			}
			continue
		}
		if !fallback && telegram.IsBadRequest(err) {
			log.Warn("cannot forward message, falling back to text", zap.Error(err))
			send = w.fwd.SendText
			fallback = true
			attempt--
			continue
		}
		w.drop(log, err)
		return false
	}
	w.drop(log, errRetriesExhausted)
	return false
}

// Stats returns the current counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Forwarded: w.forwarded.Load(),
		Fallback:  w.fallback.Load(),
		Dropped:   w.dropped.Load(),
	}
}

func (w *Worker) drop(log *zap.Logger, err error) {
	w.dropped.Add(1)
	log.Error("delivery failed, job dropped", zap.Error(err))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
