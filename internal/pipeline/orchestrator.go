// Package pipeline turns inbound channel messages into forwarding jobs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/matheus3301/tgfilter/internal/bus"
	"github.com/matheus3301/tgfilter/internal/matcher"
	"github.com/matheus3301/tgfilter/internal/queue"
	"github.com/matheus3301/tgfilter/internal/store"
	"github.com/matheus3301/tgfilter/internal/supervise"
	"github.com/matheus3301/tgfilter/internal/wire"
	"github.com/samber/lo"
	"github.com/samber/oops"
	"go.uber.org/zap"
)

// Error codes attached to pipeline errors.
const (
	CodePersistence    = "persistence"
	CodePatternCompile = "pattern_compile"
	CodeUnroutable     = "unroutable"
	CodeQueue          = "queue"
)

// Delivery is the result of fanning a message out to one user.
type Delivery int

const (
	Queued Delivery = iota
	Unroutable
	Failed
)

// Outcome summarises how one message was handled.
type Outcome struct {
	MessageID int64
	Persisted bool
	Matched   []int64
	Results   map[int64]Delivery
}

// Orchestrator consumes the inbound queue, persists each message, matches
// it against the active filters and enqueues one job per reachable user.
type Orchestrator struct {
	gw     Gateway
	in     queue.Queue[wire.ChannelMessage]
	out    queue.Queue[wire.ForwardingJob]
	bus    *bus.Bus
	logger *zap.Logger
	stats  counters
}

// New creates an orchestrator. A nil bus disables events.
func New(gw Gateway, in queue.Queue[wire.ChannelMessage], out queue.Queue[wire.ForwardingJob], b *bus.Bus, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		gw:     gw,
		in:     in,
		out:    out,
		bus:    b,
		logger: logger,
	}
}

// Stats returns the current counters.
func (o *Orchestrator) Stats() Stats {
	return o.stats.snapshot()
}

// Run processes inbound messages one at a time, in queue order, until ctx
// ends. A closed inbound queue is fatal; other Get failures are returned so
// the supervisor restarts the loop.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		msg, err := o.in.Get(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				return supervise.Fatal(oops.In("pipeline").Code(CodeQueue).Wrapf(err, "inbound queue"))
			}
			return err
		}
		o.Process(ctx, msg)
	}
}

// Process handles a single message. Failures are logged and never returned:
// a persistence failure skips the message, a failure for one user never
// affects the others.
func (o *Orchestrator) Process(ctx context.Context, msg wire.ChannelMessage) Outcome {
	outcome := Outcome{MessageID: msg.MessageID, Results: map[int64]Delivery{}}
	o.stats.messages.Add(1)
	log := o.logger.With(zap.Int64("message_id", msg.MessageID), zap.Int64("channel_id", msg.SourceChannelID))

	if err := o.gw.SaveMessage(&store.Message{
		ID:        msg.MessageID,
		ChannelID: msg.SourceChannelID,
		Body:      msg.Body,
		PostedAt:  msg.Timestamp.UnixMilli(),
	}); err != nil {
		o.skip(log, msg, oops.In("pipeline").Code(CodePersistence).With("message_id", msg.MessageID).Wrapf(err, "save message"))
		return outcome
	}
	outcome.Persisted = true
	o.bus.Emit(bus.KindMessagePersisted, map[string]string{"message_id": itoa(msg.MessageID)})

	filters, err := o.gw.ActiveFilters()
	if err != nil {
		o.skip(log, msg, oops.In("pipeline").Code(CodePersistence).With("message_id", msg.MessageID).Wrapf(err, "load active filters"))
		return outcome
	}

	users, err := o.match(ctx, msg.Body, filters, log)
	if err != nil {
		o.skip(log, msg, oops.In("pipeline").With("message_id", msg.MessageID).Wrapf(err, "match"))
		return outcome
	}
	outcome.Matched = users
	if len(users) == 0 {
		log.Debug("no filter matched")
		return outcome
	}
	log.Info("message matched", zap.Int("users", len(users)), zap.Int("filters", len(filters)))

	for _, userID := range users {
		outcome.Results[userID] = o.deliver(ctx, msg, userID, log.With(zap.Int64("user_id", userID)))
	}
	return outcome
}

// match runs the matcher on its own goroutine so the consume loop only waits
// on a channel.
func (o *Orchestrator) match(ctx context.Context, body string, filters []store.Filter, log *zap.Logger) ([]int64, error) {
	type result struct {
		users   []int64
		invalid []*matcher.PatternError
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("matcher panic: %v", r)}
			}
		}()
		s := matcher.Compile(lo.Map(filters, func(f store.Filter, _ int) matcher.Filter {
			return matcher.Filter{UserID: f.UserID, Pattern: f.Pattern}
		}))
		ch <- result{users: s.Match(body), invalid: s.Invalid()}
	}()

	select {
	case r := <-ch:
		for _, pe := range r.invalid {
			err := oops.In("matcher").Code(CodePatternCompile).With("pattern", pe.Pattern).Wrap(pe)
			log.Warn("filter excluded from matching", zap.String("pattern", pe.Pattern), zap.Int64s("users", pe.Users), zap.Error(err))
		}
		return r.users, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) deliver(ctx context.Context, msg wire.ChannelMessage, userID int64, log *zap.Logger) (d Delivery) {
	defer func() {
		if r := recover(); r != nil {
			o.fail(log, msg, userID, oops.In("pipeline").With("user_id", userID).Errorf("panic: %v", r))
			d = Failed
		}
	}()

	rec, err := o.gw.CreateDeliveryRecord(userID, msg.SourceChannelID, msg.MessageID)
	if err != nil {
		o.fail(log, msg, userID, oops.In("pipeline").Code(CodePersistence).With("user_id", userID).Wrapf(err, "create delivery record"))
		return Failed
	}

	dest, err := o.gw.LatestDestination(userID)
	if err != nil {
		o.fail(log, msg, userID, oops.In("pipeline").Code(CodePersistence).With("user_id", userID).Wrapf(err, "resolve destination"))
		return Failed
	}
	if dest == nil {
		o.stats.unroutable.Add(1)
		log.Warn("no destination for matched user, record left unprocessed", zap.String("code", CodeUnroutable))
		o.bus.Emit(bus.KindDeliveryUnroutable, map[string]string{
			"message_id": itoa(msg.MessageID),
			"user_id":    itoa(userID),
		})
		return Unroutable
	}

	job := wire.ForwardingJob{
		JobID:   uuid.NewString(),
		Message: msg,
		Destination: wire.Destination{
			UserID:      dest.UserID,
			ChatID:      dest.ChatID,
			DisplayName: dest.DisplayName,
			Username:    dest.Username,
			Locale:      dest.Locale,
		},
	}
	if err := o.out.Put(ctx, job); err != nil {
		o.fail(log, msg, userID, oops.In("pipeline").Code(CodeQueue).With("user_id", userID).Wrapf(err, "enqueue forwarding job"))
		return Failed
	}
	o.stats.jobs.Add(1)

	// The job is already queued; a failure here only leaves the record stale.
	if err := o.gw.MarkDeliveryProcessed(rec); err != nil {
		o.fail(log, msg, userID, oops.In("pipeline").Code(CodePersistence).With("user_id", userID).Wrapf(err, "mark delivery processed"))
		return Queued
	}

	log.Info("forwarding job queued", zap.String("job_id", job.JobID), zap.Int64("chat_id", dest.ChatID))
	o.bus.Emit(bus.KindDeliveryQueued, map[string]string{
		"message_id": itoa(msg.MessageID),
		"user_id":    itoa(userID),
		"chat_id":    itoa(dest.ChatID),
		"job_id":     job.JobID,
	})
	return Queued
}

func (o *Orchestrator) skip(log *zap.Logger, msg wire.ChannelMessage, err error) {
	o.stats.skipped.Add(1)
	log.Error("message skipped", zap.Error(err))
	o.bus.Emit(bus.KindMessageSkipped, map[string]string{
		"message_id": itoa(msg.MessageID),
		"error":      err.Error(),
	})
}

func (o *Orchestrator) fail(log *zap.Logger, msg wire.ChannelMessage, userID int64, err error) {
	o.stats.failures.Add(1)
	log.Error("delivery step failed", zap.Error(err))
	o.bus.Emit(bus.KindDeliveryFailed, map[string]string{
		"message_id": itoa(msg.MessageID),
		"user_id":    itoa(userID),
		"error":      err.Error(),
	})
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
