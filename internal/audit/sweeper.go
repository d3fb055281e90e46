// Package audit periodically reports delivery records that never reached
// the outbound queue.
package audit

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matheus3301/tgfilter/internal/bus"
	"github.com/matheus3301/tgfilter/internal/store"
	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"github.com/samber/oops"
	"go.uber.org/zap"
)

// Source lists unprocessed delivery records.
type Source interface {
	StalledRecords(before time.Time, limit int) ([]store.DeliveryRecord, error)
}

const sweepLimit = 500

// Sweeper runs Sweep on a cron schedule.
type Sweeper struct {
	src          Source
	bus          *bus.Bus
	logger       *zap.Logger
	stalledAfter time.Duration
	now          func() time.Time

	mu        sync.Mutex
	c         *cron.Cron
	schedule  cron.Schedule
	lastCount atomic.Int64
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New validates schedule (standard five-field cron or a descriptor such as
// "@every 10m") and returns a stopped sweeper.
func New(src Source, b *bus.Bus, logger *zap.Logger, schedule string, stalledAfter time.Duration) (*Sweeper, error) {
	sched, err := parser.Parse(schedule)
	if err != nil {
		return nil, oops.In("audit").With("schedule", schedule).Wrapf(err, "parse schedule")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		src:          src,
		bus:          b,
		logger:       logger,
		stalledAfter: stalledAfter,
		now:          time.Now,
		schedule:     sched,
	}, nil
}

// Start schedules the sweep. Calling Start twice is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.c = cron.New(cron.WithParser(parser), cron.WithLogger(cronLogger{s.logger.Sugar()}))
	s.c.Schedule(s.schedule, s.job())
	s.c.Start()
}

// job is the scheduled sweep; a panicking sweep is logged and the schedule
// keeps running.
func (s *Sweeper) job() cron.Job {
	return cron.NewChain(cron.Recover(cronLogger{s.logger.Sugar()})).
		Then(cron.FuncJob(func() { _, _ = s.Sweep() }))
}

// cronLogger routes cron's scheduler logs to zap.
type cronLogger struct{ log *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Sweep counts records left unprocessed for longer than stalledAfter,
// logs them and publishes delivery.stalled when there are any.
func (s *Sweeper) Sweep() (int, error) {
	recs, err := s.src.StalledRecords(s.now().Add(-s.stalledAfter), sweepLimit)
	if err != nil {
		s.logger.Error("stalled record sweep failed", zap.Error(err))
		return 0, err
	}
	n := len(recs)
	s.lastCount.Store(int64(n))
	if n == 0 {
		return 0, nil
	}

	users := lo.Uniq(lo.Map(recs, func(r store.DeliveryRecord, _ int) int64 { return r.UserID }))
	s.logger.Warn("stalled delivery records",
		zap.Int("records", n),
		zap.Int("users", len(users)),
		zap.Int64("oldest_channel_id", recs[0].ChannelID),
		zap.Int64("oldest_message_id", recs[0].MessageID),
		zap.Duration("older_than", s.stalledAfter),
	)
	s.bus.Emit(bus.KindDeliveryStalled, map[string]string{
		"count": strconv.Itoa(n),
		"users": strconv.Itoa(len(users)),
	})
	return n, nil
}

// LastCount returns the result of the most recent sweep.
func (s *Sweeper) LastCount() int {
	return int(s.lastCount.Load())
}
