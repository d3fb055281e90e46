// Package supervise keeps long-running loops alive.
package supervise

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as not recoverable: Loop returns it instead of restarting.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err was marked with Fatal.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

// Option configures Loop.
type Option func(*config)

type config struct {
	minBackoff time.Duration
	maxBackoff time.Duration
	healthyRun time.Duration
	onStart    func(restarts int)
	onRestart  func(restarts int, err error)
}

// WithBackoff sets the exponential backoff window between restarts.
func WithBackoff(min, max time.Duration) Option {
	return func(c *config) {
		if min > 0 {
			c.minBackoff = min
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// OnStart is called every time fn is (re)started.
func OnStart(fn func(restarts int)) Option {
	return func(c *config) { c.onStart = fn }
}

// OnRestart is called after fn failed and before the backoff wait.
func OnRestart(fn func(restarts int, err error)) Option {
	return func(c *config) { c.onRestart = fn }
}

// Loop runs fn until ctx is canceled, restarting it with jittered
// exponential backoff whenever it returns an error or panics. A clean
// return is also restarted: the loop is meant to run forever.
//
// Loop returns nil on cancellation and the error itself when fn returns an
// error marked with Fatal.
func Loop(ctx context.Context, name string, logger *zap.Logger, fn func(ctx context.Context) error, opts ...Option) error {
	cfg := config{
		minBackoff: 250 * time.Millisecond,
		maxBackoff: 30 * time.Second,
		healthyRun: 30 * time.Second,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.maxBackoff < cfg.minBackoff {
		cfg.maxBackoff = cfg.minBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	backoff := cfg.minBackoff
	restarts := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		if cfg.onStart != nil {
			cfg.onStart(restarts)
		}

		startedAt := time.Now()
		err := run(ctx, fn)

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil
		}
		if IsFatal(err) {
			logger.Error("loop stopped on fatal error", zap.String("loop", name), zap.Error(err))
			return err
		}
		if err == nil {
			err = errors.New("exited")
		}

		restarts++
		if time.Since(startedAt) >= cfg.healthyRun {
			backoff = cfg.minBackoff
		}
		wait := min(max(backoff, cfg.minBackoff), cfg.maxBackoff)
		if j := wait / 5; j > 0 {
			wait += time.Duration(time.Now().UnixNano() % int64(j+1))
		}
		logger.Warn("loop restarting",
			zap.String("loop", name),
			zap.Int("restarts", restarts),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if cfg.onRestart != nil {
			cfg.onRestart(restarts, err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		backoff = min(backoff*2, cfg.maxBackoff)
	}
}

func run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}
