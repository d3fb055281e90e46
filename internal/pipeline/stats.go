package pipeline

import "sync/atomic"

// Stats is a snapshot of orchestrator counters since start.
type Stats struct {
	Messages   uint64 `msgpack:"messages"`
	Skipped    uint64 `msgpack:"skipped"`
	Jobs       uint64 `msgpack:"jobs"`
	Unroutable uint64 `msgpack:"unroutable"`
	Failures   uint64 `msgpack:"failures"`
}

type counters struct {
	messages   atomic.Uint64
	skipped    atomic.Uint64
	jobs       atomic.Uint64
	unroutable atomic.Uint64
	failures   atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Messages:   c.messages.Load(),
		Skipped:    c.skipped.Load(),
		Jobs:       c.jobs.Load(),
		Unroutable: c.unroutable.Load(),
		Failures:   c.failures.Load(),
	}
}
