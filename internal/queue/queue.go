// Package queue provides the bounded FIFO hand-off used between the
// ingestor, the orchestrator and the delivery worker.
package queue

import (
	"context"
	"errors"
	"sync"
)

// DefaultCapacity is used when a queue is created with a non-positive size.
const DefaultCapacity = 1024

// ErrClosed is returned by Put after Close, and by Get once a closed queue
// has been drained.
var ErrClosed = errors.New("queue closed")

// Queue is a blocking FIFO. Put waits for capacity and Get waits for an item.
// The context only bounds the wait; items are never dropped or reordered.
type Queue[T any] interface {
	Put(ctx context.Context, item T) error
	Get(ctx context.Context) (T, error)
}

// Bounded is an in-process Queue backed by a buffered channel.
type Bounded[T any] struct {
	ch chan T
	// closing wakes blocked producers; sealed is closed once no Put can
	// still send, so a drained sealed queue stays empty.
	closing chan struct{}
	sealed  chan struct{}
	mu      sync.RWMutex
	once    sync.Once
}

// NewBounded creates a queue holding at most capacity items.
func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bounded[T]{
		ch:      make(chan T, capacity),
		closing: make(chan struct{}),
		sealed:  make(chan struct{}),
	}
}

// Put blocks until there is room for item, the queue is closed, or ctx ends.
// An already cancelled ctx never enqueues.
func (q *Bounded[T]) Put(ctx context.Context, item T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	select {
	case <-q.closing:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- item:
		return nil
	case <-q.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get blocks until an item is available or ctx ends. Items buffered before
// Close are still returned. An already cancelled ctx never dequeues.
func (q *Bounded[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	select {
	case item := <-q.ch:
		return item, nil
	case <-q.sealed:
		select {
		case item := <-q.ch:
			return item, nil
		default:
			return zero, ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close stops accepting new items and returns once in-flight Puts have
// finished. Safe to call more than once.
func (q *Bounded[T]) Close() {
	q.once.Do(func() {
		close(q.closing)
		q.mu.Lock()
		close(q.sealed)
		q.mu.Unlock()
	})
}

// Len returns the number of buffered items.
func (q *Bounded[T]) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Bounded[T]) Cap() int { return cap(q.ch) }
