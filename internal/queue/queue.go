// Package queue provides the bounded raw-payload queues that sit between a
// scraper and its generator.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/sentrip/veryscrape/internal/domain"
)

var ErrClosed = errors.New("queue: closed")

const DefaultCap = 10000

// Queue is a bounded FIFO of raw payloads. Non-critical sources use
// drop-oldest overflow so a stalled consumer never wedges a scraper;
// the spider uses blocking mode so discovery is paced by the pipeline.
type Queue struct {
	ch       chan domain.Raw
	blocking bool
	done     chan struct{}
	once     sync.Once
}

func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Queue{ch: make(chan domain.Raw, capacity), done: make(chan struct{})}
}

// NewBlocking returns a queue whose Put blocks when full instead of
// dropping the oldest entry.
func NewBlocking(capacity int) *Queue {
	q := New(capacity)
	q.blocking = true
	return q
}

func (q *Queue) Put(ctx context.Context, item domain.Raw) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	if q.blocking {
		select {
		case q.ch <- item:
			return nil
		case <-q.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for {
		select {
		case q.ch <- item:
			return nil
		case <-q.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		// full: drop the oldest and retry
		select {
		case <-q.ch:
		default:
		}
	}
}

// Get blocks until an item is available, the queue is closed, or ctx ends.
func (q *Queue) Get(ctx context.Context) (domain.Raw, error) {
	select {
	case item := <-q.ch:
		return item, nil
	default:
	}
	select {
	case item := <-q.ch:
		return item, nil
	case <-q.done:
		// drain anything buffered before reporting closure
		select {
		case item := <-q.ch:
			return item, nil
		default:
			return domain.Raw{}, ErrClosed
		}
	case <-ctx.Done():
		return domain.Raw{}, ctx.Err()
	}
}

func (q *Queue) Len() int { return len(q.ch) }

// Close wakes all blocked readers. Items already buffered remain readable.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}
