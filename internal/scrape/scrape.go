// Package scrape defines the common scraper contract and the shared
// machinery behind it: periodic scheduling, per-topic queues and stream
// construction. The per-source protocols live in subpackages.
package scrape

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sentrip/veryscrape/internal/client"
	"github.com/sentrip/veryscrape/internal/domain"
	"github.com/sentrip/veryscrape/internal/pipeline"
	"github.com/sentrip/veryscrape/internal/queue"
)

// Scraper is one acquisition source. Scrape performs a single pass for a
// (query, topic) pair; Stream schedules Scrape on the scraper's interval
// and returns a deduplicating record iterator over the topic's queue.
type Scraper interface {
	Source() string
	Interval() time.Duration
	Scrape(ctx context.Context, query, topic string) error
	Stream(query, topic string) pipeline.Stream
	Close() error
}

// Base carries the state every scraper shares. Variants embed it and
// call StartStream from their Stream method.
type Base struct {
	source string
	every  time.Duration
	sess   *client.Session

	mu       sync.Mutex
	queues   map[string]*queue.Queue
	newQueue func() *queue.Queue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed sync.Once
}

// NewBase builds a Base for source scraping every interval (0 means
// continuous). The session may be nil for scrapers that fetch nothing.
func NewBase(source string, every time.Duration, sess *client.Session) *Base {
	ctx, cancel := context.WithCancel(context.Background())
	return &Base{
		source:   source,
		every:    every,
		sess:     sess,
		queues:   make(map[string]*queue.Queue),
		newQueue: func() *queue.Queue { return queue.New(queue.DefaultCap) },
		ctx:      ctx,
		cancel:   cancel,
	}
}

// UseBlockingQueues switches new topic queues to blocking overflow; the
// spider uses this so the pipeline paces discovery.
func (b *Base) UseBlockingQueues() {
	b.newQueue = func() *queue.Queue { return queue.NewBlocking(queue.DefaultCap) }
}

func (b *Base) Source() string           { return b.source }
func (b *Base) Interval() time.Duration  { return b.every }
func (b *Base) Session() *client.Session { return b.sess }
func (b *Base) Context() context.Context { return b.ctx }

// Queue returns (building on demand) the raw queue for a topic.
func (b *Base) Queue(topic string) *queue.Queue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[topic]
	if !ok {
		q = b.newQueue()
		b.queues[topic] = q
	}
	return q
}

// Push enqueues one raw payload for a topic.
func (b *Base) Push(ctx context.Context, topic string, raw domain.Raw) error {
	return b.Queue(topic).Put(ctx, raw)
}

// StartStream schedules s.Scrape on the scraper's interval and returns a
// generator bound to the topic queue.
func (b *Base) StartStream(s Scraper, query, topic string, opts ...pipeline.GeneratorOption) pipeline.Stream {
	gen := pipeline.NewGenerator(b.Queue(topic), topic, b.source, opts...)
	name := fmt.Sprintf("%s/%s", b.source, topic)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		every(b.ctx, b.every, name, func(ctx context.Context) error {
			return s.Scrape(ctx, query, topic)
		})
	}()
	return gen
}

// Go runs f under the scraper's lifecycle; Close waits for it.
func (b *Base) Go(f func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		f(b.ctx)
	}()
}

// Close cancels all scheduled tasks, waits for them, closes the topic
// queues and the session.
func (b *Base) Close() error {
	b.closed.Do(func() {
		b.cancel()
		b.wg.Wait()
		b.mu.Lock()
		for _, q := range b.queues {
			q.Close()
		}
		b.mu.Unlock()
		if b.sess != nil {
			b.sess.Close()
		}
	})
	return nil
}

// every runs task immediately and then on each interval tick until ctx
// ends. A zero interval reruns continuously, pausing briefly after an
// error so a dead endpoint cannot spin the loop.
func every(ctx context.Context, interval time.Duration, name string, task func(ctx context.Context) error) {
	run := func() error {
		err := task(ctx)
		if err != nil && ctx.Err() == nil {
			log.Printf("[%s] scrape error: %v", name, err)
		}
		return err
	}

	if interval <= 0 {
		for ctx.Err() == nil {
			if err := run(); err != nil {
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
				}
			}
		}
		return
	}

	_ = run()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = run()
		}
	}
}
