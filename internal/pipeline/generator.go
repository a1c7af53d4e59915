package pipeline

import (
	"context"
	"crypto/md5"
	"sync"
	"time"

	"github.com/sentrip/veryscrape/internal/domain"
	"github.com/sentrip/veryscrape/internal/queue"
)

// MaxSeen bounds the per-generator fingerprint set.
const MaxSeen = 50000

// ProcessText turns a raw payload into record content. Returning ok=false
// drops the payload (empty text, deleted comment, shape error).
type ProcessText func(raw domain.Raw) (string, bool)

// ProcessTime extracts the event time for a payload. Returning ok=false
// falls back to the capture time.
type ProcessTime func(raw domain.Raw) (time.Time, bool)

// Generator drains one raw queue and emits deduplicated records bound to
// a single (topic, source) pair. Duplicate content is recognized by an
// MD5 fingerprint held in a bounded set; on overflow an arbitrary entry
// is evicted, so a very old duplicate may be emitted again.
type Generator struct {
	queue   *queue.Queue
	topic   string
	source  string
	text    ProcessText
	when    ProcessTime
	seen    map[[md5.Size]byte]struct{}
	maxSeen int

	done chan struct{}
	once sync.Once
}

type GeneratorOption func(*Generator)

func WithProcessText(f ProcessText) GeneratorOption {
	return func(g *Generator) { g.text = f }
}

func WithProcessTime(f ProcessTime) GeneratorOption {
	return func(g *Generator) { g.when = f }
}

func WithMaxSeen(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxSeen = n
		}
	}
}

func NewGenerator(q *queue.Queue, topic, source string, opts ...GeneratorOption) *Generator {
	g := &Generator{
		queue:   q,
		topic:   topic,
		source:  source,
		text:    func(raw domain.Raw) (string, bool) { return raw.Data, raw.Data != "" },
		seen:    make(map[[md5.Size]byte]struct{}),
		maxSeen: MaxSeen,
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Next blocks until a fresh record is available. It returns ErrClosed
// once the generator is cancelled or its queue is closed and drained.
func (g *Generator) Next(ctx context.Context) (domain.Record, error) {
	ctx, stop := g.watch(ctx)
	defer stop()

	for {
		select {
		case <-g.done:
			return domain.Record{}, ErrClosed
		default:
		}

		raw, err := g.queue.Get(ctx)
		if err != nil {
			if err == queue.ErrClosed {
				return domain.Record{}, ErrClosed
			}
			select {
			case <-g.done:
				return domain.Record{}, ErrClosed
			default:
				return domain.Record{}, err
			}
		}

		content, ok := g.text(raw)
		if !ok {
			continue
		}
		if g.duplicate(content) {
			continue
		}

		created := raw.CreatedAt
		if g.when != nil {
			if t, ok := g.when(raw); ok {
				created = t
			}
		}
		if created.IsZero() {
			created = time.Now()
		}

		return domain.Record{
			Content:   content,
			Topic:     g.topic,
			Source:    g.source,
			CreatedAt: created,
		}, nil
	}
}

func (g *Generator) duplicate(content string) bool {
	sum := md5.Sum([]byte(content))
	if _, ok := g.seen[sum]; ok {
		return true
	}
	if len(g.seen) >= g.maxSeen {
		for k := range g.seen {
			delete(g.seen, k)
			break
		}
	}
	g.seen[sum] = struct{}{}
	return false
}

// watch ties ctx to the generator's cancellation so a blocked queue read
// wakes when Cancel is called.
func (g *Generator) watch(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-g.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Cancel stops the generator. Idempotent.
func (g *Generator) Cancel() {
	g.once.Do(func() { close(g.done) })
}
