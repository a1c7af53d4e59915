package pipeline

import (
	"context"
	"sync"

	"github.com/sentrip/veryscrape/internal/domain"
	"github.com/sentrip/veryscrape/internal/text"
	"golang.org/x/sync/errgroup"
)

// Processor runs each incoming record through its source's cleaner on a
// bounded worker pool, classifies records carrying the __classify__
// sentinel, and emits the results. Ordering across records is not
// preserved; put a Sorter after the processor when order matters.
type Processor struct {
	src      Stream
	out      chan domain.Record
	clean    map[string]text.CleanFunc
	classify text.ClassifyFunc
	// topics by source, consulted for sentinel records; an empty map for
	// a source skips classification entirely
	topics map[string]map[string][]string

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

type ProcessorOption func(*Processor)

func WithCleaners(m map[string]text.CleanFunc) ProcessorOption {
	return func(p *Processor) { p.clean = m }
}

func WithClassifier(f text.ClassifyFunc, topics map[string]map[string][]string) ProcessorOption {
	return func(p *Processor) {
		p.classify = f
		p.topics = topics
	}
}

// NewProcessor starts workers goroutines (minimum 1) cleaning records
// from src.
func NewProcessor(src Stream, workers int, opts ...ProcessorOption) *Processor {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Processor{
		src:      src,
		out:      make(chan domain.Record, workers*2),
		clean:    text.Cleaners(),
		classify: text.Classify,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, o := range opts {
		o(p)
	}

	jobs := make(chan domain.Record, workers)
	go func() {
		defer close(jobs)
		for {
			rec, err := src.Next(ctx)
			if err != nil {
				return
			}
			select {
			case jobs <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for rec := range jobs {
				out, ok := p.process(rec)
				if !ok {
					continue
				}
				select {
				case p.out <- out:
				case <-gctx.Done():
					return nil
				}
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(p.out)
	}()
	return p
}

// process cleans one record and resolves the classify sentinel. Records
// that clean to empty, or sentinel records that cannot be assigned a
// topic, are dropped.
func (p *Processor) process(rec domain.Record) (domain.Record, bool) {
	if fn, ok := p.clean[rec.Source]; ok {
		rec.Content = fn(rec.Content)
	}
	if rec.Content == "" {
		return domain.Record{}, false
	}
	if rec.Topic == domain.TopicClassify {
		topics := p.topics[rec.Source]
		if len(topics) == 0 || p.classify == nil {
			return domain.Record{}, false
		}
		topic := p.classify(rec.Content, topics)
		if topic == "" || topic == domain.TopicClassify {
			return domain.Record{}, false
		}
		rec.Topic = topic
	}
	return rec, true
}

func (p *Processor) Next(ctx context.Context) (domain.Record, error) {
	select {
	case <-p.ctx.Done():
		return domain.Record{}, ErrClosed
	default:
	}
	select {
	case rec, ok := <-p.out:
		if !ok {
			return domain.Record{}, ErrClosed
		}
		return rec, nil
	case <-p.ctx.Done():
		return domain.Record{}, ErrClosed
	case <-ctx.Done():
		return domain.Record{}, ctx.Err()
	}
}

// Cancel stops the workers and the upstream source. Idempotent.
func (p *Processor) Cancel() {
	p.once.Do(func() {
		p.cancel()
		p.src.Cancel()
	})
}
