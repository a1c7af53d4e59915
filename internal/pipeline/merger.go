package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/sentrip/veryscrape/internal/domain"
)

// Merger fans several streams into one, in arrival order. One pump
// goroutine per input moves records onto a shared bounded channel.
// Cancelling the merger cancels every pump and its inputs; reads after
// cancellation return ErrClosed even when records are still buffered.
type Merger struct {
	inputs []Stream
	out    chan domain.Record
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Merge starts pumping the given streams. The shared buffer holds at
// most buffer records; 0 picks a small default.
func Merge(buffer int, streams ...Stream) *Merger {
	if buffer <= 0 {
		buffer = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Merger{
		inputs: streams,
		out:    make(chan domain.Record, buffer),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, s := range streams {
		m.wg.Add(1)
		go m.pump(s)
	}
	go func() {
		m.wg.Wait()
		close(m.out)
	}()
	return m
}

func (m *Merger) pump(s Stream) {
	defer m.wg.Done()
	for {
		rec, err := s.Next(m.ctx)
		if err != nil {
			return
		}
		select {
		case m.out <- rec:
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Merger) Next(ctx context.Context) (domain.Record, error) {
	// cancelled mergers stop immediately, buffered records included
	select {
	case <-m.ctx.Done():
		return domain.Record{}, ErrClosed
	default:
	}
	select {
	case rec, ok := <-m.out:
		if !ok {
			return domain.Record{}, ErrClosed
		}
		return rec, nil
	case <-m.ctx.Done():
		return domain.Record{}, ErrClosed
	case <-ctx.Done():
		return domain.Record{}, ctx.Err()
	}
}

// Cancel stops all pumps and cancels the child streams. Idempotent.
func (m *Merger) Cancel() {
	m.once.Do(func() {
		m.cancel()
		for _, s := range m.inputs {
			s.Cancel()
		}
	})
}

// Drain reads a stream to completion, invoking fn per record. It returns
// nil when the stream closes and the first non-close error otherwise.
func Drain(ctx context.Context, s Stream, fn func(domain.Record)) error {
	for {
		rec, err := s.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		fn(rec)
	}
}
