package pipeline

import (
	"container/heap"
	"context"
	"errors"
	"time"

	"github.com/sentrip/veryscrape/internal/domain"
)

type recordHeap []domain.Record

func (h recordHeap) Len() int           { return len(h) }
func (h recordHeap) Less(i, j int) bool { return h[i].CreatedAt.Before(h[j].CreatedAt) }
func (h recordHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *recordHeap) Push(x any)        { *h = append(*h, x.(domain.Record)) }
func (h *recordHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Sorter re-orders records from its source by CreatedAt inside a bounded
// window: the heap head is emitted once the heap exceeds maxItems or the
// head is older than maxAge, whichever comes first. Reordering latency
// is therefore capped at maxAge.
type Sorter struct {
	src      Stream
	h        recordHeap
	maxItems int
	maxAge   time.Duration
	closed   bool
}

func NewSorter(src Stream, maxItems int, maxAge time.Duration) *Sorter {
	if maxItems <= 0 {
		maxItems = 100
	}
	if maxAge <= 0 {
		maxAge = 5 * time.Second
	}
	s := &Sorter{src: src, maxItems: maxItems, maxAge: maxAge}
	heap.Init(&s.h)
	return s
}

func (s *Sorter) eligible() bool {
	if s.h.Len() == 0 {
		return false
	}
	if s.h.Len() > s.maxItems {
		return true
	}
	return time.Since(s.h[0].CreatedAt) > s.maxAge
}

func (s *Sorter) Next(ctx context.Context) (domain.Record, error) {
	for {
		if s.eligible() || (s.closed && s.h.Len() > 0) {
			return heap.Pop(&s.h).(domain.Record), nil
		}
		if s.closed {
			return domain.Record{}, ErrClosed
		}

		pullCtx := ctx
		var cancel context.CancelFunc
		if s.h.Len() > 0 {
			// wake up when the head crosses the age bound
			wait := s.maxAge - time.Since(s.h[0].CreatedAt)
			if wait < time.Millisecond {
				wait = time.Millisecond
			}
			pullCtx, cancel = context.WithTimeout(ctx, wait)
		}

		rec, err := s.src.Next(pullCtx)
		if cancel != nil {
			cancel()
		}
		switch {
		case err == nil:
			heap.Push(&s.h, rec)
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			// head aged out; loop re-checks eligibility
		case errors.Is(err, ErrClosed):
			s.closed = true
		default:
			return domain.Record{}, err
		}
	}
}

// Cancel stops the source. Buffered records are discarded: after
// cancellation Next reports ErrClosed.
func (s *Sorter) Cancel() {
	s.src.Cancel()
	s.closed = true
	s.h = nil
}
