package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sentrip/veryscrape/internal/domain"
)

// sliceStream is a fixed set of records followed by ErrClosed, or an
// endless block when hold is set.
type sliceStream struct {
	mu        sync.Mutex
	recs      []domain.Record
	hold      bool
	cancelled bool
}

func (s *sliceStream) Next(ctx context.Context) (domain.Record, error) {
	s.mu.Lock()
	if len(s.recs) > 0 {
		rec := s.recs[0]
		s.recs = s.recs[1:]
		s.mu.Unlock()
		return rec, nil
	}
	hold := s.hold
	s.mu.Unlock()
	if hold {
		<-ctx.Done()
		return domain.Record{}, ctx.Err()
	}
	return domain.Record{}, ErrClosed
}

func (s *sliceStream) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
}

func rec(content string) domain.Record {
	return domain.Record{Content: content, Topic: "t", Source: domain.SourceReddit, CreatedAt: time.Now()}
}

func TestMergeFansIn(t *testing.T) {
	a := &sliceStream{recs: []domain.Record{rec("a1"), rec("a2")}}
	b := &sliceStream{recs: []domain.Record{rec("b1")}}
	m := Merge(0, a, b)
	defer m.Cancel()

	got := map[string]bool{}
	for i := 0; i < 3; i++ {
		r, err := m.Next(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		got[r.Content] = true
	}
	if !got["a1"] || !got["a2"] || !got["b1"] {
		t.Fatalf("merged %v", got)
	}
	if _, err := m.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("after inputs closed: %v", err)
	}
}

func TestMergeCancelDiscardsBufferedItems(t *testing.T) {
	a := &sliceStream{recs: []domain.Record{rec("a1")}, hold: true}
	b := &sliceStream{recs: []domain.Record{rec("b1")}, hold: true}
	m := Merge(8, a, b)

	if _, err := m.Next(context.Background()); err != nil {
		t.Fatal(err)
	}
	m.Cancel()

	if _, err := m.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("post-cancel Next = %v, want ErrClosed despite buffered item", err)
	}
	if !a.cancelled || !b.cancelled {
		t.Fatal("child streams not cancelled")
	}
	m.Cancel() // idempotent
}

func TestMergeNextHonorsCallerContext(t *testing.T) {
	a := &sliceStream{hold: true}
	m := Merge(0, a)
	defer m.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestDrain(t *testing.T) {
	a := &sliceStream{recs: []domain.Record{rec("x"), rec("y")}}
	var got []string
	if err := Drain(context.Background(), a, func(r domain.Record) {
		got = append(got, r.Content)
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("drained %v", got)
	}
}
