package scrape

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sentrip/veryscrape/internal/domain"
	"github.com/sentrip/veryscrape/internal/pipeline"
)

// countScraper pushes one payload per scrape pass.
type countScraper struct {
	*Base
	n atomic.Int64
}

func newCountScraper(every time.Duration) *countScraper {
	return &countScraper{Base: NewBase("twitter", every, nil)}
}

func (c *countScraper) Scrape(ctx context.Context, query, topic string) error {
	n := c.n.Add(1)
	return c.Push(ctx, topic, domain.Raw{
		Data:      query + "-" + time.Now().Format("150405.000000") + "-" + string(rune('a'+n%26)),
		CreatedAt: time.Now(),
	})
}

func (c *countScraper) Stream(query, topic string) pipeline.Stream {
	return c.StartStream(c, query, topic)
}

func TestStartStreamSchedulesScrapes(t *testing.T) {
	s := newCountScraper(20 * time.Millisecond)
	defer s.Close()

	st := s.Stream("q", "topic")
	defer st.Cancel()

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		rec, err := st.Next(ctx)
		cancel()
		if err != nil {
			t.Fatal(err)
		}
		if rec.Source != "twitter" || rec.Topic != "topic" {
			t.Fatalf("record %+v", rec)
		}
	}
	if s.n.Load() < 3 {
		t.Fatalf("scrape ran %d times", s.n.Load())
	}
}

func TestCloseStopsScheduling(t *testing.T) {
	s := newCountScraper(time.Millisecond)
	st := s.Stream("q", "topic")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if _, err := st.Next(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	before := s.n.Load()
	time.Sleep(30 * time.Millisecond)
	if after := s.n.Load(); after != before {
		t.Fatalf("scrapes continued after Close: %d -> %d", before, after)
	}

	// queue closed: generator drains whatever is left, then stops
	st.Cancel()
	if _, err := st.Next(context.Background()); !errors.Is(err, pipeline.ErrClosed) {
		t.Fatalf("err = %v", err)
	}
}

func TestQueuePerTopic(t *testing.T) {
	b := NewBase("reddit", time.Minute, nil)
	defer b.Close()
	if b.Queue("a") == b.Queue("b") {
		t.Fatal("topics share a queue")
	}
	if b.Queue("a") != b.Queue("a") {
		t.Fatal("queue not stable per topic")
	}
}
