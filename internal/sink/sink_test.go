package sink

import (
	"context"
	"testing"
	"time"

	"github.com/sentrip/veryscrape/internal/domain"
	"github.com/sentrip/veryscrape/internal/events"
	"github.com/sentrip/veryscrape/internal/pipeline"
	"github.com/sentrip/veryscrape/internal/store"
)

type fixedStream struct {
	recs []domain.Record
}

func (s *fixedStream) Next(ctx context.Context) (domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return domain.Record{}, err
	}
	if len(s.recs) == 0 {
		return domain.Record{}, pipeline.ErrClosed
	}
	r := s.recs[0]
	s.recs = s.recs[1:]
	return r, nil
}

func (s *fixedStream) Cancel() {}

func TestRunDrainsIntoStore(t *testing.T) {
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	src := &fixedStream{recs: []domain.Record{
		{Content: "a", Topic: "BTC", Source: domain.SourceTwitter, CreatedAt: time.Now()},
		{Content: "b", Topic: "ETH", Source: domain.SourceReddit, CreatedAt: time.Now()},
	}}

	hub := events.NewHub()
	sub := hub.Subscribe()

	if err := Run(context.Background(), src, hub, NewStore(db)); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, err := db.List(context.Background(), store.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("stored %d records, want 2", len(got))
	}
	if len(sub) != 2 {
		t.Fatalf("published %d events, want 2", len(sub))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fixedStream{recs: []domain.Record{{Content: "a"}}}
	if err := Run(ctx, src, nil); err == nil {
		t.Fatal("want context error")
	}
}
