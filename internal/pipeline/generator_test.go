package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentrip/veryscrape/internal/domain"
	"github.com/sentrip/veryscrape/internal/queue"
)

func feed(t *testing.T, q *queue.Queue, payloads ...string) {
	t.Helper()
	for _, p := range payloads {
		if err := q.Put(context.Background(), domain.Raw{Data: p, CreatedAt: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestGeneratorDeduplicates(t *testing.T) {
	q := queue.New(16)
	feed(t, q, "a", "a", "b", "a", "c")
	q.Close()

	g := NewGenerator(q, "crypto", domain.SourceTwitter)
	var got []string
	for {
		rec, err := g.Next(context.Background())
		if errors.Is(err, ErrClosed) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if rec.Topic != "crypto" || rec.Source != domain.SourceTwitter {
			t.Fatalf("record bound wrong: %+v", rec)
		}
		got = append(got, rec.Content)
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("emitted %v, want [a b c]", got)
	}
	if len(g.seen) != 3 {
		t.Fatalf("seen-set size %d, want 3", len(g.seen))
	}
}

func TestGeneratorSeenSetEviction(t *testing.T) {
	q := queue.New(16)
	g := NewGenerator(q, "t", domain.SourceReddit, WithMaxSeen(2))

	feed(t, q, "a", "b", "c")
	for i := 0; i < 3; i++ {
		if _, err := g.Next(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if len(g.seen) != 2 {
		t.Fatalf("seen-set size %d, want capacity 2", len(g.seen))
	}
}

func TestGeneratorProcessHooks(t *testing.T) {
	q := queue.New(16)
	when := time.Date(2018, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewGenerator(q, "t", domain.SourceReddit,
		WithProcessText(func(raw domain.Raw) (string, bool) {
			if raw.Data == "[deleted]" {
				return "", false
			}
			return raw.Data + "!", true
		}),
		WithProcessTime(func(raw domain.Raw) (time.Time, bool) { return when, true }),
	)

	feed(t, q, "[deleted]", "hello")
	rec, err := g.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rec.Content != "hello!" {
		t.Fatalf("content %q", rec.Content)
	}
	if !rec.CreatedAt.Equal(when) {
		t.Fatalf("created at %v", rec.CreatedAt)
	}
}

func TestGeneratorCancelWakesBlockedNext(t *testing.T) {
	q := queue.New(16)
	g := NewGenerator(q, "t", domain.SourceTwitter)

	done := make(chan error, 1)
	go func() {
		_, err := g.Next(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	g.Cancel()
	g.Cancel() // idempotent

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Cancel")
	}

	if _, err := g.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("post-cancel Next = %v", err)
	}
}
