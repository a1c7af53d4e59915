package store

import (
	"context"
	"testing"
	"time"

	"github.com/sentrip/veryscrape/internal/domain"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func rec(content string) domain.Record {
	return domain.Record{
		Content:   content,
		Topic:     "BTC",
		Source:    domain.SourceTwitter,
		CreatedAt: time.Date(2017, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestInsertAndList(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	added, err := db.Insert(ctx, rec("bitcoin is up"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !added {
		t.Fatal("first insert not added")
	}

	got, err := db.List(ctx, ListOpts{Topic: "BTC"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("listed %d records, want 1", len(got))
	}
	r := got[0]
	if r.Content != "bitcoin is up" || r.Source != domain.SourceTwitter {
		t.Fatalf("record = %+v", r)
	}
	if !r.CreatedAt.Equal(rec("bitcoin is up").CreatedAt) {
		t.Fatalf("CreatedAt = %v", r.CreatedAt)
	}
}

func TestInsertDeduplicates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if added, _ := db.Insert(ctx, rec("same content")); !added {
		t.Fatal("first insert not added")
	}
	added, err := db.Insert(ctx, rec("same content"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if added {
		t.Fatal("duplicate insert reported added")
	}

	got, _ := db.List(ctx, ListOpts{})
	if len(got) != 1 {
		t.Fatalf("listed %d records, want 1", len(got))
	}
}

func TestListFilters(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	db.Insert(ctx, domain.Record{Content: "a", Topic: "BTC", Source: domain.SourceTwitter, CreatedAt: time.Now()})
	db.Insert(ctx, domain.Record{Content: "b", Topic: "ETH", Source: domain.SourceReddit, CreatedAt: time.Now()})

	got, err := db.List(ctx, ListOpts{Source: domain.SourceReddit})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Content != "b" {
		t.Fatalf("got %+v", got)
	}
}

func TestCleanupOld(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	db.Insert(ctx, rec("ancient"))
	db.Insert(ctx, domain.Record{Content: "fresh", Topic: "BTC", Source: domain.SourceTwitter, CreatedAt: time.Now()})

	deleted, err := db.CleanupOld(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted %d, want 1", deleted)
	}
}
