package googlenews

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sentrip/veryscrape/internal/domain"
)

func TestScrapeDownloadsArticles(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/news/search/section/q/bitcoin/bitcoin", func(w http.ResponseWriter, r *http.Request) {
		if hl := r.URL.Query().Get("hl"); hl != "en" {
			t.Errorf("hl = %q", hl)
		}
		fmt.Fprintf(w, `<html><body>
			<a href="%s/articles/alpha">alpha</a>
			<a href="%s/articles/alpha">alpha again</a>
			<a href="http://somewhere.com/">bare domain</a>
			<a href="https://news.google.com/more">nav</a>
		</body></html>`, srv.URL, srv.URL)
	})
	mux.HandleFunc("/articles/alpha", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("alpha article body"))
	})

	old := searchBase
	searchBase = srv.URL + "/news/search/section/q"
	defer func() { searchBase = old }()

	s := New()
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Scrape(ctx, "bitcoin", "BTC"); err != nil {
		t.Fatalf("scrape: %v", err)
	}

	q := s.Queue("BTC")
	if q.Len() != 1 {
		t.Fatalf("queued %d articles, want 1 (deduped, filtered)", q.Len())
	}
	raw, err := q.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if raw.Data != "alpha article body" {
		t.Fatalf("Data = %q", raw.Data)
	}
}

func TestScrapeSearchDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	old := searchBase
	searchBase = srv.URL + "/news/search/section/q"
	defer func() { searchBase = old }()

	s := New()
	defer s.Close()
	if err := s.Scrape(context.Background(), "bitcoin", "BTC"); err == nil {
		t.Fatal("want error when search page is unavailable")
	}
}

func TestScraperIdentity(t *testing.T) {
	s := New()
	defer s.Close()
	if s.Source() != domain.SourceArticle {
		t.Fatalf("Source = %q", s.Source())
	}
}
