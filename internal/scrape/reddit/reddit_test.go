package reddit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sentrip/veryscrape/internal/client"
	"github.com/sentrip/veryscrape/internal/domain"
)

const hotPage = `{"data":{"children":[
	{"kind":"t3","data":{"id":"abc"}},
	{"kind":"t3","data":{"id":"def"}}
]}}`

const commentsPage = `[
	{"data":{"children":[{"kind":"t3","data":{"id":"abc"}}]}},
	{"data":{"children":[
		{"kind":"t1","data":{"body":"nice thread","created_utc":1500000000}},
		{"kind":"more","data":{}},
		{"kind":"t1","data":{"body":""}}
	]}}
]`

func testScraper(t *testing.T) (*Scraper, *int) {
	t.Helper()
	var tokens int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		tokens++
		w.Write([]byte(`{"access_token":"tok1","expires_in":3600}`))
	})
	mux.HandleFunc("/r/golang/hot.json", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "bearer tok1" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(hotPage))
	})
	mux.HandleFunc("/r/golang/comments/abc.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(commentsPage))
	})
	mux.HandleFunc("/r/golang/comments/def.json", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound) // bad thread, skipped
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := New(Auth{Client: "id", Secret: "secret"},
		client.WithBaseURL(srv.URL+"/r/"),
		client.WithOAuth2("id", "secret", srv.URL+"/api/v1/access_token"),
	)
	t.Cleanup(func() { s.Close() })
	return s, &tokens
}

func TestScrapeCollectsComments(t *testing.T) {
	s, tokens := testScraper(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Scrape(ctx, "golang", "GO"); err != nil {
		t.Fatalf("scrape: %v", err)
	}

	q := s.Queue("GO")
	if q.Len() != 1 {
		t.Fatalf("queued %d comments, want 1", q.Len())
	}
	raw, err := q.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if raw.Data != "nice thread" {
		t.Fatalf("Data = %q", raw.Data)
	}
	if !raw.CreatedAt.Equal(time.Unix(1500000000, 0)) {
		t.Fatalf("CreatedAt = %v", raw.CreatedAt)
	}
	if *tokens != 1 {
		t.Fatalf("fetched %d tokens, want 1", *tokens)
	}
}

func TestScrapeHotFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/access_token" {
			w.Write([]byte(`{"access_token":"tok1"}`))
			return
		}
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := New(Auth{Client: "id", Secret: "secret"},
		client.WithBaseURL(srv.URL+"/r/"),
		client.WithOAuth2("id", "secret", srv.URL+"/api/v1/access_token"),
	)
	defer s.Close()

	if err := s.Scrape(context.Background(), "golang", "GO"); err == nil {
		t.Fatal("want error when hot listing is unavailable")
	}
}

func TestScraperIdentity(t *testing.T) {
	s := New(Auth{Client: "id", Secret: "secret"})
	defer s.Close()
	if s.Source() != domain.SourceReddit {
		t.Fatalf("Source = %q", s.Source())
	}
	if s.Interval() != scrapeEvery {
		t.Fatalf("Interval = %v", s.Interval())
	}
}
