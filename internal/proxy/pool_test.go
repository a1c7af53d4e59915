package proxy

import (
	"container/heap"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func poolWith(t *testing.T, cooldown time.Duration, eps ...Endpoint) *Pool {
	t.Helper()
	p := NewPool(Config{Cooldown: cooldown})
	for _, e := range eps {
		heap.Push(&p.active, e)
	}
	return p
}

func TestGetFastestFirst(t *testing.T) {
	p := poolWith(t, time.Minute,
		Endpoint{IP: "10.0.0.1", Port: 80, Speed: 1},
		Endpoint{IP: "10.0.0.2", Port: 80, Speed: 9},
		Endpoint{IP: "10.0.0.3", Port: 80, Speed: 5},
	)

	e, err := p.Get(context.Background(), "http")
	if err != nil {
		t.Fatal(err)
	}
	if e.IP != "10.0.0.2" {
		t.Fatalf("expected fastest endpoint, got %s", e.Addr())
	}
}

func TestGetRespectsCooldown(t *testing.T) {
	p := poolWith(t, time.Minute, Endpoint{IP: "10.0.0.1", Port: 80, Speed: 1})

	e, err := p.Get(context.Background(), "http")
	if err != nil {
		t.Fatal(err)
	}
	p.Put(e)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Get(ctx, "http"); err == nil {
		t.Fatal("endpoint handed out twice within cooldown")
	}
}

func TestGetSchemeFiltering(t *testing.T) {
	p := poolWith(t, time.Minute,
		Endpoint{IP: "10.0.0.1", Port: 80, Speed: 9, HTTPS: false},
		Endpoint{IP: "10.0.0.2", Port: 80, Speed: 1, HTTPS: true},
	)

	e, err := p.Get(context.Background(), "https")
	if err != nil {
		t.Fatal(err)
	}
	if e.IP != "10.0.0.2" {
		t.Fatalf("https request got non-https endpoint %s", e.Addr())
	}

	// the skipped faster endpoint must still be available for http
	e, err = p.Get(context.Background(), "http")
	if err != nil {
		t.Fatal(err)
	}
	if e.IP != "10.0.0.1" {
		t.Fatalf("skipped endpoint lost, got %s", e.Addr())
	}
}

func TestGetBlocksOnEmpty(t *testing.T) {
	p := NewPool(Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Get(ctx, "http"); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestRunRefillsToTarget(t *testing.T) {
	var n atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := n.Add(1)
		json.NewEncoder(w).Encode(Endpoint{
			Scheme: "http", IP: "10.0.0.1", Port: int(i), Speed: float64(i),
		})
	}))
	defer srv.Close()

	p := NewPool(Config{FetchURL: srv.URL, Target: 3})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	deadline := time.After(2 * time.Second)
	for p.size() < 3 {
		select {
		case <-deadline:
			t.Fatalf("pool never reached target, size=%d", p.size())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewPool(Config{FetchURL: srv.URL})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not stop on cancel")
	}
}
