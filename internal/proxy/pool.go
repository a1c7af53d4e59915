// Package proxy maintains a pool of upstream proxy endpoints ranked by
// speed, topped up by a background refresher.
package proxy

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Endpoint is one proxy server as reported by the list service.
type Endpoint struct {
	Scheme string  `json:"protocol"`
	IP     string  `json:"ip"`
	Port   int     `json:"port"`
	Speed  float64 `json:"speed"`
	HTTPS  bool    `json:"https"`
	Post   bool    `json:"post"`
}

func (e Endpoint) Addr() string { return fmt.Sprintf("%s:%d", e.IP, e.Port) }

func (e Endpoint) URL() *url.URL {
	scheme := e.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return &url.URL{Scheme: scheme, Host: e.Addr()}
}

// supports reports whether the endpoint can carry requests for the given
// target scheme.
func (e Endpoint) supports(scheme string) bool {
	if scheme == "https" {
		return e.HTTPS
	}
	return true
}

type endpointHeap []Endpoint

func (h endpointHeap) Len() int           { return len(h) }
func (h endpointHeap) Less(i, j int) bool { return h[i].Speed > h[j].Speed }
func (h endpointHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *endpointHeap) Push(x any)        { *h = append(*h, x.(Endpoint)) }
func (h *endpointHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

const (
	defaultTarget   = 20
	defaultCooldown = 30 * time.Second
	backoffStart    = time.Second
	backoffCeiling  = 2 * time.Minute
)

// Config for a Pool. FetchURL is the proxy list endpoint; it must return
// one JSON-encoded Endpoint per request.
type Config struct {
	FetchURL string
	Target   int
	Cooldown time.Duration
	Client   *http.Client
}

// Pool hands out the fastest endpoint not inside its cooldown window.
// Get blocks while the pool is empty; the refresher goroutine keeps it
// topped up to Target.
type Pool struct {
	mu       sync.Mutex
	active   endpointHeap
	recent   map[string]time.Time
	cooldown time.Duration
	target   int
	fetchURL string
	hc       *http.Client
	wake     chan struct{}
}

func NewPool(cfg Config) *Pool {
	if cfg.Target <= 0 {
		cfg.Target = defaultTarget
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Pool{
		recent:   make(map[string]time.Time),
		cooldown: cfg.Cooldown,
		target:   cfg.Target,
		fetchURL: cfg.FetchURL,
		hc:       cfg.Client,
		wake:     make(chan struct{}, 1),
	}
}

// Get returns the fastest endpoint supporting scheme whose cooldown has
// elapsed. It blocks until the refresher produces one or ctx ends.
func (p *Pool) Get(ctx context.Context, scheme string) (Endpoint, error) {
	for {
		if e, ok := p.take(scheme); ok {
			return e, nil
		}
		select {
		case <-p.wake:
		case <-time.After(250 * time.Millisecond):
		case <-ctx.Done():
			return Endpoint{}, ctx.Err()
		}
	}
}

func (p *Pool) take(scheme string) (Endpoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	var skipped []Endpoint
	for p.active.Len() > 0 {
		e := heap.Pop(&p.active).(Endpoint)
		if t, ok := p.recent[e.Addr()]; ok && now.Sub(t) < p.cooldown {
			skipped = append(skipped, e) // still cooling down
			continue
		}
		if !e.supports(scheme) {
			skipped = append(skipped, e)
			continue
		}
		for _, s := range skipped {
			heap.Push(&p.active, s)
		}
		p.recent[e.Addr()] = now
		return e, true
	}
	for _, s := range skipped {
		heap.Push(&p.active, s)
	}
	return Endpoint{}, false
}

// Put returns an endpoint to the pool without clearing its cooldown.
func (p *Pool) Put(e Endpoint) {
	p.mu.Lock()
	heap.Push(&p.active, e)
	p.mu.Unlock()
	p.signal()
}

func (p *Pool) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active.Len()
}

// Run is the refresher loop. It fetches endpoints from the list service
// while the pool is below target, backing off exponentially on upstream
// failure, and exits when ctx is cancelled.
func (p *Pool) Run(ctx context.Context) {
	backoff := backoffStart
	for {
		if ctx.Err() != nil {
			return
		}
		if p.size() >= p.target {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		e, err := p.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[proxy] fetch failed: %v (retry in %v)", err, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > backoffCeiling {
				backoff = backoffCeiling
			}
			continue
		}
		backoff = backoffStart

		p.mu.Lock()
		heap.Push(&p.active, e)
		p.mu.Unlock()
		p.signal()
	}
}

func (p *Pool) fetch(ctx context.Context) (Endpoint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.fetchURL, nil)
	if err != nil {
		return Endpoint{}, err
	}
	res, err := p.hc.Do(req)
	if err != nil {
		return Endpoint{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return Endpoint{}, fmt.Errorf("proxy service status %d", res.StatusCode)
	}
	var e Endpoint
	if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
		return Endpoint{}, fmt.Errorf("decode proxy: %w", err)
	}
	if e.IP == "" || e.Port == 0 {
		return Endpoint{}, fmt.Errorf("proxy service returned incomplete endpoint")
	}
	return e, nil
}
