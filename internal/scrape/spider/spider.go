// Package spider discovers content by following links outward from a
// seed list. Fetched pages are enqueued under the classify sentinel so
// the processor assigns their topic.
package spider

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sentrip/veryscrape/internal/client"
	"github.com/sentrip/veryscrape/internal/domain"
	"github.com/sentrip/veryscrape/internal/pipeline"
	"github.com/sentrip/veryscrape/internal/queue"
	"github.com/sentrip/veryscrape/internal/scrape"
	"github.com/temoto/robotstxt"
)

const (
	// MaxSeenURLs bounds the visited set for an unattended crawl.
	MaxSeenURLs = 10000000

	defaultConcurrency = 200
	scrapeEvery        = 3600 * time.Second
	maxBodyBytes       = 4 << 20
)

type Scraper struct {
	*scrape.Base
	seeds       []string
	concurrency int

	mu       sync.Mutex
	seen     map[string]struct{}
	pending  []string
	inFlight int

	robotsMu sync.Mutex
	robots   map[string]*robotstxt.Group
}

func New(seeds []string, opts ...client.Option) *Scraper {
	s := &Scraper{
		Base:        scrape.NewBase(domain.SourceSpider, scrapeEvery, client.New(opts...)),
		seeds:       seeds,
		concurrency: defaultConcurrency,
		seen:        make(map[string]struct{}),
		robots:      make(map[string]*robotstxt.Group),
	}
	// the pipeline paces discovery; dropping pages defeats the point
	s.UseBlockingQueues()
	return s
}

// SetConcurrency caps simultaneous fetches (default 200).
func (s *Scraper) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// Scrape runs one crawl to exhaustion: it drains the pending set,
// fetching each URL, enqueueing page bodies and feeding unseen links
// back into pending. It returns once pending is empty with no fetch in
// flight. The seen set survives across passes so a rescheduled crawl
// does not refetch.
func (s *Scraper) Scrape(ctx context.Context, query, topic string) error {
	s.mu.Lock()
	if len(s.pending) == 0 {
		for _, u := range s.seeds {
			s.markPending(u)
		}
	}
	s.mu.Unlock()

	q := s.Queue(topic)
	sem := make(chan struct{}, s.concurrency)
	var workers sync.WaitGroup
	defer workers.Wait()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		next, ok := s.popPending()
		if !ok {
			if s.idle() {
				return nil
			}
			// fetches in flight may still discover links
			select {
			case <-time.After(10 * time.Millisecond):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			s.mu.Lock()
			s.inFlight--
			s.mu.Unlock()
			return ctx.Err()
		}
		workers.Add(1)
		go func(u string) {
			defer workers.Done()
			defer func() { <-sem }()
			s.visit(ctx, u, q)
			s.mu.Lock()
			s.inFlight--
			s.mu.Unlock()
		}(next)
	}
}

// idle reports whether the crawl is finished: nothing pending and no
// fetch in flight.
func (s *Scraper) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) == 0 && s.inFlight == 0
}

// visit fetches one page, enqueues its body and queues its unseen links.
func (s *Scraper) visit(ctx context.Context, rawURL string, q *queue.Queue) {
	if !s.allowed(ctx, rawURL) {
		return
	}

	res, err := s.Session().Get(ctx, rawURL, nil)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[spider] fetch %s: %v", rawURL, err)
		}
		return
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	res.Body.Close()
	if err != nil || res.StatusCode != http.StatusOK {
		return
	}

	_ = q.Put(ctx, domain.Raw{Data: string(body), CreatedAt: time.Now()})

	base, _ := url.Parse(rawURL)
	hrefs, err := scrape.ExtractHrefs(strings.NewReader(string(body)), base)
	if err != nil {
		return
	}
	s.mu.Lock()
	for _, link := range scrape.CleanURLs(hrefs) {
		s.markPending(link)
	}
	s.mu.Unlock()
}

// popPending takes one discovered URL and counts it as in flight until
// its visit finishes.
func (s *Scraper) popPending() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pending)
	if n == 0 {
		return "", false
	}
	u := s.pending[n-1]
	s.pending = s.pending[:n-1]
	s.inFlight++
	return u, true
}

// markPending records a URL as discovered; callers hold s.mu. Already
// seen URLs and URLs past the seen-set bound are ignored.
func (s *Scraper) markPending(u string) {
	if _, ok := s.seen[u]; ok {
		return
	}
	if len(s.seen) >= MaxSeenURLs {
		return
	}
	s.seen[u] = struct{}{}
	s.pending = append(s.pending, u)
}

func (s *Scraper) allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Scheme + "://" + u.Host

	s.robotsMu.Lock()
	group, cached := s.robots[host]
	s.robotsMu.Unlock()

	if !cached {
		group = s.fetchRobots(ctx, host)
		s.robotsMu.Lock()
		s.robots[host] = group
		s.robotsMu.Unlock()
	}
	if group == nil {
		return true // no robots.txt, everything allowed
	}
	return group.Test(u.Path)
}

func (s *Scraper) fetchRobots(ctx context.Context, host string) *robotstxt.Group {
	res, err := s.Session().Get(ctx, host+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil
	}
	data, err := robotstxt.FromResponse(res)
	if err != nil {
		return nil
	}
	return data.FindGroup("*")
}

func (s *Scraper) Stream(query, topic string) pipeline.Stream {
	return s.StartStream(s, query, topic)
}
