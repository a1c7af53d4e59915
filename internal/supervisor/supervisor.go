// Package supervisor turns a validated config into a running pipeline:
// one scraper per configured account, one stream per (topic, query),
// merged and processed into a single record stream.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/sentrip/veryscrape/internal/client"
	"github.com/sentrip/veryscrape/internal/config"
	"github.com/sentrip/veryscrape/internal/domain"
	"github.com/sentrip/veryscrape/internal/events"
	"github.com/sentrip/veryscrape/internal/pipeline"
	"github.com/sentrip/veryscrape/internal/proxy"
	"github.com/sentrip/veryscrape/internal/scrape"
	"github.com/sentrip/veryscrape/internal/scrape/finance"
	"github.com/sentrip/veryscrape/internal/scrape/googlenews"
	"github.com/sentrip/veryscrape/internal/scrape/reddit"
	"github.com/sentrip/veryscrape/internal/scrape/spider"
	"github.com/sentrip/veryscrape/internal/scrape/twingly"
	"github.com/sentrip/veryscrape/internal/scrape/twitter"
	"github.com/sentrip/veryscrape/internal/secrets"
	"github.com/sentrip/veryscrape/internal/text"
)

// Options tune the assembled pipeline. Workers < 0 disables processing
// entirely: records come out raw, sentinel topics and all.
type Options struct {
	Workers       int
	Buffer        int
	ProxyFetchURL string
	Hub           *events.Hub
}

const (
	defaultWorkers = 4
	defaultBuffer  = 1024
)

type Supervisor struct {
	hub      *events.Hub
	scrapers []scrape.Scraper
	out      pipeline.Stream

	cancelPool context.CancelFunc
	closed     sync.Once
}

// New builds every configured scraper and wires their streams into one
// output stream. Any failure here is a configuration error: nothing is
// left running when an error returns.
func New(cfgs []config.Scraper, opts Options) (*Supervisor, error) {
	if v := config.Validate(cfgs); !v.OK() {
		return nil, fmt.Errorf("%w: %v", config.ErrBadConfig, v.Errors)
	}
	if opts.Hub == nil {
		opts.Hub = events.NewHub()
	}
	if opts.Workers == 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}

	poolCtx, cancelPool := context.WithCancel(context.Background())
	s := &Supervisor{hub: opts.Hub, cancelPool: cancelPool}

	var pool *proxy.Pool
	if opts.ProxyFetchURL != "" {
		pool = proxy.NewPool(proxy.Config{FetchURL: opts.ProxyFetchURL})
		go pool.Run(poolCtx)
	}

	var streams []pipeline.Stream
	for _, cfg := range cfgs {
		sc, err := s.build(cfg, pool)
		if err != nil {
			s.shutdown()
			return nil, fmt.Errorf("%w: %s: %v", config.ErrBadConfig, cfg.Source, err)
		}
		s.scrapers = append(s.scrapers, sc)

		for _, p := range streamPairs(cfg) {
			streams = append(streams, sc.Stream(p.query, p.topic))
			s.hub.Publish(events.Make(events.TypeStarted, cfg.Source, p.topic, p.query))
		}
	}

	merged := pipeline.Merge(opts.Buffer, streams...)
	s.out = pipeline.Stream(merged)
	if opts.Workers >= 0 {
		s.out = pipeline.NewProcessor(merged, opts.Workers,
			pipeline.WithCleaners(text.Cleaners()),
			pipeline.WithClassifier(text.Classify, classifyTopics(cfgs)),
		)
	}
	return s, nil
}

type streamPair struct {
	topic, query string
}

// streamPairs lists the (topic, query) streams one scraper account
// runs. The spider is special: its queries are seed URLs consumed at
// construction, so it gets a single stream under the classify sentinel.
func streamPairs(cfg config.Scraper) []streamPair {
	if cfg.Source == domain.SourceSpider {
		return []streamPair{{topic: domain.TopicClassify}}
	}
	var pairs []streamPair
	for topic, queries := range cfg.Topics {
		for _, q := range queries {
			pairs = append(pairs, streamPair{topic: topic, query: q})
		}
	}
	return pairs
}

// classifyTopics builds the per-source topic map the processor
// classifies sentinel records against. Spider pages match against every
// configured topic since the crawl has no topic of its own.
func classifyTopics(cfgs []config.Scraper) map[string]map[string][]string {
	all := make(map[string][]string)
	bySource := make(map[string]map[string][]string)
	for _, cfg := range cfgs {
		if cfg.Source == domain.SourceSpider {
			continue
		}
		m := bySource[cfg.Source]
		if m == nil {
			m = make(map[string][]string)
			bySource[cfg.Source] = m
		}
		for topic, queries := range cfg.Topics {
			m[topic] = append(m[topic], queries...)
			all[topic] = append(all[topic], queries...)
		}
	}
	bySource[domain.SourceSpider] = all
	return bySource
}

func (s *Supervisor) build(cfg config.Scraper, pool *proxy.Pool) (scrape.Scraper, error) {
	auth, err := resolveAuth(cfg.Auth)
	if err != nil {
		return nil, err
	}

	var opts []client.Option
	if cfg.UseProxies && pool != nil {
		opts = append(opts, client.WithProxyPool(pool))
	}

	switch cfg.Source {
	case domain.SourceTwitter:
		return twitter.New(twitter.Auth{
			ConsumerKey:    auth[0],
			ConsumerSecret: auth[1],
			Token:          auth[2],
			TokenSecret:    auth[3],
		}, opts...), nil
	case domain.SourceReddit:
		return reddit.New(reddit.Auth{Client: auth[0], Secret: auth[1]}, opts...), nil
	case domain.SourceBlog:
		return twingly.New(auth[0], opts...), nil
	case domain.SourceArticle:
		return googlenews.New(opts...), nil
	case domain.SourceStock:
		return finance.New(opts...), nil
	case domain.SourceSpider:
		return spider.New(seedURLs(cfg), opts...), nil
	}
	return nil, fmt.Errorf("unknown source %q", cfg.Source)
}

// seedURLs flattens a spider block's query lists into the crawl seeds.
func seedURLs(cfg config.Scraper) []string {
	var seeds []string
	for _, queries := range cfg.Topics {
		seeds = append(seeds, queries...)
	}
	return seeds
}

func resolveAuth(entries []string) ([]string, error) {
	out := make([]string, len(entries))
	for i, entry := range entries {
		v, err := secrets.Resolve(entry)
		if err != nil {
			return nil, fmt.Errorf("auth component %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

// Stream is the supervisor's output: cleaned, classified records (or
// raw ones when processing is disabled).
func (s *Supervisor) Stream() pipeline.Stream { return s.out }

func (s *Supervisor) Hub() *events.Hub { return s.hub }

// Close tears the pipeline down: output stream first so readers unblock,
// then every scraper and the proxy refresher.
func (s *Supervisor) Close() error {
	s.closed.Do(func() {
		if s.out != nil {
			s.out.Cancel()
		}
		s.shutdown()
	})
	return nil
}

func (s *Supervisor) shutdown() {
	s.cancelPool()
	for _, sc := range s.scrapers {
		source := sc.Source()
		if err := sc.Close(); err != nil {
			log.Printf("[supervisor] close %s: %v", source, err)
		}
		s.hub.Publish(events.Make(events.TypeStopped, source, "", ""))
	}
}
