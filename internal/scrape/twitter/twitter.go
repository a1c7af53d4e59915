// Package twitter consumes the filtered tweet firehose.
package twitter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sentrip/veryscrape/internal/client"
	"github.com/sentrip/veryscrape/internal/domain"
	"github.com/sentrip/veryscrape/internal/pipeline"
	"github.com/sentrip/veryscrape/internal/scrape"
	"github.com/sentrip/veryscrape/internal/stream"
)

const (
	baseURL     = "https://stream.twitter.com/1.1/"
	filterPath  = "statuses/filter.json"
	scrapeEvery = 600 * time.Second

	// 420 means the account is opening connections too fast; twitter
	// wants a 60 second pause before reconnecting
	statusEnhanceYourCalm = 420
	calmDown              = 60 * time.Second
)

const createdAtLayout = "Mon Jan 02 15:04:05 -0700 2006"

// Auth is the OAuth1 credential set for one streaming account.
type Auth struct {
	ConsumerKey    string
	ConsumerSecret string
	Token          string
	TokenSecret    string
}

// Scraper holds one long-lived filter connection per (query, topic).
// Each Scrape call connects, streams until the connection ends, and
// returns; the scheduler reconnects on the next cycle.
type Scraper struct {
	*scrape.Base
	sleep func(ctx context.Context, d time.Duration)
}

func New(auth Auth, opts ...client.Option) *Scraper {
	opts = append([]client.Option{
		client.WithBaseURL(baseURL),
		client.WithOAuth1(auth.ConsumerKey, auth.ConsumerSecret, auth.Token, auth.TokenSecret),
		client.WithPersistentUserAgent(),
		// streaming reads outlive any sane request timeout
		client.WithTimeout(0),
	}, opts...)
	return &Scraper{
		Base:  scrape.NewBase(domain.SourceTwitter, scrapeEvery, client.New(opts...)),
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Scrape opens the filter stream for query and pumps tweets into the
// topic queue until the connection drops or ctx ends.
func (s *Scraper) Scrape(ctx context.Context, query, topic string) error {
	params := url.Values{}
	params.Set("language", "en")
	params.Set("track", query)

	res, err := s.Session().Post(ctx, filterPath, params, nil)
	if err != nil {
		return fmt.Errorf("twitter connect: %w", err)
	}

	switch res.StatusCode {
	case http.StatusOK:
	case statusEnhanceYourCalm:
		res.Body.Close()
		s.sleep(ctx, calmDown)
		return nil
	default:
		res.Body.Close()
		return fmt.Errorf("twitter stream: status %d", res.StatusCode)
	}

	buf := stream.New(res)
	defer buf.Cancel()
	q := s.Queue(topic)

	for {
		obj, err := buf.Next(ctx)
		if err != nil {
			if err == stream.ErrClosed {
				return nil // reconnect on the next cycle
			}
			return err
		}
		text, ok := obj["text"].(string)
		if !ok || text == "" {
			continue // limit notices are eaten upstream; skip other shapes
		}
		created := time.Now()
		if raw, ok := obj["created_at"].(string); ok {
			if t, err := time.Parse(createdAtLayout, raw); err == nil {
				created = t
			}
		}
		if err := q.Put(ctx, domain.Raw{Data: text, CreatedAt: created}); err != nil {
			return err
		}
	}
}

func (s *Scraper) Stream(query, topic string) pipeline.Stream {
	return s.StartStream(s, query, topic)
}
