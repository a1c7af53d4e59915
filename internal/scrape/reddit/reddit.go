// Package reddit pulls hot links and their comment trees per subreddit.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sentrip/veryscrape/internal/client"
	"github.com/sentrip/veryscrape/internal/domain"
	"github.com/sentrip/veryscrape/internal/limit"
	"github.com/sentrip/veryscrape/internal/pipeline"
	"github.com/sentrip/veryscrape/internal/scrape"
)

const (
	baseURL     = "https://oauth.reddit.com/r/"
	tokenURL    = "https://www.reddit.com/api/v1/access_token"
	scrapeEvery = 60 * time.Second
)

// Auth is the OAuth2 client-credentials pair for a script app.
type Auth struct {
	Client string
	Secret string
}

type Scraper struct {
	*scrape.Base
}

func New(auth Auth, opts ...client.Option) *Scraper {
	// reddit allows 60 requests per minute per token
	limiter := limit.New(time.Minute, []limit.Rule{{Pattern: limit.Global, Limit: 60}})
	opts = append([]client.Option{
		client.WithBaseURL(baseURL),
		client.WithOAuth2(auth.Client, auth.Secret, tokenURL),
		client.WithRateLimits(limiter),
		client.WithPersistentUserAgent(),
	}, opts...)
	return &Scraper{Base: scrape.NewBase(domain.SourceReddit, scrapeEvery, client.New(opts...))}
}

// listing is the common wrapper around reddit API payloads.
type listing struct {
	Data struct {
		Children []thing `json:"children"`
	} `json:"data"`
}

type thing struct {
	Kind string `json:"kind"`
	Data struct {
		ID         string  `json:"id"`
		Body       string  `json:"body"`
		CreatedUTC float64 `json:"created_utc"`
	} `json:"data"`
}

// Scrape walks one subreddit: the hot page for link ids, then each
// link's comment tree. Comment bodies land in the topic queue stamped
// with their creation time; [deleted] markers are cleaned later by the
// processor.
func (s *Scraper) Scrape(ctx context.Context, subreddit, topic string) error {
	ids, err := s.hotIDs(ctx, subreddit)
	if err != nil {
		return err
	}
	q := s.Queue(topic)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		comments, err := s.comments(ctx, subreddit, id)
		if err != nil {
			// one bad thread shouldn't sink the pass
			continue
		}
		for _, c := range comments {
			if err := q.Put(ctx, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Scraper) hotIDs(ctx context.Context, subreddit string) ([]string, error) {
	params := url.Values{}
	params.Set("raw_json", "1")
	params.Set("limit", "100")

	res, err := s.Session().Get(ctx, subreddit+"/hot.json", params)
	if err != nil {
		return nil, fmt.Errorf("reddit hot: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit hot: status %d", res.StatusCode)
	}

	var hot listing
	if err := json.NewDecoder(res.Body).Decode(&hot); err != nil {
		return nil, fmt.Errorf("reddit hot: decode: %w", err)
	}
	ids := make([]string, 0, len(hot.Data.Children))
	for _, child := range hot.Data.Children {
		if child.Data.ID != "" {
			ids = append(ids, child.Data.ID)
		}
	}
	return ids, nil
}

func (s *Scraper) comments(ctx context.Context, subreddit, id string) ([]domain.Raw, error) {
	params := url.Values{}
	params.Set("raw_json", "1")
	params.Set("limit", "10000")
	params.Set("depth", "10")

	res, err := s.Session().Get(ctx, fmt.Sprintf("%s/comments/%s.json", subreddit, id), params)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit comments %s: status %d", id, res.StatusCode)
	}

	// payload is [link-listing, comment-listing]
	var listings []listing
	if err := json.NewDecoder(res.Body).Decode(&listings); err != nil {
		return nil, fmt.Errorf("reddit comments %s: decode: %w", id, err)
	}
	if len(listings) < 2 {
		return nil, nil
	}

	var out []domain.Raw
	for _, c := range listings[1].Data.Children {
		if c.Kind != "t1" || c.Data.Body == "" {
			continue
		}
		created := time.Now()
		if c.Data.CreatedUTC > 0 {
			created = time.Unix(int64(c.Data.CreatedUTC), 0)
		}
		out = append(out, domain.Raw{Data: c.Data.Body, CreatedAt: created})
	}
	return out, nil
}

func (s *Scraper) Stream(subreddit, topic string) pipeline.Stream {
	return s.StartStream(s, subreddit, topic)
}
