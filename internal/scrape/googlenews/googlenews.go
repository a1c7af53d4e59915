// Package googlenews harvests article links from the news search page
// and downloads them.
package googlenews

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
)

const scrapeEvery = 600 * time.Second

// searchBase is a var so tests can point it at a local server.
var searchBase = "https://news.google.com/news/search/section/q"

type Scraper struct {
	*scrape.Base
}

func New(opts ...client.Option) *Scraper {
	return &Scraper{Base: scrape.NewBase(domain.SourceArticle, scrapeEvery, client.New(opts...))}
}

// Scrape loads the search page for query, harvests every anchor, filters
// them down to article candidates and downloads the survivors into the
// topic queue.
func (s *Scraper) Scrape(ctx context.Context, query, topic string) error {
	q := url.PathEscape(query)
	target := fmt.Sprintf("%s/%s/%s", searchBase, q, q)

	params := url.Values{}
	params.Set("hl", "en")
	params.Set("ned", "us")

	res, err := s.Session().Get(ctx, target, params)
	if err != nil {
		return fmt.Errorf("news search: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("news search: status %d", res.StatusCode)
	}

	base, _ := url.Parse(target)
	hrefs, err := scrape.ExtractHrefs(res.Body, base)
	if err != nil {
		return fmt.Errorf("news search: parse: %w", err)
	}

	discovered := time.Now()
	var seeds []domain.Raw
	for _, u := range scrape.CleanURLs(hrefs) {
		seeds = append(seeds, domain.Raw{Data: u, CreatedAt: discovered})
	}
	if len(seeds) == 0 {
		return nil
	}
	return scrape.DownloadURLs(ctx, s.Session(), domain.SourceArticle, seeds, s.Queue(topic))
}

func (s *Scraper) Stream(query, topic string) pipeline.Stream {
	return s.StartStream(s, query, topic)
}
