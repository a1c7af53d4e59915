// Package twingly turns blog-search results into article seeds and
// downloads them.
package twingly

import (
	"context"
	"encoding/xml"
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

// searchURL is a var so tests can point it at a local server.
var searchURL = "https://api.twingly.com/blog/search/api/v3/search"

type Scraper struct {
	apiKey string
	*scrape.Base
}

func New(apiKey string, opts ...client.Option) *Scraper {
	return &Scraper{
		apiKey: apiKey,
		Base:   scrape.NewBase(domain.SourceBlog, scrapeEvery, client.New(opts...)),
	}
}

type searchResult struct {
	XMLName xml.Name `xml:"twinglydata"`
	Posts   []post   `xml:"post"`
}

type post struct {
	URL         string `xml:"url"`
	PublishedAt string `xml:"publishedAt"`
}

// Scrape queries the last 12 hours of English blog posts for query and
// pushes each post body into the topic queue, stamped with its publish
// time.
func (s *Scraper) Scrape(ctx context.Context, query, topic string) error {
	params := url.Values{}
	params.Set("q", query+" lang:en tspan:12h page-size:1")
	params.Set("apiKey", s.apiKey)

	res, err := s.Session().Get(ctx, searchURL, params)
	if err != nil {
		return fmt.Errorf("twingly search: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("twingly search: status %d", res.StatusCode)
	}

	var result searchResult
	if err := xml.NewDecoder(res.Body).Decode(&result); err != nil {
		return fmt.Errorf("twingly search: decode: %w", err)
	}

	seeds := make([]domain.Raw, 0, len(result.Posts))
	now := time.Now()
	for _, p := range result.Posts {
		if !scrape.KeepURL(p.URL) {
			continue
		}
		published := now
		if t, err := time.Parse(time.RFC3339, p.PublishedAt); err == nil {
			published = t
		}
		seeds = append(seeds, domain.Raw{Data: p.URL, CreatedAt: published})
	}
	if len(seeds) == 0 {
		return nil
	}
	return scrape.DownloadURLs(ctx, s.Session(), domain.SourceBlog, seeds, s.Queue(topic))
}

func (s *Scraper) Stream(query, topic string) pipeline.Stream {
	return s.StartStream(s, query, topic)
}
