// Package finance polls stock quotes off the google finance page.
package finance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sentrip/veryscrape/internal/client"
	"github.com/sentrip/veryscrape/internal/domain"
	"github.com/sentrip/veryscrape/internal/pipeline"
	"github.com/sentrip/veryscrape/internal/scrape"
)

const scrapeEvery = 60 * time.Second

// quoteURL is a var so tests can point it at a local server.
var quoteURL = "https://www.google.com/finance"

// rePrice matches the quote span: id="ref_<id>">12,345.67<
var rePrice = regexp.MustCompile(`id="ref_(.*?)">(.*?)<`)

type Scraper struct {
	*scrape.Base
}

func New(opts ...client.Option) *Scraper {
	return &Scraper{Base: scrape.NewBase(domain.SourceStock, scrapeEvery, client.New(opts...))}
}

// Scrape fetches one quote page and enqueues the extracted price.
func (s *Scraper) Scrape(ctx context.Context, ticker, topic string) error {
	params := url.Values{}
	params.Set("q", ticker)

	res, err := s.Session().Get(ctx, quoteURL, params)
	if err != nil {
		return fmt.Errorf("finance %s: %w", ticker, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("finance %s: status %d", ticker, res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 2<<20))
	if err != nil {
		return fmt.Errorf("finance %s: %w", ticker, err)
	}

	price, ok := ExtractPrice(string(body))
	if !ok {
		return fmt.Errorf("finance %s: no price on page", ticker)
	}
	return s.Push(ctx, topic, domain.Raw{
		Data:      strconv.FormatFloat(price, 'f', -1, 64),
		CreatedAt: time.Now(),
	})
}

// ExtractPrice pulls the first quote off the page HTML. The matched
// substring is parsed numerically, never evaluated.
func ExtractPrice(html string) (float64, bool) {
	m := rePrice.FindStringSubmatch(html)
	if len(m) < 3 {
		return 0, false
	}
	raw := strings.ReplaceAll(strings.TrimSpace(m[2]), ",", "")
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

func (s *Scraper) Stream(ticker, topic string) pipeline.Stream {
	return s.StartStream(s, ticker, topic)
}
