package scrape

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sentrip/veryscrape/internal/client"
	"github.com/sentrip/veryscrape/internal/domain"
	"github.com/sentrip/veryscrape/internal/queue"
	"golang.org/x/sync/errgroup"
)

// bareDomainSuffixes reject front-page URLs that carry no article.
var bareDomainSuffixes = []string{".com/", ".org/", ".edu/", ".gov/", ".net/", ".biz/"}

// blockedHostFragments reject aggregator hosts whose pages are navigation,
// not content.
var blockedHostFragments = []string{"google.", "blogger.", "youtube.", "googlenewsblog."}

// CleanURLs filters a seed-URL list down to fetchable article candidates:
// absolute http(s) URLs that are neither bare domains nor blocked hosts.
// Order is preserved and duplicates removed.
func CleanURLs(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	var out []string
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if !KeepURL(u) || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// KeepURL reports whether a single discovered URL survives the filter.
func KeepURL(u string) bool {
	if !strings.HasPrefix(u, "http") {
		return false
	}
	for _, frag := range blockedHostFragments {
		if strings.Contains(u, frag) {
			return false
		}
	}
	// treat "http://site.com" and "http://site.com/" alike
	withSlash := u
	if !strings.HasSuffix(withSlash, "/") {
		withSlash += "/"
	}
	for _, suffix := range bareDomainSuffixes {
		if strings.HasSuffix(withSlash, suffix) {
			return false
		}
	}
	return true
}

// ExtractHrefs collects every anchor href in an HTML document, resolved
// against base when relative.
func ExtractHrefs(r io.Reader, base *url.URL) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		if base != nil {
			if ref, err := url.Parse(href); err == nil {
				href = base.ResolveReference(ref).String()
			}
		}
		hrefs = append(hrefs, href)
	})
	return hrefs, nil
}

// downloadConcurrency bounds the parallel fetches of one seed batch.
const downloadConcurrency = 20

// DownloadURLs fetches each seed URL through the session and enqueues
// successful bodies as raw payloads. Shared by the blog-search and
// news-search scrapers; failures are logged at most and skipped, the
// next scrape cycle rediscovers anything transiently down.
func DownloadURLs(ctx context.Context, sess *client.Session, source string, seeds []domain.Raw, q *queue.Queue) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadConcurrency)
	for _, seed := range seeds {
		seed := seed
		g.Go(func() error {
			body, err := fetchBody(ctx, sess, seed.Data)
			if err != nil {
				log.Printf("[%s] download %s: %v", source, seed.Data, err)
				return nil // best effort, keep the batch going
			}
			created := seed.CreatedAt
			if created.IsZero() {
				created = time.Now()
			}
			return q.Put(ctx, domain.Raw{Data: body, CreatedAt: created})
		})
	}
	return g.Wait()
}

func fetchBody(ctx context.Context, sess *client.Session, rawURL string) (string, error) {
	res, err := sess.Get(ctx, rawURL, nil)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", &StatusError{URL: rawURL, Code: res.StatusCode}
	}
	b, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// StatusError reports a non-200 response from a content fetch.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Code)
}
