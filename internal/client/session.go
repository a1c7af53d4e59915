// Package client provides the Session used by every scraper: a keep-alive
// HTTP client that layers rate limiting, user-agent rotation, proxy
// injection and OAuth signing over net/http.
package client

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sentrip/veryscrape/internal/limit"
	"github.com/sentrip/veryscrape/internal/proxy"
)

const DefaultTimeout = 10 * time.Second

type proxyKey struct{}

// Session owns one HTTP client and the auth/limit/proxy state attached to
// it. Sessions are single-owner: one scraper per session, created before
// its first request and closed on shutdown.
type Session struct {
	hc      *http.Client
	limiter *limit.Limiter
	proxies *proxy.Pool
	base    *url.URL

	userAgent string // pinned when persistUA
	persistUA bool

	oauth1 *OAuth1
	oauth2 *TokenSource
}

type Option func(*Session)

// WithBaseURL makes relative request URLs resolve against base.
func WithBaseURL(base string) Option {
	return func(s *Session) {
		if u, err := url.Parse(base); err == nil {
			s.base = u
		}
	}
}

func WithRateLimits(l *limit.Limiter) Option {
	return func(s *Session) { s.limiter = l }
}

func WithProxyPool(p *proxy.Pool) Option {
	return func(s *Session) { s.proxies = p }
}

// WithPersistentUserAgent pins one random user agent for the session
// lifetime instead of rotating per request.
func WithPersistentUserAgent() Option {
	return func(s *Session) { s.persistUA = true }
}

func WithOAuth1(consumerKey, consumerSecret, token, tokenSecret string) Option {
	return func(s *Session) {
		s.oauth1 = &OAuth1{
			ConsumerKey:    consumerKey,
			ConsumerSecret: consumerSecret,
			Token:          token,
			TokenSecret:    tokenSecret,
		}
	}
}

func WithOAuth2(clientID, secret, tokenURL string) Option {
	return func(s *Session) {
		s.oauth2 = NewTokenSource(clientID, secret, tokenURL, &http.Client{Timeout: DefaultTimeout})
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Session) { s.hc.Timeout = d }
}

func New(opts ...Option) *Session {
	s := &Session{
		hc: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				Proxy:               proxyFromContext,
				MaxIdleConnsPerHost: 8,
			},
		},
		userAgent: RandomUserAgent(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// proxyFromContext routes a request through the proxy its context
// carries, if any. Kept on the transport so one keep-alive client can
// serve per-request proxies.
func proxyFromContext(r *http.Request) (*url.URL, error) {
	if u, ok := r.Context().Value(proxyKey{}).(*url.URL); ok {
		return u, nil
	}
	return nil, nil
}

func (s *Session) Get(ctx context.Context, rawURL string, params url.Values) (*http.Response, error) {
	return s.Request(ctx, http.MethodGet, rawURL, params, nil)
}

func (s *Session) Post(ctx context.Context, rawURL string, params url.Values, body io.Reader) (*http.Response, error) {
	return s.Request(ctx, http.MethodPost, rawURL, params, body)
}

// Request performs one HTTP request through the session's full stack:
// rate limiter, user agent, proxy, OAuth, base-URL resolution. Transport
// errors propagate; status codes are never turned into errors here.
func (s *Session) Request(ctx context.Context, method, rawURL string, params url.Values, body io.Reader) (*http.Response, error) {
	target, err := s.resolve(rawURL)
	if err != nil {
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, target.String()); err != nil {
			return nil, err
		}
	}

	if params == nil {
		params = url.Values{}
	}
	if s.oauth1 != nil {
		params = s.oauth1.Sign(method, target.String(), params)
	}
	if len(params) > 0 {
		q := target.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Set(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	if s.proxies != nil {
		p, err := s.proxies.Get(ctx, target.Scheme)
		if err != nil {
			return nil, err
		}
		ctx = context.WithValue(ctx, proxyKey{}, p.URL())
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}

	ua := s.userAgent
	if !s.persistUA {
		ua = RandomUserAgent()
	}
	req.Header.Set("User-Agent", ua)

	if s.oauth2 != nil {
		tok, err := s.oauth2.Token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "bearer "+tok)
	}

	res, err := s.hc.Do(req)
	if err != nil {
		return nil, err
	}
	if s.oauth2 != nil && (res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden) {
		// force a refresh on the next request; this one is the caller's
		// problem to retry on its scrape cycle
		s.oauth2.Invalidate()
	}
	return res, nil
}

func (s *Session) resolve(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() && s.base != nil {
		return s.base.ResolveReference(u), nil
	}
	return u, nil
}

// Close releases idle connections. Sessions hold no other resources.
func (s *Session) Close() {
	s.hc.CloseIdleConnections()
}
