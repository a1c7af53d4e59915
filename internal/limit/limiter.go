// Package limit implements per-URL-pattern request budgets on top of
// golang.org/x/time/rate token buckets.
package limit

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Global is the pattern of the fallback bucket. It matches every URL and
// is always charged last, after the most specific matching rule.
const Global = "*"

// Rule describes one node of the limit tree. A node either carries a
// Limit (requests per period) or a Nested subtree consulted only when the
// node's own pattern matched. Rule order is significant: the first match
// wins, so more specific patterns must come first and Global last.
type Rule struct {
	Pattern string
	Limit   int
	Nested  []Rule
}

type node struct {
	pattern string
	bucket  *rate.Limiter
	nested  []*node
}

// Limiter matches request URLs against an ordered rule tree and reserves
// one token from the selected bucket plus the global bucket.
type Limiter struct {
	nodes  []*node
	global *rate.Limiter
	period time.Duration
}

// New compiles rules against a shared period. A bucket with limit N
// admits an initial burst of N and refills at N per period.
func New(period time.Duration, rules []Rule) *Limiter {
	l := &Limiter{period: period}
	for _, r := range rules {
		if r.Pattern == Global {
			l.global = bucketFor(r.Limit, period)
			continue
		}
		l.nodes = append(l.nodes, compile(r, period))
	}
	return l
}

func compile(r Rule, period time.Duration) *node {
	n := &node{pattern: r.Pattern}
	if len(r.Nested) > 0 {
		for _, sub := range r.Nested {
			n.nested = append(n.nested, compile(sub, period))
		}
	}
	if r.Limit > 0 {
		n.bucket = bucketFor(r.Limit, period)
	}
	return n
}

func bucketFor(limit int, period time.Duration) *rate.Limiter {
	if limit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(limit)/period.Seconds()), limit)
}

// Wait returns once capacity for exactly one request has been reserved
// from the most specific matching bucket and the global bucket. It never
// fails on its own; only ctx cancellation can make it return early.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	if l == nil {
		return nil
	}
	if b := match(l.nodes, rawURL); b != nil {
		if err := b.Wait(ctx); err != nil {
			return err
		}
	}
	if l.global != nil {
		return l.global.Wait(ctx)
	}
	return nil
}

// match walks the ordered tree and returns the bucket of the deepest
// matching node: the first node whose pattern occurs in the URL, refined
// by its subtree when a child also matches. A single request is never
// charged to two non-global buckets.
func match(nodes []*node, rawURL string) *rate.Limiter {
	for _, n := range nodes {
		if !strings.Contains(rawURL, n.pattern) {
			continue
		}
		if sub := match(n.nested, rawURL); sub != nil {
			return sub
		}
		return n.bucket
	}
	return nil
}
