// Package text holds the pure content hooks the processor runs: per-source
// cleaners and the topic classifier. All functions here are safe to call
// from worker goroutines and idempotent on already-clean input.
package text

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/sentrip/veryscrape/internal/domain"
)

// CleanFunc rewrites raw captured content into clean text. An empty
// return drops the record.
type CleanFunc func(string) string

var (
	reURL        = regexp.MustCompile(`https?://\S+`)
	reMention    = regexp.MustCompile(`@\w+`)
	reHashtag    = regexp.MustCompile(`#(\w+)`)
	reRetweet    = regexp.MustCompile(`^(?i:rt)\s*:?\s*`)
	reMarkdown   = regexp.MustCompile("[*_~^>`]|\\[([^\\]]*)\\]\\([^)]*\\)")
	reWhitespace = regexp.MustCompile(`\s+`)
)

func collapse(s string) string {
	return strings.TrimSpace(reWhitespace.ReplaceAllString(s, " "))
}

// CleanTweet strips retweet markers, links, mentions and hashtag sigils
// from a tweet body.
func CleanTweet(s string) string {
	s = html.UnescapeString(s)
	s = reRetweet.ReplaceAllString(s, "")
	s = reURL.ReplaceAllString(s, "")
	s = reMention.ReplaceAllString(s, "")
	s = reHashtag.ReplaceAllString(s, "$1")
	return collapse(s)
}

// CleanComment normalizes a reddit comment body. Deleted and removed
// placeholders clean to empty, which drops the record downstream.
func CleanComment(s string) string {
	switch strings.TrimSpace(s) {
	case "[deleted]", "[removed]":
		return ""
	}
	s = html.UnescapeString(s)
	s = reURL.ReplaceAllString(s, "")
	s = reMarkdown.ReplaceAllString(s, "$1")
	return collapse(s)
}

// CleanArticle extracts readable article text from an HTML document.
// Non-HTML or unreadable input cleans to empty.
func CleanArticle(s string) string {
	if !strings.Contains(s, "<") {
		// already plain text (idempotence on cleaned input)
		return collapse(s)
	}
	base := &url.URL{Scheme: "http", Host: "localhost"}
	article, err := readability.FromReader(strings.NewReader(s), base)
	if err != nil {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return collapse(article.TextContent)
	}
	doc.Find("script, style, aside, figure").Remove()
	return collapse(doc.Text())
}

// CleanStock passes the already-numeric price content through.
func CleanStock(s string) string { return strings.TrimSpace(s) }

// Cleaners maps a source tag to its cleaner.
func Cleaners() map[string]CleanFunc {
	return map[string]CleanFunc{
		domain.SourceTwitter: CleanTweet,
		domain.SourceReddit:  CleanComment,
		domain.SourceBlog:    CleanArticle,
		domain.SourceArticle: CleanArticle,
		domain.SourceSpider:  CleanArticle,
		domain.SourceStock:   CleanStock,
	}
}
