package domain

import (
	"fmt"
	"time"
)

// TopicClassify marks a record whose topic has not been decided yet. The
// processor replaces it before emission; it must never reach a consumer.
const TopicClassify = "__classify__"

const (
	SourceTwitter = "twitter"
	SourceReddit  = "reddit"
	SourceBlog    = "blog"
	SourceArticle = "article"
	SourceStock   = "stock"
	SourceSpider  = "spider"
)

var knownSources = map[string]bool{
	SourceTwitter: true,
	SourceReddit:  true,
	SourceBlog:    true,
	SourceArticle: true,
	SourceStock:   true,
	SourceSpider:  true,
}

func KnownSource(s string) bool { return knownSources[s] }

// Record is the unit of emission. It is never mutated after creation;
// the processor builds a new Record when it rewrites content or topic.
type Record struct {
	Content   string
	Topic     string
	Source    string
	CreatedAt time.Time
}

func (r Record) String() string {
	return fmt.Sprintf("%s|%s|%d|%s", r.Source, r.Topic, r.CreatedAt.Unix(), r.Content)
}

// Raw is a payload as a scraper captured it, before cleaning and
// deduplication. CreatedAt is the source-supplied event time when the
// source provides one, otherwise the capture time.
type Raw struct {
	Data      string
	CreatedAt time.Time
}
