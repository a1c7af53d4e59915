package config

import (
	"fmt"
	"strings"

	"github.com/sentrip/veryscrape/internal/domain"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// authArity is the number of bar-delimited auth components each source
// needs: twitter an OAuth1 quad, reddit an OAuth2 pair, blog search an
// API key, the rest nothing.
var authArity = map[string]int{
	domain.SourceTwitter: 4,
	domain.SourceReddit:  2,
	domain.SourceBlog:    1,
	domain.SourceArticle: 0,
	domain.SourceStock:   0,
	domain.SourceSpider:  0,
}

// Validate checks every configured scraper block. Errors here are fatal
// before any scraper starts; warnings are logged and ignored.
func Validate(scrapers []Scraper) Validation {
	var res Validation

	if len(scrapers) == 0 {
		res.addErr("no sources configured")
		return res
	}

	for _, sc := range scrapers {
		want, known := authArity[sc.Source]
		if !known {
			res.addErr("unknown source %q", sc.Source)
			continue
		}
		if len(sc.Auth) != want {
			res.addErr("%s: auth needs %d components, got %d", sc.Source, want, len(sc.Auth))
		}
		for i, component := range sc.Auth {
			if strings.TrimSpace(component) == "" {
				res.addErr("%s: auth component %d is empty", sc.Source, i+1)
			}
		}
		if len(sc.Topics) == 0 {
			res.addErr("%s: no topics configured", sc.Source)
		}
		for topic, queries := range sc.Topics {
			if topic == domain.TopicClassify {
				res.addErr("%s: topic %q is reserved", sc.Source, topic)
			}
			if len(queries) == 0 {
				res.addWarn("%s: topic %s has no queries", sc.Source, topic)
			}
		}
	}
	return res
}
