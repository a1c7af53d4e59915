// Package config loads and validates the scraper configuration: one
// block per source, one auth string per account, topics mapped to their
// search queries.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sentrip/veryscrape/internal/domain"
	"gopkg.in/yaml.v3"
)

// ErrBadConfig wraps every configuration failure so callers can exit
// with the config-error status.
var ErrBadConfig = errors.New("bad config")

// Scraper is one configured source account: which source to run, its
// bar-delimited auth components and the topic -> queries map it tracks.
type Scraper struct {
	Source     string
	Auth       []string
	UseProxies bool
	Topics     map[string][]string
}

// rawFile is the on-disk shape:
//
//	{ "<source>": { "<auth|bar|delimited>": { "use_proxies": bool,
//	                                          "<topic>": ["query", ...] } } }
type rawFile map[string]map[string]map[string]any

// Load reads the config at path, JSON or YAML by extension, and returns
// one Scraper per configured (source, auth) block. The result is
// validated; any validation error fails the load.
func Load(path string) ([]Scraper, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadConfig, err)
	}

	var raw rawFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &raw)
	default:
		err = json.Unmarshal(b, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrBadConfig, path, err)
	}

	scrapers := parse(raw)
	if v := Validate(scrapers); !v.OK() {
		return nil, fmt.Errorf("%w: %s", ErrBadConfig, strings.Join(v.Errors, "; "))
	}
	return scrapers, nil
}

func parse(raw rawFile) []Scraper {
	var out []Scraper
	for _, source := range sortedKeys(raw) {
		accounts := raw[source]
		for _, auth := range sortedKeys(accounts) {
			block := accounts[auth]
			sc := Scraper{
				Source: source,
				Topics: make(map[string][]string),
			}
			if auth != "" {
				sc.Auth = strings.Split(auth, "|")
			}
			for key, val := range block {
				if key == "use_proxies" {
					if b, ok := val.(bool); ok {
						sc.UseProxies = b
					}
					continue
				}
				sc.Topics[key] = toStrings(val)
			}
			out = append(out, sc)
		}
	}
	return out
}

// toStrings coerces a decoded topic value into its query list. JSON and
// YAML both hand back []any for lists.
func toStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Save writes an example config to path so a fresh install has a file
// to edit. JSON only; YAML users convert by hand.
func Save(path string) error {
	example := rawFile{
		domain.SourceTwitter: {
			"consumer-key|consumer-secret|token|token-secret": {
				"use_proxies": false,
				"BTC":         []any{"bitcoin"},
			},
		},
		domain.SourceReddit: {
			"client-id|keyring:reddit-secret": {
				"BTC": []any{"bitcoin"},
			},
		},
		domain.SourceArticle: {
			"": {
				"use_proxies": true,
				"BTC":         []any{"bitcoin"},
			},
		},
	}
	b, err := json.MarshalIndent(example, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
