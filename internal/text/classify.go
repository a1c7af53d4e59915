package text

import (
	"sort"
	"strings"
)

// ClassifyFunc assigns a topic to content given the candidate topics and
// their query strings. Implementations may be swapped for a model-backed
// classifier; the contract is a plain text-in, topic-out function.
type ClassifyFunc func(content string, topics map[string][]string) string

// Classify is the reference classifier: the first topic (in map iteration
// order broken by name for determinism) with a query substring present in
// the content wins. No match returns "".
func Classify(content string, topics map[string][]string) string {
	lower := strings.ToLower(content)
	for _, topic := range sortedKeys(topics) {
		for _, q := range topics[topic] {
			if q == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(q)) {
				return topic
			}
		}
	}
	return ""
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
