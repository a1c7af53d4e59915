// Package events carries pipeline status notifications to any number of
// in-process subscribers without blocking the publisher.
package events

import (
	"encoding/json"
	"time"
)

// Event types published by the pipeline.
const (
	TypeRecord    = "record"     // one record emitted downstream
	TypeScrapeErr = "scrape_err" // a scrape pass failed
	TypeStarted   = "started"    // a source/topic stream came up
	TypeStopped   = "stopped"    // a source/topic stream shut down
)

type Event struct {
	Type   string    `json:"type"`
	At     time.Time `json:"at"`
	Source string    `json:"source,omitempty"`
	Topic  string    `json:"topic,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// Make builds the wire form of one status event.
func Make(typ, source, topic, detail string) string {
	e := Event{
		Type:   typ,
		At:     time.Now().UTC(),
		Source: source,
		Topic:  topic,
		Detail: detail,
	}
	b, _ := json.Marshal(e)
	return string(b)
}
