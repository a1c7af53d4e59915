package events

import (
	"encoding/json"
	"testing"
)

func TestHubPublishSubscribe(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish(Make(TypeStarted, "twitter", "BTC", ""))

	for _, ch := range []chan string{a, b} {
		var e Event
		if err := json.Unmarshal([]byte(<-ch), &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if e.Type != TypeStarted || e.Source != "twitter" || e.Topic != "BTC" {
			t.Fatalf("event = %+v", e)
		}
		if e.At.IsZero() {
			t.Fatal("At not stamped")
		}
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	for i := 0; i < cap(ch)+10; i++ {
		h.Publish(Make(TypeRecord, "reddit", "GO", ""))
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffered %d, want full buffer %d", len(ch), cap(ch))
	}
}

func TestHubUnsubscribeCloses(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	h.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	h.Publish(Make(TypeStopped, "", "", "")) // must not panic on closed channel
}
