// Package pipeline contains the composition primitives between scrapers
// and consumers: the deduplicating generator, fan-in merger, time-window
// sorter and the cleaning/classifying processor. Every stage implements
// Stream so stages nest freely.
package pipeline

import (
	"context"
	"errors"

	"github.com/sentrip/veryscrape/internal/domain"
)

// ErrClosed is returned by Next after a stage has been cancelled or its
// upstream ended.
var ErrClosed = errors.New("pipeline: closed")

// Stream is a cancellable record iterator. Next may block on ctx; Cancel
// is idempotent and makes any pending and subsequent Next return
// promptly.
type Stream interface {
	Next(ctx context.Context) (domain.Record, error)
	Cancel()
}
