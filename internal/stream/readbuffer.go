// Package stream decodes long-lived HTTP responses that carry one JSON
// object per line, the framing used by the Twitter filter firehose.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
)

var ErrClosed = errors.New("stream: closed")

// ReadBuffer frames a byte stream into newline-delimited JSON objects.
// Blank lines and lone carriage returns between objects are skipped, the
// declared charset is honored (UTF-8 default), and in-band rate-limit
// notices pause the reader for the advertised duration.
type ReadBuffer struct {
	body io.ReadCloser
	r    *bufio.Reader

	// sleep is swapped out in tests
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New wraps a response body. The charset is taken from the Content-Type
// header when present.
func New(res *http.Response) *ReadBuffer {
	var enc string
	if ct := res.Header.Get("Content-Type"); ct != "" {
		if _, params, err := mime.ParseMediaType(ct); err == nil {
			enc = params["charset"]
		}
	}
	return NewReader(res.Body, enc)
}

func NewReader(body io.ReadCloser, enc string) *ReadBuffer {
	var r io.Reader = body
	if enc != "" {
		if decoded, err := charset.NewReaderLabel(enc, body); err == nil {
			r = decoded
		}
	}
	return &ReadBuffer{
		body:  body,
		r:     bufio.NewReader(r),
		sleep: sleepCtx,
		now:   time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// limitNotice is the in-stream rate-limit message: sleep until
// (track + timestamp_ms)/1000 before reading on.
type limitNotice struct {
	Limit *struct {
		Track       int64 `json:"track"`
		TimestampMS int64 `json:"timestamp_ms"`
	} `json:"limit"`
}

// Next returns the next decoded object. It returns ErrClosed when the
// underlying stream ends, including the transient-timeout case that ends
// a firehose connection.
func (b *ReadBuffer) Next(ctx context.Context) (map[string]any, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := b.r.ReadBytes('\n')
		if err != nil {
			if len(bytes.TrimSpace(line)) == 0 {
				return nil, closeErr(err)
			}
			// final unterminated line: fall through and decode it
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if err != nil {
				return nil, closeErr(err)
			}
			continue
		}

		var obj map[string]any
		if jerr := json.Unmarshal(line, &obj); jerr != nil {
			// garbage between objects: skip, keep the stream alive
			if err != nil {
				return nil, closeErr(err)
			}
			continue
		}

		var notice limitNotice
		_ = json.Unmarshal(line, &notice)
		if notice.Limit != nil {
			until := time.Unix(0, (notice.Limit.Track+notice.Limit.TimestampMS)*int64(time.Millisecond))
			if d := until.Sub(b.now()); d > 0 {
				if serr := b.sleep(ctx, d); serr != nil {
					return nil, serr
				}
			}
			continue
		}
		return obj, nil
	}
}

func closeErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrClosed
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		// a stalled firehose ends quietly; the scraper reconnects
		return ErrClosed
	}
	return err
}

// Cancel closes the underlying body, waking any blocked read.
func (b *ReadBuffer) Cancel() {
	_ = b.body.Close()
}
