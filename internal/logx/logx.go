// Package logx configures the process-wide logger: optional size-capped
// log file and a debug gate for the chattier paths.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

var debug atomic.Bool

// Setup points the stdlib logger at path (stderr when empty) and records
// the verbosity. The returned closer flushes and releases the file.
func Setup(level, path string, maxSize int64) (func() error, error) {
	debug.Store(strings.EqualFold(level, "debug"))

	if path == "" {
		return func() error { return nil }, nil
	}
	w, err := openCapped(path, maxSize)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(w)
	return func() error {
		log.SetOutput(os.Stderr)
		return w.Close()
	}, nil
}

// Debugf logs only when the level is debug.
func Debugf(format string, args ...any) {
	if debug.Load() {
		log.Printf(format, args...)
	}
}

// cappedFile truncates and restarts the file once it outgrows max.
// Losing old lines beats filling the disk on an unattended box.
type cappedFile struct {
	f    *os.File
	max  int64
	size int64
}

func openCapped(path string, max int64) (*cappedFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if max <= 0 {
		max = 10 << 20
	}
	return &cappedFile{f: f, max: max, size: info.Size()}, nil
}

func (c *cappedFile) Write(p []byte) (int, error) {
	if c.size+int64(len(p)) > c.max {
		if err := c.f.Truncate(0); err == nil {
			c.f.Seek(0, 0)
			c.size = 0
		}
	}
	n, err := c.f.Write(p)
	c.size += int64(n)
	return n, err
}

func (c *cappedFile) Close() error { return c.f.Close() }
