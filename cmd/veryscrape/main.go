// Command veryscrape runs the whole acquisition pipeline: every scraper
// in the config file, merged, cleaned and classified, drained into redis
// and/or the sqlite record store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/sentrip/veryscrape/internal/config"
	"github.com/sentrip/veryscrape/internal/events"
	"github.com/sentrip/veryscrape/internal/logx"
	"github.com/sentrip/veryscrape/internal/sink"
	"github.com/sentrip/veryscrape/internal/store"
	"github.com/sentrip/veryscrape/internal/supervisor"
)

const (
	exitOK        = 0
	exitFailed    = 1
	exitBadConfig = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		cfgPath    = flag.String("config", "config.json", "scraper config file (json or yaml)")
		initConfig = flag.Bool("init-config", false, "write an example config and exit")
		dataDir    = flag.String("data-dir", ".", "directory for the lock file and record store")
		redisHost  = flag.String("redis-host", "", "redis host for record push (empty disables)")
		redisPort  = flag.Int("redis-port", 6379, "redis port")
		storePath  = flag.String("store", "", "sqlite record store filename inside data-dir (empty disables)")
		workers    = flag.Int("workers", 0, "processing workers; -1 emits records raw")
		proxyURL   = flag.String("proxy-url", "", "proxy list endpoint for sources with use_proxies")
		logLevel   = flag.String("log-level", "info", "info or debug")
		logFile    = flag.String("log-file", "", "log file path (empty logs to stderr)")
		logMaxSize = flag.Int64("log-max-size", 10<<20, "log file size cap in bytes")
	)
	flag.Parse()

	closeLog, err := logx.Setup(*logLevel, *logFile, *logMaxSize)
	if err != nil {
		log.Printf("[main] %v", err)
		return exitFailed
	}
	defer closeLog()

	if *initConfig {
		if err := config.Save(*cfgPath); err != nil {
			log.Printf("[main] write example config: %v", err)
			return exitFailed
		}
		log.Printf("[main] wrote example config to %s", *cfgPath)
		return exitOK
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Printf("[main] data dir: %v", err)
		return exitFailed
	}
	lock := flock.New(filepath.Join(*dataDir, "veryscrape.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		log.Printf("[main] lock data dir: %v", err)
		return exitFailed
	}
	if !locked {
		log.Printf("[main] another instance holds %s", lock.Path())
		return exitFailed
	}
	defer lock.Unlock()

	cfgs, err := config.Load(*cfgPath)
	if err != nil {
		log.Printf("[main] %v", err)
		return exitBadConfig
	}

	var sinks []sink.Sink
	if *redisHost != "" {
		sinks = append(sinks, sink.NewRedis(fmt.Sprintf("%s:%d", *redisHost, *redisPort)))
	}
	if *storePath != "" {
		db, err := store.Open(filepath.Join(*dataDir, *storePath))
		if err != nil {
			log.Printf("[main] open store: %v", err)
			return exitFailed
		}
		sinks = append(sinks, sink.NewStore(db))
	}

	sup, err := supervisor.New(cfgs, supervisor.Options{
		Workers:       *workers,
		ProxyFetchURL: *proxyURL,
	})
	if err != nil {
		closeSinks(sinks)
		if errors.Is(err, config.ErrBadConfig) {
			log.Printf("[main] %v", err)
			return exitBadConfig
		}
		log.Printf("[main] start: %v", err)
		return exitFailed
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopStatus := watchStatus(sup.Hub())
	go func() {
		<-ctx.Done()
		log.Printf("[main] shutting down")
		sup.Close()
	}()

	log.Printf("[main] running %d source blocks from %s", len(cfgs), *cfgPath)
	err = sink.Run(context.Background(), sup.Stream(), sup.Hub(), sinks...)

	stopStatus()
	sup.Close()
	closeSinks(sinks)

	if err != nil {
		log.Printf("[main] drain: %v", err)
		return exitFailed
	}
	return exitOK
}

func closeSinks(sinks []sink.Sink) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			log.Printf("[main] close sink: %v", err)
		}
	}
}

// watchStatus tallies hub events and logs a per-source summary once a
// minute. The returned stop function logs a final summary.
func watchStatus(hub *events.Hub) (stop func()) {
	ch := hub.Subscribe()
	done := make(chan struct{})
	var once sync.Once

	counts := make(map[string]int64)
	report := func() {
		if len(counts) == 0 {
			return
		}
		parts := make([]string, 0, len(counts))
		for source, n := range counts {
			parts = append(parts, fmt.Sprintf("%s=%d", source, n))
		}
		sort.Strings(parts)
		log.Printf("[status] records: %s", strings.Join(parts, " "))
	}

	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-done:
				report()
				hub.Unsubscribe(ch)
				return
			case <-t.C:
				report()
			case raw, ok := <-ch:
				if !ok {
					return
				}
				var e events.Event
				if json.Unmarshal([]byte(raw), &e) != nil {
					continue
				}
				switch e.Type {
				case events.TypeRecord:
					counts[e.Source]++
				case events.TypeStarted:
					logx.Debugf("[status] started %s/%s %q", e.Source, e.Topic, e.Detail)
				}
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}
