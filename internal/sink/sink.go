// Package sink moves finished records out of the pipeline: to redis,
// to the sqlite store, or to any other Sink the caller supplies.
package sink

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/sentrip/veryscrape/internal/domain"
	"github.com/sentrip/veryscrape/internal/events"
	"github.com/sentrip/veryscrape/internal/pipeline"
	"github.com/sentrip/veryscrape/internal/store"
)

// RedisKey is the list every record is pushed onto.
const RedisKey = "events"

type Sink interface {
	Emit(ctx context.Context, r domain.Record) error
	Close() error
}

// Redis pushes each record's wire form onto a redis list.
type Redis struct {
	client *redis.Client
}

func NewRedis(addr string) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (s *Redis) Emit(ctx context.Context, r domain.Record) error {
	return s.client.RPush(ctx, RedisKey, r.String()).Err()
}

func (s *Redis) Close() error { return s.client.Close() }

// Store writes records into the sqlite record store.
type Store struct {
	db *store.DB
}

func NewStore(db *store.DB) *Store { return &Store{db: db} }

func (s *Store) Emit(ctx context.Context, r domain.Record) error {
	_, err := s.db.Insert(ctx, r)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

// Run drains src into the sinks until the stream closes or ctx ends.
// Sink failures are logged and skipped; one dead sink must not stall
// the pipeline. Every drained record is announced on the hub.
func Run(ctx context.Context, src pipeline.Stream, hub *events.Hub, sinks ...Sink) error {
	for {
		r, err := src.Next(ctx)
		if err != nil {
			if err == pipeline.ErrClosed {
				return nil
			}
			return err
		}
		if hub != nil {
			hub.Publish(events.Make(events.TypeRecord, r.Source, r.Topic, ""))
		}
		for _, s := range sinks {
			if err := s.Emit(ctx, r); err != nil && ctx.Err() == nil {
				log.Printf("[sink] emit %s/%s: %v", r.Source, r.Topic, err)
			}
		}
	}
}
