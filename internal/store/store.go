// Package store persists emitted records in sqlite. Inserts are
// deduplicated on a content fingerprint so replays after a restart do
// not double-store.
package store

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sentrip/veryscrape/internal/domain"
	_ "modernc.org/sqlite"
)

type DB struct {
	Pool *sql.DB
}

func Open(path string) (*DB, error) {
	// modernc sqlite uses DSN like: file:foo.db?_pragma=busy_timeout(5000)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)

	pool, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	pool.SetMaxOpenConns(1) // sqlite typically wants 1 writer
	pool.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}

	if err := Migrate(pool); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() error {
	if d == nil || d.Pool == nil {
		return nil
	}
	return d.Pool.Close()
}

func Migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}
	if v >= 1 {
		return tx.Commit()
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS records (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source TEXT NOT NULL,
  topic TEXT NOT NULL,
  content TEXT NOT NULL,
  created_at TEXT NOT NULL,
  fingerprint TEXT NOT NULL
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE UNIQUE INDEX IF NOT EXISTS idx_records_fingerprint
ON records(fingerprint);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_records_topic_created
ON records(topic, created_at);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`PRAGMA user_version = 1;`); err != nil {
		return err
	}
	return tx.Commit()
}

// Fingerprint identifies a record for insert dedup: same source, topic
// and content collapse to one row regardless of arrival time.
func Fingerprint(r domain.Record) string {
	sum := md5.Sum([]byte(r.Source + "|" + r.Topic + "|" + r.Content))
	return hex.EncodeToString(sum[:])
}

// Insert stores one record, ignoring duplicates. Reports whether a new
// row was added.
func (d *DB) Insert(ctx context.Context, r domain.Record) (added bool, err error) {
	res, err := d.Pool.ExecContext(ctx, `
INSERT OR IGNORE INTO records (source, topic, content, created_at, fingerprint)
VALUES (?, ?, ?, ?, ?);`,
		r.Source, r.Topic, r.Content, r.CreatedAt.UTC().Format(time.RFC3339), Fingerprint(r),
	)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListOpts narrows List output. Zero values mean no filter and a
// default limit.
type ListOpts struct {
	Topic  string
	Source string
	Limit  int
}

// List returns stored records, newest first.
func (d *DB) List(ctx context.Context, opts ListOpts) ([]domain.Record, error) {
	if opts.Limit <= 0 || opts.Limit > 10000 {
		opts.Limit = 1000
	}

	where, args := "", []any{}
	switch {
	case opts.Topic != "" && opts.Source != "":
		where = "WHERE topic = ? AND source = ?"
		args = append(args, opts.Topic, opts.Source)
	case opts.Topic != "":
		where = "WHERE topic = ?"
		args = append(args, opts.Topic)
	case opts.Source != "":
		where = "WHERE source = ?"
		args = append(args, opts.Source)
	}
	args = append(args, opts.Limit)

	rows, err := d.Pool.QueryContext(ctx, fmt.Sprintf(`
SELECT source, topic, content, created_at
FROM records
%s
ORDER BY created_at DESC
LIMIT ?;`, where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var r domain.Record
		var created string
		if err := rows.Scan(&r.Source, &r.Topic, &r.Content, &created); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CleanupOld drops records older than the retention window.
func (d *DB) CleanupOld(ctx context.Context, keep time.Duration) (deleted int64, err error) {
	cutoff := time.Now().Add(-keep).UTC().Format(time.RFC3339)
	res, err := d.Pool.ExecContext(ctx, `DELETE FROM records WHERE created_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup old records: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
