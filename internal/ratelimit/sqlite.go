package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS rate_limits (
	key TEXT PRIMARY KEY,
	count INTEGER NOT NULL,
	reset_at INTEGER NOT NULL
);
`

const purgeTimeout = 30 * time.Second

// SQLiteStore keeps counters in a sqlite file so several processes on one
// host can share a limit. Expired rows are purged once per window.
type SQLiteStore struct {
	db          *sql.DB
	limit       int
	length      time.Duration
	now         func() time.Time
	purgeTicker *time.Ticker
	stopChan    chan struct{}
	closeOnce   sync.Once
}

var (
	_ Store         = (*SQLiteStore)(nil)
	_ StatsReporter = (*SQLiteStore)(nil)
)

func NewSQLiteStore(path string, limit int, length time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", immediateDSN(path))
	if err != nil {
		return nil, fmt.Errorf("ratelimit: open database: %w", err)
	}
	// one writer keeps read-modify-write transactions serialized in-process
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", createTableSQL} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("ratelimit: init database: %w", err)
		}
	}

	limit, length = normalize(limit, length)
	s := &SQLiteStore{
		db:       db,
		limit:    limit,
		length:   length,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	s.purgeTicker = time.NewTicker(length)
	go s.purgeLoop(s.purgeTicker.C)

	return s, nil
}

// immediateDSN makes every transaction take the write lock on BEGIN, so a
// read followed by an upsert cannot lose a race to another process.
func immediateDSN(path string) string {
	if strings.Contains(path, "?") {
		return path + "&_txlock=immediate"
	}
	return path + "?_txlock=immediate"
}

func (s *SQLiteStore) Allow(ctx context.Context, key string) (Decision, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: begin: %w", err)
	}
	defer tx.Rollback()

	current, err := s.load(ctx, tx, key)
	if err != nil {
		return Decision{}, err
	}

	next, decision := current.hit(s.now(), s.limit, s.length)

	query, args, err := sq.Insert("rate_limits").
		Columns("key", "count", "reset_at").
		Values(key, next.count, next.resetAt.UnixMilli()).
		Suffix("ON CONFLICT(key) DO UPDATE SET count = excluded.count, reset_at = excluded.reset_at").
		ToSql()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: build upsert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return Decision{}, fmt.Errorf("ratelimit: save %q: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return Decision{}, fmt.Errorf("ratelimit: commit: %w", err)
	}
	return decision, nil
}

func (s *SQLiteStore) load(ctx context.Context, tx *sql.Tx, key string) (window, error) {
	query, args, err := sq.Select("count", "reset_at").
		From("rate_limits").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return window{}, fmt.Errorf("ratelimit: build select: %w", err)
	}

	var count int
	var resetAt int64
	err = tx.QueryRowContext(ctx, query, args...).Scan(&count, &resetAt)
	if errors.Is(err, sql.ErrNoRows) {
		return window{}, nil
	}
	if err != nil {
		return window{}, fmt.Errorf("ratelimit: load %q: %w", key, err)
	}
	return window{count: count, resetAt: time.UnixMilli(resetAt)}, nil
}

// Purge deletes windows that have already expired.
func (s *SQLiteStore) Purge(ctx context.Context) (int64, error) {
	query, args, err := sq.Delete("rate_limits").
		Where(sq.LtOrEq{"reset_at": s.now().UnixMilli()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: build purge: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("ratelimit: purge: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) purgeLoop(ticks <-chan time.Time) {
	for {
		select {
		case <-ticks:
			ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
			// a failed purge is retried on the next tick
			_, _ = s.Purge(ctx)
			cancel()
		case <-s.stopChan:
			return
		}
	}
}

func (s *SQLiteStore) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"limit":  s.limit,
		"window": s.length.String(),
	}

	query, args, err := sq.Select("COUNT(*)").From("rate_limits").ToSql()
	if err != nil {
		stats["error"] = err.Error()
		return stats
	}
	var tracked int
	if err := s.db.QueryRow(query, args...).Scan(&tracked); err != nil {
		stats["error"] = err.Error()
		return stats
	}
	stats["tracked_keys"] = tracked
	return stats
}

func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.purgeTicker.Stop()
		close(s.stopChan)
		err = s.db.Close()
	})
	return err
}
