// Package store provides the SQLite arrival journal for livefeed.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/abelbrown/livefeed/internal/feed"
	_ "modernc.org/sqlite"
)

// Journal records every item the feed admits. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Journal struct {
	db *sql.DB
	mu sync.RWMutex
}

// Arrival is one journaled item.
type Arrival struct {
	Item      feed.Item
	FirstSeen time.Time
	LastSeen  time.Time
	SeenCount int // admissions, including re-admissions after a reset
}

// Open creates a Journal at dbPath, creating tables if they don't exist.
// Uses WAL mode for file-based DBs.
func Open(dbPath string) (*Journal, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// shared cache so every pooled connection sees the same database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	j := &Journal{db: db}
	if err := j.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return j, nil
}

func (j *Journal) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS arrivals (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		price_eur REAL,
		location TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL,
		seen_count INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_arrivals_first_seen ON arrivals(first_seen DESC);
	`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.db.Close()
}

// RecordArrivals stores items seen at at. An id already journaled keeps its
// first_seen; its last_seen and seen_count are updated. Runs in one
// transaction.
func (j *Journal) RecordArrivals(ctx context.Context, items []feed.Item, at time.Time) error {
	_, err := j.Record(ctx, items, at)
	return err
}

// Record is RecordArrivals that also returns how many ids were new.
func (j *Journal) Record(ctx context.Context, items []feed.Item, at time.Time) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	insert, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO arrivals (
			id, title, url, price_eur, location, payload, first_seen, last_seen, seen_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
	`)
	if err != nil {
		return 0, err
	}
	defer insert.Close()

	touch, err := tx.PrepareContext(ctx, `
		UPDATE arrivals SET last_seen = ?, seen_count = seen_count + 1 WHERE id = ?
	`)
	if err != nil {
		return 0, err
	}
	defer touch.Close()

	at = at.UTC()
	newCount := 0
	for _, it := range items {
		payload, err := json.Marshal(it)
		if err != nil {
			return 0, fmt.Errorf("encode %s: %w", it.ID, err)
		}
		res, err := insert.ExecContext(ctx, it.ID, it.Title, it.URL, nullPrice(it.PriceEUR), it.Location, string(payload), at, at)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", it.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		if affected > 0 {
			newCount++
			continue
		}
		if _, err := touch.ExecContext(ctx, at, it.ID); err != nil {
			return 0, fmt.Errorf("touch %s: %w", it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return newCount, nil
}

// Recent returns up to limit arrivals, newest first_seen first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Arrival, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.queryArrivals(ctx, `
		SELECT payload, first_seen, last_seen, seen_count
		FROM arrivals
		ORDER BY first_seen DESC, rowid DESC
		LIMIT ?
	`, limit)
}

// Since returns arrivals first seen after t, newest first.
func (j *Journal) Since(ctx context.Context, t time.Time) ([]Arrival, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.queryArrivals(ctx, `
		SELECT payload, first_seen, last_seen, seen_count
		FROM arrivals
		WHERE first_seen > ?
		ORDER BY first_seen DESC, rowid DESC
	`, t.UTC())
}

// Count returns the number of journaled ids.
func (j *Journal) Count(ctx context.Context) (int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var n int
	err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM arrivals").Scan(&n)
	return n, err
}

// queryArrivals runs query and scans the rows. Caller must hold j.mu.
func (j *Journal) queryArrivals(ctx context.Context, query string, args ...any) ([]Arrival, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Arrival
	for rows.Next() {
		var (
			a       Arrival
			payload string
		)
		if err := rows.Scan(&payload, &a.FirstSeen, &a.LastSeen, &a.SeenCount); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &a.Item); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// nullPrice stores a missing price as NULL.
func nullPrice(p float64) any {
	if p == 0 {
		return nil
	}
	return p
}
