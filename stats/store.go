// Package stats persists per-queue ingestion counters in an embedded
// single-file SQLite database and formats the daily rollup message.
package stats

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // Import for register side-effects.
	log "github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS stats (
	queue_name      TEXT PRIMARY KEY,
	timestamp       TEXT NOT NULL,
	count           INTEGER NOT NULL DEFAULT 0,
	processed_table TEXT
);`

// Record is the persisted counter state of one queue.
type Record struct {
	Timestamp      string
	Count          int64
	ProcessedTable string
}

// Store is the embedded stats database. Writes from concurrent workers
// are serialized by a process mutex on top of SQLite's own file lock.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates (or reopens) the stats database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating stats directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening stats database %q: %w", path, err)
	}
	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing stats schema: %w", err)
	}

	log.WithField("path", path).Debug("opened stats store")
	return &Store{db: db}, nil
}

// Bump adds delta to the queue's counter and overwrites the timestamp
// and last-processed table. Last writer wins.
func (s *Store) Bump(queue string, delta int64, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var now = time.Now().Format("2006-01-02 15:04:05")
	var _, err = s.db.Exec(`
		INSERT INTO stats (queue_name, timestamp, count, processed_table)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(queue_name) DO UPDATE SET
			count = count + excluded.count,
			timestamp = excluded.timestamp,
			processed_table = excluded.processed_table`,
		queue, now, delta, table)
	if err != nil {
		return fmt.Errorf("bumping stats for %q: %w", queue, err)
	}
	return nil
}

// LoadAll returns the counters of every queue seen since the last Clear.
func (s *Store) LoadAll() (map[string]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT queue_name, timestamp, count, processed_table FROM stats`)
	if err != nil {
		return nil, fmt.Errorf("loading stats: %w", err)
	}
	defer rows.Close()

	var out = make(map[string]Record)
	for rows.Next() {
		var queue string
		var rec Record
		var table sql.NullString
		if err = rows.Scan(&queue, &rec.Timestamp, &rec.Count, &table); err != nil {
			return nil, fmt.Errorf("scanning stats row: %w", err)
		}
		rec.ProcessedTable = table.String
		out[queue] = rec
	}
	return out, rows.Err()
}

// Clear zeroes the store after a successful rollup emission.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM stats`); err != nil {
		return fmt.Errorf("clearing stats: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
