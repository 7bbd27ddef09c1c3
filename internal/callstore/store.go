// Package callstore persists completed call records in SQLite.
package callstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/galkyn/video-calling-app/internal/calltrack"
)

// timeLayout is RFC 3339 with a fixed nine-digit fraction. RFC3339Nano
// trims trailing zeros, which breaks the TEXT ordering ORDER BY relies
// on for timestamps inside the same second; a fixed-width encoding
// keeps byte order equal to time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements calltrack.Sink on top of a single SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens or creates the call log database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create call log dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open call log: %w", err)
	}

	// WAL mode so appends from the relay don't block reporting reads.
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure call log: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS calls (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			from_id    TEXT NOT NULL,
			to_id      TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time   TEXT,
			duration   REAL
		);
		CREATE INDEX IF NOT EXISTS idx_calls_start_time ON calls(start_time DESC);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create calls table: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores one call record.
func (s *Store) Append(ctx context.Context, rec calltrack.Record) error {
	var end any
	if rec.EndTime != nil {
		end = rec.EndTime.UTC().Format(timeLayout)
	}
	var duration any
	if rec.Duration != nil {
		duration = *rec.Duration
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calls (from_id, to_id, start_time, end_time, duration)
		VALUES (?, ?, ?, ?, ?)`,
		rec.From, rec.To, rec.StartTime.UTC().Format(timeLayout), end, duration,
	)
	if err != nil {
		return fmt.Errorf("append call record: %w", err)
	}
	return nil
}

// Recent returns up to n records ordered by start time, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]calltrack.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_id, to_id, start_time, end_time, duration
		FROM calls
		ORDER BY start_time DESC, id DESC
		LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query call records: %w", err)
	}
	defer rows.Close()

	records := make([]calltrack.Record, 0, n)
	for rows.Next() {
		var (
			rec      calltrack.Record
			start    string
			end      sql.NullString
			duration sql.NullFloat64
		)
		if err := rows.Scan(&rec.From, &rec.To, &start, &end, &duration); err != nil {
			return nil, fmt.Errorf("scan call record: %w", err)
		}

		rec.StartTime, err = time.Parse(time.RFC3339Nano, start)
		if err != nil {
			return nil, fmt.Errorf("parse start_time %q: %w", start, err)
		}
		if end.Valid {
			t, err := time.Parse(time.RFC3339Nano, end.String)
			if err != nil {
				return nil, fmt.Errorf("parse end_time %q: %w", end.String, err)
			}
			rec.EndTime = &t
		}
		if duration.Valid {
			d := duration.Float64
			rec.Duration = &d
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call records: %w", err)
	}
	return records, nil
}
