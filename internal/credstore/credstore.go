// Package credstore keeps a local record of OAuth clients issued by past
// bootstrap runs, keyed by logical client name. Registration on the server
// is not idempotent; this record is what lets re-runs converge on one
// registration instead of accumulating orphans.
package credstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one issued client. Name is unique.
type Record struct {
	Name     string
	ClientID string
	IssuedAt time.Time
}

var ErrNotFound = errors.New("credstore: no record")

// DB is a sqlite-backed credstore (modernc.org/sqlite driver, CGO-free).
// Use ":memory:" for tests.
type DB struct {
	db *sql.DB
}

func Open(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty credstore path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS issued_clients(
			name TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			issued_at TIMESTAMP NOT NULL
		);`)
	return err
}

func (s *DB) Close() error { return s.db.Close() }

// Put records the latest issued client for its name, replacing any previous
// record.
func (s *DB) Put(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issued_clients(name, client_id, issued_at)
		VALUES(?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			client_id=excluded.client_id,
			issued_at=excluded.issued_at;`,
		rec.Name, rec.ClientID, rec.IssuedAt.UTC())
	return err
}

// GetByName returns the recorded client for name, or ErrNotFound.
func (s *DB) GetByName(ctx context.Context, name string) (Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx, `
		SELECT name, client_id, issued_at FROM issued_clients WHERE name=?;`,
		name).Scan(&rec.Name, &rec.ClientID, &rec.IssuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Delete drops the record for name; deleting a missing record is a no-op.
func (s *DB) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM issued_clients WHERE name=?;`, name)
	return err
}
