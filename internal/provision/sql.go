package provision

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// SQL provisions databases, users and cluster settings on the relational
// engine over its SQL administrative endpoint.
type SQL struct {
	db  *sql.DB
	log *slog.Logger
}

// NewSQL opens the admin connection. The DSN is used verbatim.
func NewSQL(dsn string, log *slog.Logger) (*SQL, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sql admin connection: %w", err)
	}
	return &SQL{db: db, log: log}, nil
}

func (s *SQL) Close() error { return s.db.Close() }

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// EnsureDatabase creates the database if absent.
func (s *SQL) EnsureDatabase(ctx context.Context, name string) error {
	q := fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, quoteIdent(name))
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return wrap("database "+name, err)
	}
	s.log.Info("database ensured", "name", name)
	return nil
}

// EnsureUser creates the user if absent and grants it the database. The
// grant is applied unconditionally; it is a no-op when already present.
func (s *SQL) EnsureUser(ctx context.Context, user, password, database string) error {
	q := fmt.Sprintf(`CREATE USER IF NOT EXISTS %s`, quoteIdent(user))
	if password != "" {
		q += fmt.Sprintf(` WITH PASSWORD '%s'`, strings.ReplaceAll(password, "'", "''"))
	}
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return wrap("user "+user, err)
	}
	grant := fmt.Sprintf(`GRANT ALL ON DATABASE %s TO %s`, quoteIdent(database), quoteIdent(user))
	if _, err := s.db.ExecContext(ctx, grant); err != nil {
		return wrap("grant on "+database, err)
	}
	s.log.Info("user ensured", "name", user, "database", database)
	return nil
}

// EnableRangefeeds toggles the cluster setting that changefeeds depend on.
// Setting it repeatedly is harmless.
func (s *SQL) EnableRangefeeds(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `SET CLUSTER SETTING kv.rangefeed.enabled = true`); err != nil {
		return wrap("cluster setting kv.rangefeed.enabled", err)
	}
	s.log.Info("rangefeeds enabled")
	return nil
}

// quoteIdent double-quotes an identifier, escaping embedded quotes. DDL
// statements cannot take identifiers as placeholders.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
