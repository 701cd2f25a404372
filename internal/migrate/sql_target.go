package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// SQLTarget tracks and applies migrations on the relational engine. The
// marker lives in a single-row schema_migrations table created on first use.
type SQLTarget struct {
	db *sql.DB
}

// NewSQLTarget opens the engine using the DSN verbatim.
func NewSQLTarget(dsn string) (*SQLTarget, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sql migration target: %w", err)
	}
	return &SQLTarget{db: db}, nil
}

func (t *SQLTarget) Close() error { return t.db.Close() }

func (t *SQLTarget) EnsureVersionTable(ctx context.Context) error {
	_, err := t.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations(
			version INT8 NOT NULL,
			dirty BOOL NOT NULL
		);`)
	return err
}

func (t *SQLTarget) Version(ctx context.Context) (int, bool, error) {
	var version int
	var dirty bool
	err := t.db.QueryRowContext(ctx,
		`SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return version, dirty, nil
}

// SetVersion replaces the single marker row transactionally.
func (t *SQLTarget) SetVersion(ctx context.Context, version int, dirty bool) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations(version, dirty) VALUES($1, $2)`, version, dirty); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (t *SQLTarget) Run(ctx context.Context, statement string) error {
	_, err := t.db.ExecContext(ctx, statement)
	return err
}
