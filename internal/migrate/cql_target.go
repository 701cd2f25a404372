package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

// CQLTarget tracks and applies migrations inside a keyspace on the NoSQL
// engine. The keyspace itself must already exist (the provisioner ensures it
// earlier in the pipeline).
type CQLTarget struct {
	session  *gocql.Session
	keyspace string
}

func NewCQLTarget(hosts []string, keyspace string) (*CQLTarget, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Timeout = 30 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.Consistency = gocql.Quorum
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("open cql migration target: %w", err)
	}
	return &CQLTarget{session: session, keyspace: keyspace}, nil
}

func (t *CQLTarget) Close() error {
	t.session.Close()
	return nil
}

func (t *CQLTarget) EnsureVersionTable(ctx context.Context) error {
	// Single-partition marker row; part is always 0.
	return t.session.Query(`
		CREATE TABLE IF NOT EXISTS schema_migrations(
			part int,
			version int,
			dirty boolean,
			PRIMARY KEY (part)
		)`).WithContext(ctx).Exec()
}

func (t *CQLTarget) Version(ctx context.Context) (int, bool, error) {
	var version int
	var dirty bool
	err := t.session.Query(`SELECT version, dirty FROM schema_migrations WHERE part = 0`).
		WithContext(ctx).Scan(&version, &dirty)
	if errors.Is(err, gocql.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return version, dirty, nil
}

func (t *CQLTarget) SetVersion(ctx context.Context, version int, dirty bool) error {
	// CQL inserts are upserts; one statement replaces the marker.
	return t.session.Query(`INSERT INTO schema_migrations(part, version, dirty) VALUES (0, ?, ?)`,
		version, dirty).WithContext(ctx).Exec()
}

func (t *CQLTarget) Run(ctx context.Context, statement string) error {
	return t.session.Query(statement).WithContext(ctx).Exec()
}
