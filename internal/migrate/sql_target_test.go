package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// startPostgresContainer starts a PostgreSQL container for tests and returns
// a DSN suitable for pgx stdlib. It skips the test if Docker is unavailable.
func startPostgresContainer(t *testing.T) (dsn string, terminate func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
	)
	if err != nil {
		cancel()
		t.Skipf("Failed to start PostgreSQL container: %v", err)
		return "", nil
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get host info: %v", err)
		return "", nil
	}

	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get mapped port: %v", err)
		return "", nil
	}

	dsn = fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	terminate = func() {
		_ = container.Terminate(ctx)
		cancel()
	}

	return dsn, terminate
}

func waitForPostgres(t *testing.T, dsn string) {
	deadline := time.Now().Add(45 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		db, err := sql.Open("pgx", dsn)
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				_ = db.Close()
				cancel()
				return
			}
			_ = db.Close()
		}
		cancel()
		if time.Now().After(deadline) {
			t.Fatalf("postgres not ready in time: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func TestSQLTargetVersionLifecycle(t *testing.T) {
	dsn, terminate := startPostgresContainer(t)
	defer terminate()
	waitForPostgres(t, dsn)

	target, err := NewSQLTarget(dsn)
	if err != nil {
		t.Fatalf("open target: %v", err)
	}
	defer func() { _ = target.Close() }()

	ctx := context.Background()
	if err := target.EnsureVersionTable(ctx); err != nil {
		t.Fatalf("ensure version table: %v", err)
	}
	// repeat must be a no-op
	if err := target.EnsureVersionTable(ctx); err != nil {
		t.Fatalf("second ensure: %v", err)
	}

	version, dirty, err := target.Version(ctx)
	if err != nil {
		t.Fatalf("initial version: %v", err)
	}
	if version != 0 || dirty {
		t.Fatalf("expected clean zero marker, got %d dirty=%v", version, dirty)
	}

	if err := target.SetVersion(ctx, 3, true); err != nil {
		t.Fatalf("set version: %v", err)
	}
	version, dirty, err = target.Version(ctx)
	if err != nil {
		t.Fatalf("version after set: %v", err)
	}
	if version != 3 || !dirty {
		t.Fatalf("expected dirty 3, got %d dirty=%v", version, dirty)
	}

	// the marker stays single-row across rewrites
	if err := target.SetVersion(ctx, 4, false); err != nil {
		t.Fatalf("second set: %v", err)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	var count int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count marker rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single marker row, got %d", count)
	}
}

func TestRunnerAgainstPostgres(t *testing.T) {
	dsn, terminate := startPostgresContainer(t)
	defer terminate()
	waitForPostgres(t, dsn)

	dir := t.TempDir()
	writeBody := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeBody("0001_create_items.up.sql", "CREATE TABLE items (id INT PRIMARY KEY, name TEXT NOT NULL);")
	writeBody("0001_create_items.down.sql", "DROP TABLE items;")
	writeBody("0002_add_index.up.sql", "CREATE INDEX items_name_idx ON items (name);")
	writeBody("0002_add_index.down.sql", "DROP INDEX items_name_idx;")

	target, err := NewSQLTarget(dsn)
	if err != nil {
		t.Fatalf("open target: %v", err)
	}
	defer func() { _ = target.Close() }()

	runner, err := NewRunner(EngineSQL, dir, target, testLogger())
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	ctx := context.Background()
	applied, err := runner.Up(ctx, 0)
	if err != nil {
		t.Fatalf("up: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("expected 2 applied, got %v", applied)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.ExecContext(ctx, "INSERT INTO items (id, name) VALUES (1, 'a')"); err != nil {
		t.Fatalf("migrated table unusable: %v", err)
	}

	reverted, err := runner.Down(ctx, 2)
	if err != nil {
		t.Fatalf("down: %v", err)
	}
	if len(reverted) != 2 {
		t.Fatalf("expected 2 reverted, got %v", reverted)
	}
	if _, err := db.ExecContext(ctx, "SELECT 1 FROM items"); err == nil {
		t.Fatal("items table should be gone after down")
	}

	version, dirty, err := target.Version(ctx)
	if err != nil {
		t.Fatalf("final version: %v", err)
	}
	if version != 0 || dirty {
		t.Fatalf("expected clean zero marker, got %d dirty=%v", version, dirty)
	}
}
