package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Target applies statement bodies and tracks the version marker for one
// engine. The marker's dirty flag is set before a body executes and cleared
// after, so a crash mid-migration is observable on the next run.
type Target interface {
	EnsureVersionTable(ctx context.Context) error
	// Version returns the recorded version (0 when none) and the dirty flag.
	Version(ctx context.Context) (version int, dirty bool, err error)
	SetVersion(ctx context.Context, version int, dirty bool) error
	Run(ctx context.Context, statement string) error
	Close() error
}

// DirtyError blocks all automatic migration until the operator forces the
// marker to a known-good version.
type DirtyError struct {
	Version int
}

func (e *DirtyError) Error() string {
	return fmt.Sprintf("migration state is dirty at version %d: a previous run did not complete; resolve manually and use force", e.Version)
}

// StatementError carries the failing migration's identity alongside the
// engine's error.
type StatementError struct {
	Version int
	File    string
	Err     error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("migration %d (%s) failed: %v", e.Version, e.File, e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }

// Runner applies a catalog of migrations to a target in version order.
type Runner struct {
	engine  Engine
	catalog *Catalog
	target  Target
	log     *slog.Logger
}

func NewRunner(engine Engine, dir string, target Target, log *slog.Logger) (*Runner, error) {
	catalog, err := LoadCatalog(dir, engine)
	if err != nil {
		return nil, err
	}
	return &Runner{engine: engine, catalog: catalog, target: target, log: log}, nil
}

// Catalog exposes the loaded catalog for inspection.
func (r *Runner) Catalog() *Catalog { return r.catalog }

// Up applies every unapplied migration in ascending order and returns the
// versions applied. steps > 0 holds back that many catalog entries from the
// head: steps=1 stages the schema one version behind the latest. Each
// success is recorded before the next migration starts.
func (r *Runner) Up(ctx context.Context, steps int) ([]int, error) {
	cur, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}

	limit := r.catalog.Head()
	if steps > 0 {
		all := r.catalog.All()
		if steps >= len(all) {
			return nil, nil
		}
		limit = all[len(all)-1-steps].Version
	}

	var applied []int
	for _, m := range r.catalog.All() {
		if m.Version <= cur || m.Version > limit {
			continue
		}
		body, err := m.ReadUp()
		if err != nil {
			return applied, err
		}
		if err := r.apply(ctx, m.Version, m.UpPath, body); err != nil {
			return applied, err
		}
		applied = append(applied, m.Version)
		r.log.Info("migration applied", "engine", string(r.engine), "version", m.Version, "label", m.Label)
	}
	if len(applied) == 0 {
		r.log.Info("no migrations to apply", "engine", string(r.engine), "version", cur)
	}
	return applied, nil
}

// Down reverts the steps most recently applied migrations in descending
// order (steps < 1 means one). Each reverted version moves the marker to its
// predecessor before the next revert starts.
func (r *Runner) Down(ctx context.Context, steps int) ([]int, error) {
	cur, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	if steps < 1 {
		steps = 1
	}

	all := r.catalog.All()
	var reverted []int
	for i := len(all) - 1; i >= 0 && steps > 0; i-- {
		m := all[i]
		if m.Version > cur {
			continue
		}
		body, err := m.ReadDown()
		if err != nil {
			return reverted, err
		}
		prev := 0
		if i > 0 {
			prev = all[i-1].Version
		}
		if err := r.target.SetVersion(ctx, m.Version, true); err != nil {
			return reverted, err
		}
		for _, stmt := range splitStatements(body) {
			if err := r.target.Run(ctx, stmt); err != nil {
				return reverted, &StatementError{Version: m.Version, File: m.DownPath, Err: err}
			}
		}
		if err := r.target.SetVersion(ctx, prev, false); err != nil {
			return reverted, err
		}
		reverted = append(reverted, m.Version)
		r.log.Info("migration reverted", "engine", string(r.engine), "version", m.Version, "label", m.Label)
		steps--
	}
	return reverted, nil
}

// Force overwrites the version marker without executing any statement body.
// The target version must exist in the catalog (0 resets to a clean slate);
// pointing the marker past the real catalog is refused.
func (r *Runner) Force(ctx context.Context, version int) error {
	if version != 0 && !r.catalog.Has(version) {
		return fmt.Errorf("version %d is not in the catalog (head is %d)", version, r.catalog.Head())
	}
	if err := r.target.EnsureVersionTable(ctx); err != nil {
		return err
	}
	if err := r.target.SetVersion(ctx, version, false); err != nil {
		return err
	}
	r.log.Warn("migration marker forced", "engine", string(r.engine), "version", version)
	return nil
}

func (r *Runner) begin(ctx context.Context) (int, error) {
	if err := r.target.EnsureVersionTable(ctx); err != nil {
		return 0, err
	}
	cur, dirty, err := r.target.Version(ctx)
	if err != nil {
		return 0, err
	}
	if dirty {
		return 0, &DirtyError{Version: cur}
	}
	return cur, nil
}

func (r *Runner) apply(ctx context.Context, version int, file, body string) error {
	if err := r.target.SetVersion(ctx, version, true); err != nil {
		return err
	}
	for _, stmt := range splitStatements(body) {
		if err := r.target.Run(ctx, stmt); err != nil {
			return &StatementError{Version: version, File: file, Err: err}
		}
	}
	return r.target.SetVersion(ctx, version, false)
}

// splitStatements breaks a migration body on top-level semicolons so each
// statement can run through drivers that refuse multi-statement strings.
// Comment-only and empty chunks are skipped.
func splitStatements(body string) []string {
	var out []string
	for _, chunk := range strings.Split(body, ";") {
		stmt := strings.TrimSpace(chunk)
		if stmt == "" {
			continue
		}
		onlyComments := true
		for _, line := range strings.Split(stmt, "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "--") {
				onlyComments = false
				break
			}
		}
		if onlyComments {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
