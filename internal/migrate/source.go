package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// Engine selects which schema store a runner operates on.
type Engine string

const (
	EngineSQL   Engine = "sql"
	EngineNoSQL Engine = "nosql"
)

// Ext is the dialect file extension for the engine's migration bodies.
func (e Engine) Ext() string {
	if e == EngineNoSQL {
		return "cql"
	}
	return "sql"
}

func (e Engine) Valid() bool { return e == EngineSQL || e == EngineNoSQL }

// Migration is one versioned up/down pair discovered on disk.
type Migration struct {
	Version  int
	Label    string
	UpPath   string
	DownPath string
}

// ReadUp returns the up statement body.
func (m Migration) ReadUp() (string, error) { return readBody(m.UpPath) }

// ReadDown returns the down statement body.
func (m Migration) ReadDown() (string, error) { return readBody(m.DownPath) }

func readBody(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read migration %s: %w", path, err)
	}
	return string(b), nil
}

// Catalog is the ordered set of migrations for one engine. Versions are
// strictly increasing and gap-tolerant.
type Catalog struct {
	migrations []Migration
}

var fileRe = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.([a-z]+)$`)

// LoadCatalog scans dir for NNNN_label.up.EXT / NNNN_label.down.EXT pairs.
// A version missing either half, a duplicate version, or a foreign extension
// is a catalog error: the runner refuses to guess.
func LoadCatalog(dir string, engine Engine) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}

	byVersion := map[int]*Migration{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := fileRe.FindStringSubmatch(e.Name())
		if m == nil {
			return nil, fmt.Errorf("unrecognized migration file name %q", e.Name())
		}
		version, err := strconv.Atoi(m[1])
		if err != nil || version < 1 {
			return nil, fmt.Errorf("bad version in migration file %q", e.Name())
		}
		if m[4] != engine.Ext() {
			return nil, fmt.Errorf("migration %q has extension .%s, want .%s", e.Name(), m[4], engine.Ext())
		}

		mig := byVersion[version]
		if mig == nil {
			mig = &Migration{Version: version, Label: m[2]}
			byVersion[version] = mig
		}
		if mig.Label != m[2] {
			return nil, fmt.Errorf("version %d has conflicting labels %q and %q", version, mig.Label, m[2])
		}
		path := filepath.Join(dir, e.Name())
		switch m[3] {
		case "up":
			if mig.UpPath != "" {
				return nil, fmt.Errorf("duplicate up migration for version %d", version)
			}
			mig.UpPath = path
		case "down":
			if mig.DownPath != "" {
				return nil, fmt.Errorf("duplicate down migration for version %d", version)
			}
			mig.DownPath = path
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.UpPath == "" || mig.DownPath == "" {
			return nil, fmt.Errorf("version %d (%s) is missing its up or down half", mig.Version, mig.Label)
		}
		out = append(out, *mig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return &Catalog{migrations: out}, nil
}

// All returns the migrations in ascending version order.
func (c *Catalog) All() []Migration { return c.migrations }

// Len returns the number of migrations.
func (c *Catalog) Len() int { return len(c.migrations) }

// Head returns the highest version in the catalog, 0 when empty.
func (c *Catalog) Head() int {
	if len(c.migrations) == 0 {
		return 0
	}
	return c.migrations[len(c.migrations)-1].Version
}

// Has reports whether version exists in the catalog.
func (c *Catalog) Has(version int) bool {
	for _, m := range c.migrations {
		if m.Version == version {
			return true
		}
	}
	return false
}
