package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var labelRe = regexp.MustCompile(`[^a-z0-9_]+`)

// CreateFiles writes an empty up/down migration pair at the catalog head + 1
// and returns the created paths. The directory is created if needed, so the
// first migration of an engine bootstraps its own tree.
func CreateFiles(dir string, engine Engine, label string) (upPath, downPath string, err error) {
	label = labelRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(label)), "_")
	label = strings.Trim(label, "_")
	if label == "" {
		return "", "", fmt.Errorf("migration label is required")
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", "", fmt.Errorf("create migrations dir %s: %w", dir, err)
	}

	next := 1
	if entries, err := os.ReadDir(dir); err == nil && len(entries) > 0 {
		catalog, err := LoadCatalog(dir, engine)
		if err != nil {
			return "", "", err
		}
		next = catalog.Head() + 1
	}

	base := fmt.Sprintf("%04d_%s", next, label)
	upPath = filepath.Join(dir, base+".up."+engine.Ext())
	downPath = filepath.Join(dir, base+".down."+engine.Ext())
	for _, p := range []string{upPath, downPath} {
		if err := os.WriteFile(p, []byte("-- "+base+"\n"), 0o644); err != nil {
			return "", "", fmt.Errorf("write %s: %w", p, err)
		}
	}
	return upPath, downPath, nil
}
