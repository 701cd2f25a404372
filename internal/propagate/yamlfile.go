package propagate

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAMLSink sets the value at a dotted field path inside a structured
// configuration document, creating intermediate mappings as needed and
// preserving all sibling content. Comments in the document are not
// preserved across the rewrite.
type YAMLSink struct {
	Path    string
	DotPath string

	staged []byte
}

func (s *YAMLSink) Describe() string {
	return fmt.Sprintf("yaml %s (%s)", s.Path, s.DotPath)
}

func (s *YAMLSink) Stage(value string) error {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return err
	}

	doc := map[string]any{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", s.Path, err)
	}

	keys := strings.Split(s.DotPath, ".")
	if err := setPath(doc, keys, value); err != nil {
		return fmt.Errorf("%s in %s: %w", s.DotPath, s.Path, err)
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	s.staged = out
	return nil
}

func (s *YAMLSink) Commit() error {
	if s.staged == nil {
		return fmt.Errorf("commit before stage on %s", s.Describe())
	}
	return writeFileAtomic(s.Path, s.staged)
}

func setPath(doc map[string]any, keys []string, value string) error {
	cur := doc
	for i, k := range keys {
		if k == "" {
			return fmt.Errorf("empty path segment")
		}
		if i == len(keys)-1 {
			cur[k] = value
			return nil
		}
		next, ok := cur[k]
		if !ok || next == nil {
			child := map[string]any{}
			cur[k] = child
			cur = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("segment %q is a %T, not a mapping", k, next)
		}
		cur = child
	}
	return nil
}
