package propagate

import (
	"fmt"
	"os"
	"strings"
)

// EnvFileSink replaces the value of one variable in a key-value environment
// file, preserving every other line verbatim. The variable must already
// exist: this sink edits files, it does not create them.
type EnvFileSink struct {
	Path string
	Key  string

	staged []byte
}

func (s *EnvFileSink) Describe() string {
	return fmt.Sprintf("env %s (%s)", s.Path, s.Key)
}

func (s *EnvFileSink) Stage(value string) error {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return err
	}

	// Split keeps a trailing empty element when the file ends in a newline,
	// so rejoining reproduces the original byte-for-byte.
	lines := strings.Split(string(raw), "\n")
	prefix := s.Key + "="
	found := false
	for i, line := range lines {
		if strings.HasPrefix(line, prefix) {
			lines[i] = prefix + value
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("variable %s not present in %s", s.Key, s.Path)
	}
	s.staged = []byte(strings.Join(lines, "\n"))
	return nil
}

func (s *EnvFileSink) Commit() error {
	if s.staged == nil {
		return fmt.Errorf("commit before stage on %s", s.Describe())
	}
	return writeFileAtomic(s.Path, s.staged)
}
