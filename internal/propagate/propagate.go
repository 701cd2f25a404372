// Package propagate writes a discovered runtime value into downstream
// configuration artifacts. Propagation is two-phase: every sink renders its
// new content in memory first, and nothing touches disk until all sinks
// staged cleanly.
package propagate

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Sink is one destination artifact. Stage must be side-effect free; Commit
// writes the staged content atomically.
type Sink interface {
	Stage(value string) error
	Commit() error
	Describe() string
}

// Propagate stages value into every sink, then commits them in order. A
// stage failure aborts with zero files modified. A commit failure leaves
// earlier sinks written; re-running propagation with the same value is
// idempotent, so the recovery path is simply to run again.
func Propagate(log *slog.Logger, value string, sinks []Sink) error {
	for _, s := range sinks {
		if err := s.Stage(value); err != nil {
			return fmt.Errorf("stage %s: %w", s.Describe(), err)
		}
	}
	for _, s := range sinks {
		if err := s.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", s.Describe(), err)
		}
		log.Info("sink updated", "sink", s.Describe())
	}
	return nil
}

// writeFileAtomic writes data via a temp file in the same directory followed
// by a rename, preserving the original file's permissions when it exists.
func writeFileAtomic(path string, data []byte) error {
	perm := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		perm = fi.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
