// Package compose drives the container runtime. It is a boundary wrapper:
// the compose file's contents are owned by the environment, not by the
// bootstrap, and nothing here inspects container state beyond exit codes.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

type Runner struct {
	File string
	log  *slog.Logger
}

func NewRunner(file string, log *slog.Logger) *Runner {
	return &Runner{File: file, log: log}
}

// Up starts the named services detached; with no services it starts the
// whole stack.
func (r *Runner) Up(ctx context.Context, services ...string) error {
	args := append([]string{"up", "-d"}, services...)
	return r.run(ctx, args...)
}

// Down tears the stack down including volumes. This is the explicit
// clean-room reset: bootstrap never resumes a half-built environment.
func (r *Runner) Down(ctx context.Context) error {
	return r.run(ctx, "down", "-v", "--remove-orphans")
}

func (r *Runner) run(ctx context.Context, args ...string) error {
	full := append([]string{"compose", "-f", r.File}, args...)
	r.log.Debug("docker " + strings.Join(full, " "))
	// #nosec G204
	cmd := exec.CommandContext(ctx, "docker", full...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker compose %s: %w", strings.Join(args, " "), err)
	}
	return nil
}
