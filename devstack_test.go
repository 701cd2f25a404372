package devstack

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsRunnable(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestNewWiresBootstrapWithoutTouchingServices(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CredStorePath = filepath.Join(t.TempDir(), "devstack.db")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	boot, err := New(cfg, log)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer boot.Close()

	if boot.Stage() != StageIdle {
		t.Fatalf("expected idle before run, got %s", boot.Stage())
	}
}
