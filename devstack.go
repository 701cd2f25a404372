// Package devstack bootstraps the chaty development environment: container
// startup, readiness waits, resource provisioning, schema migrations, and
// propagation of the issued OAuth client id into downstream configuration.
package devstack

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chaty/devstack/internal/compose"
	"github.com/chaty/devstack/internal/config"
	"github.com/chaty/devstack/internal/credstore"
	"github.com/chaty/devstack/internal/logger"
	"github.com/chaty/devstack/internal/poller"
	"github.com/chaty/devstack/internal/propagate"
	"github.com/chaty/devstack/internal/provision"
	"github.com/chaty/devstack/internal/sequencer"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Config

type TopicSpec = config.TopicSpec

type LogConfig = logger.Config

type Stage = sequencer.Stage

type StageError = sequencer.StageError

type RetryPolicy = poller.RetryPolicy

const (
	StageIdle     = sequencer.StageIdle
	StageComplete = sequencer.StageComplete
)

// DefaultConfig returns the built-in configuration for the stock compose
// environment.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads a TOML config file; an empty path yields defaults.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// NewLogger builds a slog.Logger from the config's log section.
func NewLogger(c LogConfig) *slog.Logger { return logger.New(c) }

// Bootstrap is a thin facade over the internal sequencer with all
// collaborators wired from config. It provides a stable public API for
// embedding.
type Bootstrap struct {
	inner   *sequencer.Sequencer
	closers []func()
}

// New wires a Bootstrap from cfg. Close must be called even when Run fails.
func New(cfg Config, log *slog.Logger) (*Bootstrap, error) {
	b := &Bootstrap{}

	sqlAdmin, err := provision.NewSQL(cfg.SQL.DSN, log)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, func() { _ = sqlAdmin.Close() })

	creds, err := credstore.Open(cfg.CredStorePath)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.closers = append(b.closers, func() { _ = creds.Close() })
	if err := creds.EnsureSchema(context.Background()); err != nil {
		b.Close()
		return nil, fmt.Errorf("credstore schema: %w", err)
	}

	sinks := make([]propagate.Sink, 0, len(cfg.Sinks))
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "env":
			sinks = append(sinks, &propagate.EnvFileSink{Path: sc.File, Key: sc.Key})
		case "yaml":
			sinks = append(sinks, &propagate.YAMLSink{Path: sc.File, DotPath: sc.DotPath})
		}
	}

	b.inner = &sequencer.Sequencer{
		Log:    log,
		Policy: poller.RetryPolicy{MaxAttempts: cfg.Retry.MaxAttempts, Interval: cfg.Retry.Interval},

		Compose:       compose.NewRunner(cfg.ComposeFile, log),
		BrokerService: cfg.Broker.Service,

		BrokerTarget: poller.Target{
			Name:  "broker",
			Probe: poller.BrokerProbe{Brokers: cfg.Broker.Brokers},
		},
		StackTargets: stackTargets(cfg),
		OAuthTarget: poller.Target{
			Name:  "oauth",
			Probe: poller.HTTPProbe{URL: cfg.Services.HydraHealthURL},
		},

		Clients: &sequencer.ClientProvisioner{
			OAuth: provision.NewOAuth(cfg.OAuth.AdminURL, log),
			Store: creds,
			Cfg:   cfg.OAuth,
			Log:   log,
		},
		Sinks: sinks,
		Stores: &sequencer.StoreProvisioner{
			SQL:      sqlAdmin,
			Keyspace: provision.NewKeyspace(cfg.NoSQL.Hosts, log),
			SQLCfg:   cfg.SQL,
			NoSQLCfg: cfg.NoSQL,
		},
		Migrations: &sequencer.MigrationApplier{
			Dir:      cfg.MigrationsDir,
			SQLDSN:   cfg.SQL.DSN,
			NoSQLCfg: cfg.NoSQL,
			Log:      log,
		},
		Topics: &sequencer.TopicApplier{
			Topics: provision.NewTopics(cfg.Broker.Brokers, log),
			Specs:  cfg.Broker.Topics,
		},
	}
	return b, nil
}

// Run executes the full bootstrap pipeline.
func (b *Bootstrap) Run(ctx context.Context) error { return b.inner.Run(ctx) }

// Stage returns the pipeline's current stage.
func (b *Bootstrap) Stage() Stage { return b.inner.Stage() }

// Close releases every connection the bootstrap holds.
func (b *Bootstrap) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

func stackTargets(cfg Config) []poller.Target {
	targets := []poller.Target{
		{Name: "cockroach", Probe: poller.SQLProbe{DSN: cfg.SQL.DSN}},
		{Name: "scylla", Probe: poller.CQLProbe{Hosts: cfg.NoSQL.Hosts}},
	}
	if cfg.Services.CacheAddr != "" {
		targets = append(targets, poller.Target{
			Name: "cache", Probe: poller.TCPProbe{Addr: cfg.Services.CacheAddr},
		})
	}
	if cfg.Services.MinioHealthURL != "" {
		targets = append(targets, poller.Target{
			Name: "minio", Probe: poller.HTTPProbe{URL: cfg.Services.MinioHealthURL},
		})
	}
	if cfg.Services.SearchHealthURL != "" {
		targets = append(targets, poller.Target{
			Name: "search", Probe: poller.HTTPProbe{URL: cfg.Services.SearchHealthURL},
		})
	}
	return targets
}
