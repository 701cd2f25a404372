// Package sequencer composes the bootstrap pipeline: a fixed sequence of
// stages with explicit ordering and failure short-circuiting. No stage is
// entered until the previous stage's postcondition holds, and a failure at
// any stage halts the run with no automatic rollback.
package sequencer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chaty/devstack/internal/metrics"
	"github.com/chaty/devstack/internal/poller"
	"github.com/chaty/devstack/internal/propagate"
	"github.com/chaty/devstack/internal/provision"
)

// Stage names one state of the bootstrap pipeline.
type Stage string

const (
	StageIdle              Stage = "idle"
	StageBrokerWarmup      Stage = "broker_warmup"
	StageFullStackUp       Stage = "full_stack_up"
	StageOAuthReady        Stage = "oauth_ready"
	StageClientProvisioned Stage = "client_provisioned"
	StageConfigPropagated  Stage = "config_propagated"
	StageStoresProvisioned Stage = "stores_provisioned"
	StageMigrationsApplied Stage = "migrations_applied"
	StageTopicsProvisioned Stage = "topics_provisioned"
	StageComplete          Stage = "complete"
)

// StageError reports which stage failed and why. It is the only error type
// Run returns.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("bootstrap failed at stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Composer starts and tears down the service containers.
type Composer interface {
	Up(ctx context.Context, services ...string) error
	Down(ctx context.Context) error
}

// ClientEnsurer yields the OAuth client credential for this run.
type ClientEnsurer interface {
	EnsureClient(ctx context.Context) (provision.ClientCredential, error)
}

// StoresEnsurer provisions the relational and NoSQL stores.
type StoresEnsurer interface {
	EnsureStores(ctx context.Context) error
}

// MigrationsApplier brings both engines to the catalog head.
type MigrationsApplier interface {
	Apply(ctx context.Context) error
}

// TopicsEnsurer provisions the broker topic set.
type TopicsEnsurer interface {
	EnsureTopics(ctx context.Context) error
}

// Sequencer runs the bootstrap pipeline. All collaborators are injected at
// construction; the sequencer itself holds no service connections.
type Sequencer struct {
	Log    *slog.Logger
	Policy poller.RetryPolicy

	Compose       Composer
	BrokerService string

	BrokerTarget poller.Target
	StackTargets []poller.Target
	OAuthTarget  poller.Target

	Clients    ClientEnsurer
	Sinks      []propagate.Sink
	Stores     StoresEnsurer
	Migrations MigrationsApplier
	Topics     TopicsEnsurer

	stage Stage
}

// Stage returns the pipeline's current stage.
func (s *Sequencer) Stage() Stage {
	if s.stage == "" {
		return StageIdle
	}
	return s.stage
}

// Run executes the full pipeline. The environment is torn down first: this
// is a clean-room bootstrap, not incremental repair. On failure the
// already-mutated state is left as-is and the failing stage is reported.
func (s *Sequencer) Run(ctx context.Context) error {
	s.transition(StageIdle)
	if err := s.Compose.Down(ctx); err != nil {
		return s.fail(err)
	}

	// The broker has the longest warm-up, so it starts alone first.
	s.transition(StageBrokerWarmup)
	if err := s.Compose.Up(ctx, s.BrokerService); err != nil {
		return s.fail(err)
	}
	if err := poller.WaitReady(ctx, s.Log, s.BrokerTarget, s.Policy); err != nil {
		return s.fail(err)
	}

	s.transition(StageFullStackUp)
	if err := s.Compose.Up(ctx); err != nil {
		return s.fail(err)
	}
	for _, t := range s.StackTargets {
		if err := poller.WaitReady(ctx, s.Log, t, s.Policy); err != nil {
			return s.fail(err)
		}
	}

	s.transition(StageOAuthReady)
	if err := poller.WaitReady(ctx, s.Log, s.OAuthTarget, s.Policy); err != nil {
		return s.fail(err)
	}

	s.transition(StageClientProvisioned)
	cred, err := s.Clients.EnsureClient(ctx)
	if err != nil {
		return s.fail(err)
	}

	s.transition(StageConfigPropagated)
	if len(s.Sinks) == 0 {
		s.Log.Warn("no sinks configured, issued client id will not be propagated",
			"client_id", cred.ClientID)
	}
	if err := propagate.Propagate(s.Log, cred.ClientID, s.Sinks); err != nil {
		return s.fail(err)
	}

	s.transition(StageStoresProvisioned)
	if err := s.Stores.EnsureStores(ctx); err != nil {
		return s.fail(err)
	}

	s.transition(StageMigrationsApplied)
	if err := s.Migrations.Apply(ctx); err != nil {
		return s.fail(err)
	}

	s.transition(StageTopicsProvisioned)
	if err := s.Topics.EnsureTopics(ctx); err != nil {
		return s.fail(err)
	}

	s.transition(StageComplete)
	s.Log.Info("bootstrap complete", "client_id", cred.ClientID)
	return nil
}

func (s *Sequencer) transition(to Stage) {
	from := s.Stage()
	s.stage = to
	metrics.RecordStageTransition(string(from), string(to))
	if to != StageIdle {
		s.Log.Info("stage", "from", string(from), "to", string(to))
	}
}

func (s *Sequencer) fail(err error) error {
	se := &StageError{Stage: s.Stage(), Err: err}
	s.Log.Error("stage failed", "stage", string(se.Stage), "err", err)
	return se
}
