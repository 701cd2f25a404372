package sequencer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/chaty/devstack/internal/config"
	"github.com/chaty/devstack/internal/credstore"
	"github.com/chaty/devstack/internal/metrics"
	"github.com/chaty/devstack/internal/migrate"
	"github.com/chaty/devstack/internal/provision"
)

// OAuthAdmin is the slice of the OAuth provisioner the client ensurer needs.
type OAuthAdmin interface {
	CreateClient(ctx context.Context, spec provision.ClientSpec) (provision.ClientCredential, error)
	ClientExists(ctx context.Context, clientID string) (bool, error)
}

// CredRecorder is the slice of the credstore the client ensurer needs.
type CredRecorder interface {
	GetByName(ctx context.Context, name string) (credstore.Record, error)
	Put(ctx context.Context, rec credstore.Record) error
}

// ClientProvisioner ensures exactly one OAuth client registration for the
// configured logical name. Registration itself is not idempotent, so with
// Reuse enabled the locally recorded client id is verified against the
// server and reused when still present; only then does a fresh registration
// happen, and its id is recorded for the next run.
type ClientProvisioner struct {
	OAuth OAuthAdmin
	Store CredRecorder
	Cfg   config.OAuthConfig
	Log   *slog.Logger
}

func (p *ClientProvisioner) EnsureClient(ctx context.Context) (provision.ClientCredential, error) {
	if p.Cfg.ReuseClient && p.Store != nil {
		rec, err := p.Store.GetByName(ctx, p.Cfg.ClientName)
		switch {
		case err == nil:
			exists, err := p.OAuth.ClientExists(ctx, rec.ClientID)
			if err != nil {
				return provision.ClientCredential{}, err
			}
			if exists {
				p.Log.Info("reusing oauth client", "client_id", rec.ClientID, "issued_at", rec.IssuedAt)
				metrics.IncResourceEnsured("oauth_client")
				return provision.ClientCredential{ClientID: rec.ClientID, IssuedAt: rec.IssuedAt}, nil
			}
			p.Log.Warn("recorded oauth client no longer exists, registering a new one",
				"client_id", rec.ClientID)
		case errors.Is(err, credstore.ErrNotFound):
			// first run, fall through to registration
		default:
			return provision.ClientCredential{}, fmt.Errorf("credstore lookup: %w", err)
		}
	}

	secret, err := provision.GenerateSecret()
	if err != nil {
		return provision.ClientCredential{}, err
	}
	cred, err := p.OAuth.CreateClient(ctx, provision.ClientSpec{
		Name:        p.Cfg.ClientName,
		Secret:      secret,
		RedirectURI: p.Cfg.RedirectURI,
		Scopes:      p.Cfg.Scopes,
	})
	if err != nil {
		return provision.ClientCredential{}, err
	}
	if p.Store != nil {
		if err := p.Store.Put(ctx, credstore.Record{
			Name:     p.Cfg.ClientName,
			ClientID: cred.ClientID,
			IssuedAt: cred.IssuedAt,
		}); err != nil {
			return provision.ClientCredential{}, fmt.Errorf("record issued client: %w", err)
		}
	}
	metrics.IncResourceEnsured("oauth_client")
	return cred, nil
}

// SQLAdmin is the slice of the SQL provisioner the store ensurer needs.
type SQLAdmin interface {
	EnsureDatabase(ctx context.Context, name string) error
	EnsureUser(ctx context.Context, user, password, database string) error
	EnableRangefeeds(ctx context.Context) error
}

// KeyspaceAdmin is the slice of the keyspace provisioner the store ensurer
// needs.
type KeyspaceAdmin interface {
	Ensure(ctx context.Context, name string, replicationFactor int) error
}

// StoreProvisioner provisions the relational database, its application user,
// the changefeed cluster setting, and the NoSQL keyspace.
type StoreProvisioner struct {
	SQL      SQLAdmin
	Keyspace KeyspaceAdmin
	SQLCfg   config.SQLConfig
	NoSQLCfg config.NoSQLConfig
}

func (p *StoreProvisioner) EnsureStores(ctx context.Context) error {
	if err := p.SQL.EnsureDatabase(ctx, p.SQLCfg.Database); err != nil {
		return err
	}
	metrics.IncResourceEnsured("database")
	if p.SQLCfg.User != "" {
		if err := p.SQL.EnsureUser(ctx, p.SQLCfg.User, p.SQLCfg.Password, p.SQLCfg.Database); err != nil {
			return err
		}
		metrics.IncResourceEnsured("user")
	}
	if p.SQLCfg.EnableRangefeeds {
		if err := p.SQL.EnableRangefeeds(ctx); err != nil {
			return err
		}
	}
	if err := p.Keyspace.Ensure(ctx, p.NoSQLCfg.Keyspace, p.NoSQLCfg.ReplicationFactor); err != nil {
		return err
	}
	metrics.IncResourceEnsured("keyspace")
	return nil
}

// MigrationApplier runs both engines to their catalog heads, relational
// before NoSQL to match the dependency order of downstream consumers.
// Targets are opened lazily: the CQL target needs the keyspace provisioned
// in the preceding stage.
type MigrationApplier struct {
	Dir      string
	SQLDSN   string
	NoSQLCfg config.NoSQLConfig
	Log      *slog.Logger
}

func (a *MigrationApplier) Apply(ctx context.Context) error {
	if err := a.applySQL(ctx); err != nil {
		return err
	}
	return a.applyNoSQL(ctx)
}

func (a *MigrationApplier) applySQL(ctx context.Context) error {
	target, err := migrate.NewSQLTarget(a.SQLDSN)
	if err != nil {
		return err
	}
	defer func() { _ = target.Close() }()
	runner, err := migrate.NewRunner(migrate.EngineSQL, filepath.Join(a.Dir, "sql"), target, a.Log)
	if err != nil {
		return err
	}
	applied, err := runner.Up(ctx, 0)
	for range applied {
		metrics.IncMigrationApplied(string(migrate.EngineSQL), "up")
	}
	return err
}

func (a *MigrationApplier) applyNoSQL(ctx context.Context) error {
	target, err := migrate.NewCQLTarget(a.NoSQLCfg.Hosts, a.NoSQLCfg.Keyspace)
	if err != nil {
		return err
	}
	defer func() { _ = target.Close() }()
	runner, err := migrate.NewRunner(migrate.EngineNoSQL, filepath.Join(a.Dir, "nosql"), target, a.Log)
	if err != nil {
		return err
	}
	applied, err := runner.Up(ctx, 0)
	for range applied {
		metrics.IncMigrationApplied(string(migrate.EngineNoSQL), "up")
	}
	return err
}

// TopicAdmin is the slice of the topic provisioner the topic ensurer needs.
type TopicAdmin interface {
	Ensure(ctx context.Context, specs []config.TopicSpec) error
}

// TopicApplier provisions the configured topic set.
type TopicApplier struct {
	Topics TopicAdmin
	Specs  []config.TopicSpec
}

func (a *TopicApplier) EnsureTopics(ctx context.Context) error {
	if err := a.Topics.Ensure(ctx, a.Specs); err != nil {
		return err
	}
	for range a.Specs {
		metrics.IncResourceEnsured("topic")
	}
	return nil
}
