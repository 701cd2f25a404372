package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/chaty/devstack/internal/logger"
)

// Environment overrides honored by Load. The values replace the corresponding
// config file entries verbatim; components never read the process environment
// themselves.
const (
	EnvSQLDSN   = "DB_DSN_SQL"
	EnvNoSQLDSN = "DB_DSN_NOSQL"
)

// Config is the top-level TOML structure for a bootstrap run.
type Config struct {
	ComposeFile string `toml:"compose_file" mapstructure:"compose_file"`

	Retry    RetryConfig    `toml:"retry" mapstructure:"retry"`
	SQL      SQLConfig      `toml:"sql" mapstructure:"sql"`
	NoSQL    NoSQLConfig    `toml:"nosql" mapstructure:"nosql"`
	Broker   BrokerConfig   `toml:"broker" mapstructure:"broker"`
	OAuth    OAuthConfig    `toml:"oauth" mapstructure:"oauth"`
	Services ServicesConfig `toml:"services" mapstructure:"services"`
	Sinks    []SinkConfig   `toml:"sinks" mapstructure:"sinks"`
	Log      logger.Config  `toml:"log" mapstructure:"log"`
	Metrics  MetricsConfig  `toml:"metrics" mapstructure:"metrics"`

	MigrationsDir string `toml:"migrations_dir" mapstructure:"migrations_dir"`
	CredStorePath string `toml:"credstore_path" mapstructure:"credstore_path"`
}

// RetryConfig bounds every readiness wait: MaxAttempts probes with Interval
// sleeps between failures.
type RetryConfig struct {
	MaxAttempts int           `toml:"max_attempts" mapstructure:"max_attempts"`
	Interval    time.Duration `toml:"interval" mapstructure:"interval"`
}

type SQLConfig struct {
	DSN      string `toml:"dsn" mapstructure:"dsn"`
	Database string `toml:"database" mapstructure:"database"`
	User     string `toml:"user" mapstructure:"user"`
	Password string `toml:"password" mapstructure:"password"`
	// CockroachDB changefeeds require rangefeeds at the cluster level.
	EnableRangefeeds bool `toml:"enable_rangefeeds" mapstructure:"enable_rangefeeds"`
}

type NoSQLConfig struct {
	Hosts             []string `toml:"hosts" mapstructure:"hosts"`
	Keyspace          string   `toml:"keyspace" mapstructure:"keyspace"`
	ReplicationFactor int      `toml:"replication_factor" mapstructure:"replication_factor"`
}

type BrokerConfig struct {
	Brokers []string    `toml:"brokers" mapstructure:"brokers"`
	Service string      `toml:"service" mapstructure:"service"`
	Topics  []TopicSpec `toml:"topics" mapstructure:"topics"`
}

// TopicSpec describes one broker topic with its creation-time settings.
type TopicSpec struct {
	Name          string        `toml:"name" mapstructure:"name"`
	Partitions    int           `toml:"partitions" mapstructure:"partitions"`
	Replication   int           `toml:"replication" mapstructure:"replication"`
	CleanupPolicy string        `toml:"cleanup_policy" mapstructure:"cleanup_policy"`
	Retention     time.Duration `toml:"retention" mapstructure:"retention"`
}

type OAuthConfig struct {
	AdminURL    string   `toml:"admin_url" mapstructure:"admin_url"`
	PublicURL   string   `toml:"public_url" mapstructure:"public_url"`
	ClientName  string   `toml:"client_name" mapstructure:"client_name"`
	RedirectURI string   `toml:"redirect_uri" mapstructure:"redirect_uri"`
	Scopes      []string `toml:"scopes" mapstructure:"scopes"`
	// ReuseClient makes repeated runs converge on one registration via the
	// local credstore instead of issuing a fresh client every time.
	ReuseClient bool `toml:"reuse_client" mapstructure:"reuse_client"`
}

// ServicesConfig holds readiness endpoints for services that are polled but
// not otherwise administered by the bootstrap.
type ServicesConfig struct {
	HydraHealthURL  string `toml:"hydra_health_url" mapstructure:"hydra_health_url"`
	MinioHealthURL  string `toml:"minio_health_url" mapstructure:"minio_health_url"`
	SearchHealthURL string `toml:"search_health_url" mapstructure:"search_health_url"`
	CacheAddr       string `toml:"cache_addr" mapstructure:"cache_addr"`
}

// SinkConfig names one downstream artifact the issued client id is written to.
// Type is "env" (Key names the variable) or "yaml" (Path is a dotted field
// reference like "oauth.client_id").
type SinkConfig struct {
	Type    string `toml:"type" mapstructure:"type"`
	File    string `toml:"file" mapstructure:"file"`
	Key     string `toml:"key" mapstructure:"key"`
	DotPath string `toml:"dot_path" mapstructure:"dot_path"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

// Default returns the built-in configuration matching the stock compose
// environment. A config file overrides individual fields.
func Default() Config {
	return Config{
		ComposeFile: "docker-compose.yml",
		Retry:       RetryConfig{MaxAttempts: 30, Interval: 2 * time.Second},
		SQL: SQLConfig{
			DSN:              "postgresql://root@localhost:26257/defaultdb?sslmode=disable",
			Database:         "chaty",
			User:             "chaty",
			EnableRangefeeds: true,
		},
		NoSQL: NoSQLConfig{
			Hosts:             []string{"localhost:9042"},
			Keyspace:          "chaty",
			ReplicationFactor: 1,
		},
		Broker: BrokerConfig{
			Brokers: []string{"localhost:19092"},
			Service: "redpanda",
			Topics:  DefaultTopics(),
		},
		OAuth: OAuthConfig{
			AdminURL:    "http://localhost:4445",
			PublicURL:   "http://localhost:4444",
			ClientName:  "chaty-web",
			RedirectURI: "http://localhost:5173/auth/callback",
			Scopes:      []string{"openid", "offline"},
			ReuseClient: true,
		},
		Services: ServicesConfig{
			HydraHealthURL:  "http://localhost:4445/health/ready",
			MinioHealthURL:  "http://localhost:9000/minio/health/live",
			SearchHealthURL: "http://localhost:7700/health",
			CacheAddr:       "localhost:6379",
		},
		MigrationsDir: "migrations",
		CredStorePath: "devstack.db",
	}
}

// DefaultTopics is the platform topic set, DLQs included. Cleanup and
// retention mirror what the consumers expect.
func DefaultTopics() []TopicSpec {
	mk := func(name string) TopicSpec {
		return TopicSpec{
			Name:          name,
			Partitions:    3,
			Replication:   1,
			CleanupPolicy: "delete",
			Retention:     7 * 24 * time.Hour,
		}
	}
	return []TopicSpec{
		mk("user_created"),
		mk("email_confirmation"),
		mk("email_confirmation_dlq"),
		mk("password_reset"),
		mk("password_reset_dlq"),
		mk("search_users_changes"),
		mk("search_users_changes_dlq"),
	}
}

// Load reads the TOML file at path (optional: empty path yields defaults),
// then applies environment DSN overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		// Paths in the file are relative to the file itself.
		base := filepath.Dir(path)
		cfg.ComposeFile = absFrom(base, cfg.ComposeFile)
		cfg.MigrationsDir = absFrom(base, cfg.MigrationsDir)
		cfg.CredStorePath = absFrom(base, cfg.CredStorePath)
		for i := range cfg.Sinks {
			cfg.Sinks[i].File = absFrom(base, cfg.Sinks[i].File)
		}
	}

	if dsn := os.Getenv(EnvSQLDSN); dsn != "" {
		cfg.SQL.DSN = dsn
	}
	if dsn := os.Getenv(EnvNoSQLDSN); dsn != "" {
		hosts, keyspace, err := ParseCQLDSN(dsn)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvNoSQLDSN, err)
		}
		cfg.NoSQL.Hosts = hosts
		if keyspace != "" {
			cfg.NoSQL.Keyspace = keyspace
		}
	}
	return cfg, cfg.Validate()
}

// ParseCQLDSN splits "host1:9042,host2:9042/keyspace" into its parts.
// The keyspace segment is optional.
func ParseCQLDSN(dsn string) ([]string, string, error) {
	s := strings.TrimSpace(dsn)
	if s == "" {
		return nil, "", fmt.Errorf("empty dsn")
	}
	keyspace := ""
	if i := strings.IndexByte(s, '/'); i >= 0 {
		keyspace = s[i+1:]
		s = s[:i]
	}
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	if len(hosts) == 0 {
		return nil, "", fmt.Errorf("no hosts in dsn %q", dsn)
	}
	return hosts, keyspace, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Interval <= 0 {
		return fmt.Errorf("retry.interval must be positive, got %s", c.Retry.Interval)
	}
	if c.SQL.DSN == "" {
		return fmt.Errorf("sql.dsn is required")
	}
	if len(c.NoSQL.Hosts) == 0 {
		return fmt.Errorf("nosql.hosts is required")
	}
	if c.NoSQL.Keyspace == "" {
		return fmt.Errorf("nosql.keyspace is required")
	}
	if len(c.Broker.Brokers) == 0 {
		return fmt.Errorf("broker.brokers is required")
	}
	for _, s := range c.Sinks {
		switch s.Type {
		case "env":
			if s.File == "" || s.Key == "" {
				return fmt.Errorf("env sink requires file and key")
			}
		case "yaml":
			if s.File == "" || s.DotPath == "" {
				return fmt.Errorf("yaml sink requires file and dot_path")
			}
		default:
			return fmt.Errorf("unknown sink type %q", s.Type)
		}
	}
	return nil
}

func absFrom(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
