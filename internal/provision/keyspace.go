package provision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gocql/gocql"
)

// Keyspace provisions keyspaces on the NoSQL engine's query endpoint.
type Keyspace struct {
	cluster *gocql.ClusterConfig
	log     *slog.Logger
}

func NewKeyspace(hosts []string, log *slog.Logger) *Keyspace {
	cluster := gocql.NewCluster(hosts...)
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.Consistency = gocql.Quorum
	return &Keyspace{cluster: cluster, log: log}
}

// Ensure creates the keyspace if absent with SimpleStrategy replication.
// Single-host dev environments use a replication factor of 1.
func (k *Keyspace) Ensure(ctx context.Context, name string, replicationFactor int) error {
	if replicationFactor < 1 {
		replicationFactor = 1
	}
	session, err := k.cluster.CreateSession()
	if err != nil {
		return wrap("keyspace "+name, err)
	}
	defer session.Close()

	q := fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}`,
		name, replicationFactor)
	if err := session.Query(q).WithContext(ctx).Exec(); err != nil {
		return wrap("keyspace "+name, err)
	}
	k.log.Info("keyspace ensured", "name", name, "replication_factor", replicationFactor)
	return nil
}
