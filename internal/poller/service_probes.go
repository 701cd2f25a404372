package poller

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/segmentio/kafka-go"
)

// SQLProbe pings the relational engine with a fresh connection per attempt,
// so a restarting server never poisons a pooled connection.
type SQLProbe struct{ DSN string }

func (p SQLProbe) Check(ctx context.Context) error {
	db, err := sql.Open("pgx", p.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return db.PingContext(ctx)
}

func (p SQLProbe) Describe() string { return "sql:ping" }

// CQLProbe reports ready when a session can be established and system.local
// answers.
type CQLProbe struct{ Hosts []string }

func (p CQLProbe) Check(ctx context.Context) error {
	cluster := gocql.NewCluster(p.Hosts...)
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second
	session, err := cluster.CreateSession()
	if err != nil {
		return err
	}
	defer session.Close()
	return session.Query(`SELECT release_version FROM system.local`).WithContext(ctx).Exec()
}

func (p CQLProbe) Describe() string { return "cql:" + strings.Join(p.Hosts, ",") }

// BrokerProbe reports ready when the broker answers a metadata request and a
// controller has been elected.
type BrokerProbe struct{ Brokers []string }

func (p BrokerProbe) Check(ctx context.Context) error {
	if len(p.Brokers) == 0 {
		return fmt.Errorf("no broker addresses")
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.Brokers[0])
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	ctrl, err := conn.Controller()
	if err != nil {
		return err
	}
	if ctrl.Host == "" {
		return fmt.Errorf("no controller elected yet")
	}
	return nil
}

func (p BrokerProbe) Describe() string { return "kafka:" + strings.Join(p.Brokers, ",") }
