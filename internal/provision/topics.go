package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/chaty/devstack/internal/config"
)

// kafkaAdmin is the slice of the Kafka client the provisioner uses.
type kafkaAdmin interface {
	CreateTopics(ctx context.Context, req *kafka.CreateTopicsRequest) (*kafka.CreateTopicsResponse, error)
	Metadata(ctx context.Context, req *kafka.MetadataRequest) (*kafka.MetadataResponse, error)
}

// Topics provisions broker topics through the Kafka admin API.
type Topics struct {
	client kafkaAdmin
	log    *slog.Logger
}

func NewTopics(brokers []string, log *slog.Logger) *Topics {
	return &Topics{
		client: &kafka.Client{Addr: kafka.TCP(brokers...)},
		log:    log,
	}
}

// Ensure creates every topic in specs. A topic that already exists is
// success with no mutation; the broker keeps its current configuration.
func (t *Topics) Ensure(ctx context.Context, specs []config.TopicSpec) error {
	if len(specs) == 0 {
		return nil
	}

	topicConfigs := make([]kafka.TopicConfig, 0, len(specs))
	for _, s := range specs {
		entries := []kafka.ConfigEntry{}
		if s.CleanupPolicy != "" {
			entries = append(entries, kafka.ConfigEntry{
				ConfigName: "cleanup.policy", ConfigValue: s.CleanupPolicy,
			})
		}
		if s.Retention > 0 {
			entries = append(entries, kafka.ConfigEntry{
				ConfigName: "retention.ms", ConfigValue: strconv.FormatInt(s.Retention.Milliseconds(), 10),
			})
		}
		topicConfigs = append(topicConfigs, kafka.TopicConfig{
			Topic:             s.Name,
			NumPartitions:     valOr(s.Partitions, 1),
			ReplicationFactor: valOr(s.Replication, 1),
			ConfigEntries:     entries,
		})
	}

	resp, err := t.client.CreateTopics(ctx, &kafka.CreateTopicsRequest{Topics: topicConfigs})
	if err != nil {
		return wrap("topics", err)
	}
	for name, terr := range resp.Errors {
		if terr == nil || errors.Is(terr, kafka.TopicAlreadyExists) {
			continue
		}
		return wrap("topic "+name, terr)
	}
	t.log.Info("topics ensured", "count", len(specs))
	return nil
}

// List returns the topic names currently known to the broker.
func (t *Topics) List(ctx context.Context) ([]string, error) {
	meta, err := t.client.Metadata(ctx, &kafka.MetadataRequest{})
	if err != nil {
		return nil, wrap("list topics", err)
	}
	names := make([]string, 0, len(meta.Topics))
	for _, tp := range meta.Topics {
		if tp.Error != nil {
			return nil, wrap("list topics", fmt.Errorf("topic %s: %w", tp.Name, tp.Error))
		}
		names = append(names, tp.Name)
	}
	return names, nil
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
