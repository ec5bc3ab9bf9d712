// Package publisher delivers outbox entries downstream: to Kafka when brokers
// are configured, otherwise to the structured log.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"visitorbook/internal/events/outbox"
)

// Kafka publishes each entry as one record keyed by its aggregate, so all
// events of one visitor land on the same partition.
type Kafka struct {
	client *kgo.Client
	topic  string
}

// NewKafka connects to brokers. The client is owned by the publisher and
// released by Close.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID("visitorbook"),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Kafka{client: client, topic: topic}, nil
}

// EnsureTopic creates the topic when it does not exist yet.
func (k *Kafka) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(k.client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, k.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", k.topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func (k *Kafka) Publish(ctx context.Context, entry outbox.Entry) error {
	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(entry.AggregateID),
		Value: entry.Payload,
		Headers: []kgo.RecordHeader{
			{Key: "event_id", Value: []byte(entry.ID.String())},
			{Key: "event_type", Value: []byte(entry.EventType)},
		},
		Timestamp: entry.CreatedAt,
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", entry.ID, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	k.client.Close()
	return nil
}

// Log writes entries to the structured log. It stands in for Kafka in
// development and single-node deployments.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Publish(ctx context.Context, entry outbox.Entry) error {
	l.logger.InfoContext(ctx, "event_published",
		"event_id", entry.ID.String(),
		"event_type", entry.EventType,
		"aggregate_id", entry.AggregateID,
		"payload", string(entry.Payload),
	)
	return nil
}
