// Package publisher delivers committed ledger events to Kafka.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"braza/internal/ledger/events"
)

// Kafka publishes events with the subject address as the record key, so
// per-account ordering survives partitioning.
type Kafka struct {
	client *kgo.Client
}

var _ events.Publisher = (*Kafka)(nil)

// NewKafka connects a producer for the given brokers and topic.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer: %w", err)
	}
	return &Kafka{client: client}, nil
}

func (k *Kafka) Publish(ctx context.Context, event events.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	key := event.Subject.String()
	if key == "" {
		key = string(event.Topic)
	}
	record := &kgo.Record{Key: []byte(key), Value: value}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce event %s: %w", event.ID, err)
	}
	return nil
}

// Close flushes buffered records and releases the client.
func (k *Kafka) Close() {
	k.client.Close()
}
