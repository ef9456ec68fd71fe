package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink publishes each event as a JSON record keyed by identity, so all
// events of one record land on one partition in commit order.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink connects to brokers and makes sure topic exists.
func NewKafkaSink(ctx context.Context, brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := ensureTopic(ctx, client, topic); err != nil {
		client.Close()
		return nil, err
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, 1, -1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}

// Name implements Sink.
func (s *KafkaSink) Name() string { return "kafka" }

// Deliver implements Sink.
func (s *KafkaSink) Deliver(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: events travel by value
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	record := &kgo.Record{
		Key:   []byte(e.Identity.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(e.Kind)},
			{Key: "event_id", Value: []byte(e.EventID)},
		},
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", s.topic, err)
	}
	return nil
}

// Close flushes and closes the client.
func (s *KafkaSink) Close() {
	s.client.Close()
}
