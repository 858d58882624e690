package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaDispatcher publishes events to a single topic keyed by client, so one
// client's notifications stay ordered within a partition.
type KafkaDispatcher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaDispatcher connects to brokers. Call EnsureTopic before the first
// dispatch when the topic may not exist yet.
func NewKafkaDispatcher(brokers []string, topic string, opts ...kgo.Opt) (*KafkaDispatcher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	opts = append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}, opts...)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &KafkaDispatcher{client: client, topic: topic}, nil
}

// EnsureTopic creates the topic if it is missing.
func (d *KafkaDispatcher) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(d.client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, d.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", d.topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, ev Event) error {
	payload, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	rec := &kgo.Record{
		Topic: d.topic,
		Key:   []byte(ev.Key()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "subject", Value: []byte(ev.Subject)},
			{Key: "action", Value: []byte(ev.Action)},
		},
	}
	// kgo fails the record through the callback once ctx ends.
	done := make(chan error, 1)
	d.client.Produce(ctx, rec, func(_ *kgo.Record, err error) {
		done <- err
	})
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("produce notification: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("produce notification: %w", ctx.Err())
	}
}

// Close flushes buffered records and releases the connection.
func (d *KafkaDispatcher) Close() {
	d.client.Close()
}
