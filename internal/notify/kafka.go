package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender publishes alerts as JSON records keyed by account ID, so all
// alerts of one account land on the same partition.
type KafkaSender struct {
	writer messageWriter
	topic  string
}

// NewKafkaSender creates a synchronous writer for topic on brokers.
func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	return &KafkaSender{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			MaxAttempts:  3,
		},
		topic: topic,
	}
}

// Send writes one record.
func (k *KafkaSender) Send(ctx context.Context, a domain.Alert) error {
	value, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("kafka: marshal alert: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(a.AccountID),
		Value: value,
		Time:  a.CreatedAt,
		Headers: []kafka.Header{
			{Key: "level", Value: []byte(a.Level)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write to %s: %w", k.topic, err)
	}
	return nil
}

// Name returns "kafka".
func (k *KafkaSender) Name() string { return "kafka" }

// Close flushes and closes the writer.
func (k *KafkaSender) Close() error {
	return k.writer.Close()
}
