package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"github.com/copypatrol/copypatrol-go/internal/models"
)

const (
	DefaultTopic        = "copypatrol.revisions"
	DefaultWriteTimeout = 10 * time.Second
)

// KafkaPublisher implements Publisher by writing accepted revision-create
// events to a Kafka topic, one message per revision (§4.1, §5 "ingest" and
// "check" stages are decoupled by this topic).
type KafkaPublisher struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

// NewKafkaPublisher builds a publisher against the given brokers/topic.
func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Compression:  compress.Snappy,
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: DefaultWriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Logger:       kafka.LoggerFunc(logger.Debug().Msgf),
		ErrorLogger:  kafka.LoggerFunc(logger.Error().Msgf),
	}
	return &KafkaPublisher{writer: writer, logger: logger.With().Str("component", "kafka-publisher").Logger()}
}

// Publish writes event to Kafka, keyed by page title for per-page ordering.
func (p *KafkaPublisher) Publish(ctx context.Context, event models.RevisionCreateEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.PageTitle),
		Value: value,
		Headers: []kafka.Header{
			{Key: "domain", Value: []byte(event.Meta.Domain)},
		},
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultWriteTimeout)
	defer cancel()
	return p.writer.WriteMessages(ctx, msg)
}

// Close flushes and closes the underlying Kafka writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
