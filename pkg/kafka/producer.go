package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/trialmesh/aster/pkg/models"
	"github.com/trialmesh/aster/pkg/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// DecisionEvent is the envelope published for every resolved record
type DecisionEvent struct {
	EventType   string           `json:"event_type"` // sponsor.decision
	RunID       string           `json:"run_id"`
	ExternalKey string           `json:"external_key"`
	SponsorText string           `json:"sponsor_text"`
	Decision    *models.Decision `json:"decision"`
	Timestamp   time.Time        `json:"timestamp"`
}

// PublishDecision publishes a decision event, keyed by external key so every
// decision for a record lands on the same partition.
func (p *Producer) PublishDecision(ctx context.Context, event *DecisionEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishDecision")
	defer span.End()

	if event.EventType == "" {
		event.EventType = "sponsor.decision"
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.ExternalKey),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "run_id", Value: []byte(event.RunID)},
			{Key: "match_mode", Value: []byte(event.Decision.Mode)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish decision event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":       event.RunID,
		"external_key": event.ExternalKey,
		"match_mode":   event.Decision.Mode,
	}).Debug("Published decision event")

	return nil
}

// PublishDecisions publishes a batch of decision events
func (p *Producer) PublishDecisions(ctx context.Context, events []*DecisionEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishDecisions")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		if event.EventType == "" {
			event.EventType = "sponsor.decision"
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		messages[i] = kafka.Message{
			Topic: p.topic,
			Key:   []byte(event.ExternalKey),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
				{Key: "run_id", Value: []byte(event.RunID)},
				{Key: "match_mode", Value: []byte(event.Decision.Mode)},
			},
		}
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
		}).Error("Failed to publish decision events batch")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(events),
	}).Debug("Published decision events batch")

	return nil
}
