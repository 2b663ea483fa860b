package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/rescuecom-dashboard/internal/config"
	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// ActionWriter publishes operator actions to a Kafka topic.
// It implements pipeline.ActionPublisher.
type ActionWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewActionWriter creates a Kafka producer for the configured action topic.
func NewActionWriter(cfg *config.Config, logger *slog.Logger) *ActionWriter {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaActionTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &ActionWriter{writer: w, logger: logger}
}

// Publish writes one action keyed by request id, so all actions for a
// request land on the same partition in order.
func (w *ActionWriter) Publish(ctx context.Context, action domain.Action) error {
	msg, err := serializeAction(action)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s action for %s: %w", action.Kind, action.RequestID, err)
	}
	w.logger.Debug("action published", "request_id", action.RequestID, "action", action.Kind)
	return nil
}

func (w *ActionWriter) Close() error {
	return w.writer.Close()
}

// serializeAction marshals an Action into a Kafka message.
func serializeAction(action domain.Action) (kafkago.Message, error) {
	data, err := json.Marshal(action)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize action: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(action.RequestID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "action", Value: []byte(action.Kind)},
			{Key: "priority", Value: []byte(action.Priority)},
			{Key: "issued_at", Value: []byte(action.At.Format(time.RFC3339))},
		},
	}, nil
}
