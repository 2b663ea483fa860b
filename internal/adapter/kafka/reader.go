package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/rescuecom-dashboard/internal/config"
	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Reader consumes pushed emergency payloads from a Kafka topic.
// It implements pipeline.PushSource.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewReader creates a consumer-group reader for the configured push topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	return &Reader{reader: kafkago.NewReader(readerConfig(cfg)), logger: logger}
}

// readerConfig accepts messages up to the same bound as HTTP push.
func readerConfig(cfg *config.Config) kafkago.ReaderConfig {
	return kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaGroupID,
		Topic:    cfg.KafkaPushTopic,
		MinBytes: 1,
		MaxBytes: domain.MaxPushBytes,
	}
}

// FetchPush blocks until the next message is available. Offsets are only
// committed through the returned message's Commit.
func (r *Reader) FetchPush(ctx context.Context) (domain.PushMessage, error) {
	msg, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return domain.PushMessage{}, fmt.Errorf("fetch push message: %w", err)
	}
	push := mapMessageToPush(msg)
	push.Commit = func(ctx context.Context) error {
		return r.reader.CommitMessages(ctx, msg)
	}
	return push, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessageToPush copies broker metadata and headers into a PushMessage.
func mapMessageToPush(msg kafkago.Message) domain.PushMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.PushMessage{
		Payload:   msg.Value,
		Key:       msg.Key,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Headers:   headers,
	}
}
