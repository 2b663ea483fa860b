package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
	"github.com/couchcryptid/rescuecom-dashboard/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
)

// PushSource yields pushed payloads one at a time.
type PushSource interface {
	FetchPush(ctx context.Context) (domain.PushMessage, error)
}

// Consumer feeds broker messages into the push path.
type Consumer struct {
	source   PushSource
	ingestor *Ingestor
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewConsumer creates a Consumer.
func NewConsumer(source PushSource, ingestor *Ingestor, logger *slog.Logger, metrics *observability.Metrics) *Consumer {
	return &Consumer{
		source:   source,
		ingestor: ingestor,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run consumes until ctx is cancelled. Undecodable messages are logged,
// skipped and committed.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("push consumer started")

	// Exponential backoff on broker errors: start at 200ms, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		msg, err := c.source.FetchPush(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("push consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("fetch push failed", "error", err)
			if !retry.SleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = 200 * time.Millisecond

		if _, err := c.ingestor.PushJSON(ctx, msg.Payload, SourceKafka); err != nil {
			c.logger.Warn("invalid push message, skipping",
				"error", err,
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
		}
		c.commit(ctx, msg)
	}
}

// commit acknowledges the message if a commit function is available.
func (c *Consumer) commit(ctx context.Context, msg domain.PushMessage) {
	if msg.Commit == nil {
		return
	}
	if err := msg.Commit(ctx); err != nil {
		c.logger.Warn("commit offset failed", "error", err,
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
	}
}
