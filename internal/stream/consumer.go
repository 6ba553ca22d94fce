package stream

import (
	"context"
	"time"

	"festival-ticketing/internal/util"

	"go.uber.org/zap"
)

// HandlerFunc processes one message. Returning an error leaves the message
// pending; the recovery scheduler reclaims it later.
type HandlerFunc func(ctx context.Context, msg Message) error

// Consumer runs a blocking read loop over one stream/group pair. Handlers of
// an auto-ack consumer are acknowledged after they return nil; a manual-ack
// consumer (the payment worker) acknowledges from inside its handler once all
// durable side effects are committed.
type Consumer struct {
	client   *Client
	stream   string
	group    string
	consumer string
	block    time.Duration
	batch    int64
	autoAck  bool
	logger   *zap.Logger
}

type ConsumerConfig struct {
	Stream       string
	Group        string
	ConsumerName string
	Block        time.Duration
	BatchSize    int64
	AutoAck      bool
}

func NewConsumer(client *Client, cfg ConsumerConfig) *Consumer {
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Consumer{
		client:   client,
		stream:   cfg.Stream,
		group:    cfg.Group,
		consumer: cfg.ConsumerName,
		block:    cfg.Block,
		batch:    cfg.BatchSize,
		autoAck:  cfg.AutoAck,
		logger:   util.NamedLogger("consumer").With(zap.String("stream", cfg.Stream), zap.String("group", cfg.Group)),
	}
}

// Start consumes until ctx is cancelled. The group must already exist.
func (c *Consumer) Start(ctx context.Context, handler HandlerFunc) error {
	c.logger.Info("Starting stream consumer", zap.String("consumer", c.consumer))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer context cancelled, stopping")
			return ctx.Err()
		default:
		}

		messages, err := c.client.ReadGroup(ctx, c.stream, c.group, c.consumer, c.block, c.batch)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("Error reading from stream", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range messages {
			if err := handler(ctx, msg); err != nil {
				// Left pending on purpose: the recovery scheduler will
				// reclaim and retry it.
				c.logger.Error("Error handling message",
					zap.String("message_id", msg.ID),
					zap.Error(err))
				continue
			}

			if !c.autoAck {
				continue
			}
			if err := c.client.Ack(ctx, c.stream, c.group, msg.ID); err != nil {
				c.logger.Error("Error acknowledging message",
					zap.String("message_id", msg.ID),
					zap.Error(err))
			}
		}
	}
}
