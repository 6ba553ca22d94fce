package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"festival-ticketing/internal/util"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const payloadField = "payload"

// Message is one entry read from a stream through a consumer group.
type Message struct {
	ID      string
	Payload []byte
}

// PendingMessage describes a delivered-but-unacknowledged entry.
type PendingMessage struct {
	ID            string
	Consumer      string
	Idle          time.Duration
	DeliveryCount int64
}

// Client wraps the Redis stream commands the event log is built on: append,
// consumer-group management, group reads, acknowledgment, and reclaim of
// stuck messages.
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:    rdb,
		logger: util.NamedLogger("stream"),
	}
}

// EnsureGroup creates the stream (MKSTREAM) and consumer group if the stream
// does not exist yet; if it does, the group is created only when absent.
// Safe to call from every replica at boot.
func (c *Client) EnsureGroup(ctx context.Context, stream, group string) error {
	exists, err := c.rdb.Exists(ctx, stream).Result()
	if err != nil {
		return fmt.Errorf("stream existence check failed: %w", err)
	}

	if exists == 0 {
		err := c.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
		if err != nil && !isBusyGroup(err) {
			return fmt.Errorf("failed to create stream %s with group %s: %w", stream, group, err)
		}
		return nil
	}

	groups, err := c.rdb.XInfoGroups(ctx, stream).Result()
	if err != nil {
		return fmt.Errorf("failed to list groups of stream %s: %w", stream, err)
	}
	for _, g := range groups {
		if g.Name == group {
			return nil
		}
	}

	if err := c.rdb.XGroupCreate(ctx, stream, group, "0").Err(); err != nil && !isBusyGroup(err) {
		return fmt.Errorf("failed to create group %s on stream %s: %w", group, stream, err)
	}
	return nil
}

// Append marshals payload to JSON and appends it to the stream. A missing
// message id from the broker is a hard error, never swallowed.
func (c *Client) Append(ctx context.Context, stream string, payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal stream payload: %w", err)
	}

	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{payloadField: string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append to stream %s: %w", stream, err)
	}
	if id == "" {
		return "", fmt.Errorf("stream %s append returned no message id", stream)
	}

	util.StreamAppendsTotal.WithLabelValues(stream).Inc()
	return id, nil
}

// ReadGroup reads up to count undelivered messages for the consumer, blocking
// up to block. An empty slice (no error) means the poll timed out.
func (c *Client) ReadGroup(ctx context.Context, stream, group, consumer string, block time.Duration, count int64) ([]Message, error) {
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read group %s on stream %s: %w", group, stream, err)
	}

	var messages []Message
	for _, s := range res {
		for _, m := range s.Messages {
			msg, ok := decodeMessage(m)
			if !ok {
				c.logger.Warn("Skipping stream entry without payload field",
					zap.String("stream", stream),
					zap.String("message_id", m.ID))
				continue
			}
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

// Ack acknowledges a message for the group.
func (c *Client) Ack(ctx context.Context, stream, group, messageID string) error {
	if err := c.rdb.XAck(ctx, stream, group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message %s on stream %s: %w", messageID, stream, err)
	}
	return nil
}

// Pending lists up to limit pending messages of the group across the whole id
// range.
func (c *Client) Pending(ctx context.Context, stream, group string, limit int64) ([]PendingMessage, error) {
	res, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages of %s/%s: %w", stream, group, err)
	}

	pending := make([]PendingMessage, 0, len(res))
	for _, p := range res {
		pending = append(pending, PendingMessage{
			ID:            p.ID,
			Consumer:      p.Consumer,
			Idle:          p.Idle,
			DeliveryCount: p.RetryCount,
		})
	}
	return pending, nil
}

// Claim reassigns a message to consumer if it has been idle at least minIdle.
func (c *Client) Claim(ctx context.Context, stream, group, consumer, messageID string, minIdle time.Duration) error {
	err := c.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: []string{messageID},
	}).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to claim message %s on stream %s: %w", messageID, stream, err)
	}
	return nil
}

// Fetch looks up a single message by id. The second return value is false if
// the entry is no longer present in the stream (trimmed).
func (c *Client) Fetch(ctx context.Context, stream, messageID string) (Message, bool, error) {
	res, err := c.rdb.XRange(ctx, stream, messageID, messageID).Result()
	if err != nil {
		return Message{}, false, fmt.Errorf("failed to fetch message %s from stream %s: %w", messageID, stream, err)
	}
	if len(res) == 0 {
		return Message{}, false, nil
	}

	msg, ok := decodeMessage(res[0])
	if !ok {
		return Message{}, false, fmt.Errorf("message %s on stream %s has no payload field", messageID, stream)
	}
	return msg, true, nil
}

func decodeMessage(m redis.XMessage) (Message, bool) {
	raw, ok := m.Values[payloadField]
	if !ok {
		return Message{}, false
	}
	payload, ok := raw.(string)
	if !ok {
		return Message{}, false
	}
	return Message{ID: m.ID, Payload: []byte(payload)}, true
}

func isBusyGroup(err error) bool {
	// XGROUP CREATE returns BUSYGROUP when another replica won the race.
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}
