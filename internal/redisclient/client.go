package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"festival-ticketing/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	sessionKeyPrefix    = "purchase_session:"
	errorCountKeyPrefix = "errorCount:"
	ticketInfoKeyPrefix = "ticket_info:"
)

type Client struct {
	rdb *redis.Client
}

// NewClient connects to Redis and verifies the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func sessionKey(ticketID, buyerID int64) string {
	return fmt.Sprintf("%s%d:%d", sessionKeyPrefix, ticketID, buyerID)
}

// AddPurchaseSession stores the session won by (ticket, buyer) with a TTL.
// One session per pair; abandoning it lets the TTL reclaim the slot.
func (c *Client) AddPurchaseSession(ctx context.Context, session models.PurchaseSession, ttl time.Duration) error {
	value, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal purchase session: %w", err)
	}
	if err := c.rdb.Set(ctx, sessionKey(session.TicketID, session.BuyerID), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store purchase session: %w", err)
	}
	return nil
}

// GetPurchaseSession returns the live session for (ticket, buyer), or nil if
// none exists or it expired.
func (c *Client) GetPurchaseSession(ctx context.Context, ticketID, buyerID int64) (*models.PurchaseSession, error) {
	value, err := c.rdb.Get(ctx, sessionKey(ticketID, buyerID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase session: %w", err)
	}

	var session models.PurchaseSession
	if err := json.Unmarshal([]byte(value), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal purchase session: %w", err)
	}
	return &session, nil
}

// IncrErrorCount increments the recovery error counter of a stream message
func (c *Client) IncrErrorCount(ctx context.Context, messageID string) (int64, error) {
	return c.rdb.Incr(ctx, errorCountKeyPrefix+messageID).Result()
}

// GetErrorCount returns the recovery error counter of a stream message
func (c *Client) GetErrorCount(ctx context.Context, messageID string) (int64, error) {
	count, err := c.rdb.Get(ctx, errorCountKeyPrefix+messageID).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}

// SetTicketInfo caches a ticket's sale window and remaining stock. Refreshed
// by the scheduler's cache-refresh trigger shortly before the sale opens.
func (c *Client) SetTicketInfo(ctx context.Context, info models.TicketScheduleMessage) error {
	key := fmt.Sprintf("%s%d", ticketInfoKeyPrefix, info.TicketID)

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, "start_sale_time", info.StartSaleTime.Format(time.RFC3339))
	pipe.HSet(ctx, key, "end_sale_time", info.EndSaleTime.Format(time.RFC3339))
	pipe.HSet(ctx, key, "remain_stock", info.RemainStock)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache ticket info: %w", err)
	}
	return nil
}

// AdjustTicketRemainStock shifts the cached remaining stock by delta so the
// count tracks reservations and compensations after the scheduler seeded it.
// A ticket that was never cached is left alone.
func (c *Client) AdjustTicketRemainStock(ctx context.Context, ticketID int64, delta int64) error {
	key := fmt.Sprintf("%s%d", ticketInfoKeyPrefix, ticketID)

	exists, err := c.rdb.HExists(ctx, key, "remain_stock").Result()
	if err != nil {
		return fmt.Errorf("failed to check ticket cache: %w", err)
	}
	if !exists {
		return nil
	}

	if err := c.rdb.HIncrBy(ctx, key, "remain_stock", delta).Err(); err != nil {
		return fmt.Errorf("failed to adjust cached stock: %w", err)
	}
	return nil
}

// GetTicketRemainStock returns the cached remaining stock for a ticket, or
// false when the ticket has not been cached yet.
func (c *Client) GetTicketRemainStock(ctx context.Context, ticketID int64) (int, bool, error) {
	key := fmt.Sprintf("%s%d", ticketInfoKeyPrefix, ticketID)

	remain, err := c.rdb.HGet(ctx, key, "remain_stock").Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return remain, true, nil
}
