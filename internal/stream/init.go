package stream

import (
	"context"
	"time"

	"festival-ticketing/config"
	"festival-ticketing/internal/util"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	initLockKey = "streams:initialized"
	initLockTTL = 30 * time.Second
)

// InitStreams creates the four streams and their consumer groups. Every
// replica calls it at boot; a short-TTL set-if-absent lock lets exactly one
// replica do the work per window while the others proceed. EnsureGroup is
// idempotent, so losing the race after a crashed initializer is still safe.
func InitStreams(ctx context.Context, rdb *redis.Client, client *Client, streams config.StreamsConfig) error {
	logger := util.NamedLogger("stream-init")

	acquired, err := rdb.SetNX(ctx, initLockKey, "1", initLockTTL).Result()
	if err != nil {
		return err
	}
	if !acquired {
		logger.Info("Stream initialization already performed by another replica")
		return nil
	}

	pairs := []struct {
		stream string
		group  string
	}{
		{streams.FestivalSchedule, streams.FestivalScheduleGroup},
		{streams.TicketSchedule, streams.TicketScheduleGroup},
		{streams.PaymentRequest, streams.PaymentRequestGroup},
		{streams.PaymentResult, streams.PaymentResultGroup},
	}

	for _, p := range pairs {
		if err := client.EnsureGroup(ctx, p.stream, p.group); err != nil {
			return err
		}
		logger.Info("Stream initialized", zap.String("stream", p.stream), zap.String("group", p.group))
	}
	return nil
}
