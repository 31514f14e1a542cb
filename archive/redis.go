/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const recentKey = "davinci:games:recent"

// Redis stores each record under its own expiring key and keeps a capped
// list of the most recent ones.
type Redis struct {
	client *redis.Client
	size   int
	ttl    time.Duration
}

// NewRedis keeps up to size records in the recent list. A ttl of zero
// keeps individual game keys forever.
func NewRedis(client *redis.Client, size int, ttl time.Duration) *Redis {
	if size < 1 {
		size = 1
	}

	return &Redis{client: client, size: size, ttl: ttl}
}

func gameKey(rec Record) string {
	return fmt.Sprintf("davinci:game:%s:%d", rec.RoomID, rec.FinishedAt.Unix())
}

func (r *Redis) Record(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, gameKey(rec), data, r.ttl)
	pipe.LPush(ctx, recentKey, data)
	pipe.LTrim(ctx, recentKey, 0, int64(r.size-1))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store record for room %s: %w", rec.RoomID, err)
	}

	return nil
}

func (r *Redis) Recent(ctx context.Context, n int) ([]Record, error) {
	stop := int64(n - 1)
	if n <= 0 {
		stop = -1
	}

	values, err := r.client.LRange(ctx, recentKey, 0, stop).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("list recent games: %w", err)
	}

	out := make([]Record, 0, len(values))
	for _, v := range values {
		var rec Record
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, rec)
	}

	return out, nil
}
