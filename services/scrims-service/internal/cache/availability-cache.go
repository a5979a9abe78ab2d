package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	commoncache "github.com/scrimx/scrims/common/cache"
	apperrors "github.com/scrimx/scrims/common/errors"
)

const defaultTTL = 2 * time.Minute

type Availability struct {
	ScrimsID  string `json:"scrims_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Available int    `json:"available"`
	Total     int    `json:"total"`
}

// AvailabilityCache keeps each guild's availability as a sorted set scored by open slots.
type AvailabilityCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewAvailabilityCache(client *commoncache.RedisClient, ttl time.Duration) *AvailabilityCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &AvailabilityCache{rdb: client.GetClient(), ttl: ttl}
}

func availabilityKey(guildID string) string {
	return fmt.Sprintf("scrims:availability:%s", guildID)
}

func (c *AvailabilityCache) Store(ctx context.Context, guildID string, entries []Availability) error {
	key := availabilityKey(guildID)

	members := make([]redis.Z, 0, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal availability")
		}
		members = append(members, redis.Z{Score: float64(e.Available), Member: string(data)})
	}

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(members) > 0 {
			pipe.ZAdd(ctx, key, members...)
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeCacheError, "failed to store availability")
	}
	return nil
}

// Get returns the cached entries most-available first. The bool is false on a miss.
func (c *AvailabilityCache) Get(ctx context.Context, guildID string) ([]Availability, bool, error) {
	raw, err := c.rdb.ZRevRange(ctx, availabilityKey(guildID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to read availability")
	}
	if len(raw) == 0 {
		return nil, false, nil
	}

	out := make([]Availability, 0, len(raw))
	for _, member := range raw {
		var a Availability
		if err := json.Unmarshal([]byte(member), &a); err != nil {
			return nil, false, apperrors.Wrap(err, apperrors.CodeObjectUnmarshalError, "failed to unmarshal availability")
		}
		out = append(out, a)
	}
	return out, true, nil
}

func (c *AvailabilityCache) Invalidate(ctx context.Context, guildID string) error {
	if err := c.rdb.Del(ctx, availabilityKey(guildID)).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeCacheError, "failed to invalidate availability")
	}
	return nil
}
