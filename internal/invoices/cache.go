package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix = "invoices:detail:"
	genKeyPrefix   = "invoices:detail-gen:"
	genTTL         = 24 * time.Hour
)

// Cache keeps enriched invoice details in Redis. A nil *Cache is a no-op;
// Redis failures degrade to cache misses.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(id uuid.UUID) string {
	return cacheKeyPrefix + id.String()
}

func genKey(id uuid.UUID) string {
	return genKeyPrefix + id.String()
}

// Generation is the invalidation counter of an invoice. Read it before
// loading from the database and pass it to Set.
type Generation struct {
	id    uuid.UUID
	value int64
	ok    bool
}

// Generation reads the current invalidation counter for id.
func (c *Cache) Generation(ctx context.Context, id uuid.UUID) Generation {
	if c == nil || c.client == nil {
		return Generation{}
	}
	v, err := c.client.Get(ctx, genKey(id)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return Generation{id: id, ok: true}
	case err != nil:
		return Generation{}
	}
	return Generation{id: id, value: v, ok: true}
}

// Get returns a cached detail.
func (c *Cache) Get(ctx context.Context, id uuid.UUID) (Detail, bool) {
	if c == nil || c.client == nil {
		return Detail{}, false
	}
	payload, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		return Detail{}, false
	}
	var detail Detail
	if err := json.Unmarshal(payload, &detail); err != nil {
		_ = c.client.Del(ctx, cacheKey(id)).Err()
		return Detail{}, false
	}
	return detail, true
}

// Set stores detail under its invoice id unless the invoice was invalidated
// after gen was read. A detail loaded before a concurrent write committed is
// dropped instead of overwriting the invalidation.
func (c *Cache) Set(ctx context.Context, detail Detail, gen Generation) {
	if c == nil || c.client == nil || !gen.ok || gen.id != detail.ID {
		return
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return
	}
	key := genKey(detail.ID)
	_ = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen.value {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(detail.ID), raw, c.ttl)
			return nil
		})
		return err
	}, key)
}

// Invalidate drops cached details for ids.
func (c *Cache) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	if c == nil || c.client == nil || len(ids) == 0 {
		return
	}
	_, _ = c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Incr(ctx, genKey(id))
			pipe.Expire(ctx, genKey(id), genTTL)
			pipe.Del(ctx, cacheKey(id))
		}
		return nil
	})
}
