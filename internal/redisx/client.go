package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/stonefab-orders/internal/orders"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb redis.Cmdable, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// ---- status cache ----

type CachedStatus struct {
	QuoteID     string        `json:"quote_id"`
	Status      orders.Status `json:"status"`
	OrderNumber string        `json:"order_number,omitempty"`
	Version     int           `json:"version"`
}

// StatusCache keeps the last committed status per quote. The DB stays the
// source of truth; misses fall back to it.
type StatusCache struct{ RDB redis.Cmdable }

func (c StatusCache) Put(ctx context.Context, q orders.Quote) error {
	b, err := json.Marshal(CachedStatus{QuoteID: q.ID, Status: q.Status, OrderNumber: q.OrderNumber, Version: q.Version})
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeyQuoteStatus, q.ID), b, TTLStatusCache).Err()
}

// Get returns ok=false on a miss.
func (c StatusCache) Get(ctx context.Context, quoteID string) (CachedStatus, bool, error) {
	var out CachedStatus
	s, err := c.RDB.Get(ctx, fmt.Sprintf(KeyQuoteStatus, quoteID)).Result()
	if errors.Is(err, redis.Nil) {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return out, false, err
	}
	return out, true, nil
}

func (c StatusCache) Invalidate(ctx context.Context, quoteID string) error {
	return c.RDB.Del(ctx, fmt.Sprintf(KeyQuoteStatus, quoteID)).Err()
}

// ---- idempotency ----

type Idempotency struct{ RDB redis.Cmdable }

// Claim binds key to value unless already bound, returning the bound value.
func (i Idempotency) Claim(ctx context.Context, key, value string) (bound string, fresh bool, err error) {
	k := fmt.Sprintf(KeyIdemPayment, key)
	ok, err := i.RDB.SetNX(ctx, k, value, TTLIdempotency).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return value, true, nil
	}
	bound, err = i.RDB.Get(ctx, k).Result()
	if err != nil {
		return "", false, err
	}
	return bound, false, nil
}

// ---- dedup ----

type Dedup struct{ RDB redis.Cmdable }

func (d Dedup) Seen(ctx context.Context, scope, id string) (bool, error) {
	return Exists(ctx, d.RDB, fmt.Sprintf(KeyDedup, scope, id))
}

func (d Dedup) Mark(ctx context.Context, scope, id string) error {
	return d.RDB.Set(ctx, fmt.Sprintf(KeyDedup, scope, id), "1", TTLDedup).Err()
}

// ---- lock ----

type Locker struct {
	RDB   redis.Cmdable
	Owner string
}

// TryLock takes name for ttl. It never waits.
func (l Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return l.RDB.SetNX(ctx, fmt.Sprintf(KeyLock, name), l.Owner, ttl).Result()
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Unlock releases name only if this owner still holds it.
func (l Locker) Unlock(ctx context.Context, name string) error {
	return unlockScript.Run(ctx, l.RDB, []string{fmt.Sprintf(KeyLock, name)}, l.Owner).Err()
}
