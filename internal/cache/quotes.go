// Package cache keeps recently computed quotes in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/codr1/tidyquote/internal/models"
)

const keyPrefix = "quote:"

// QuoteCache stores quote results by key. A miss is (nil, nil).
type QuoteCache interface {
	Get(ctx context.Context, key string) (*models.QuoteResult, error)
	Set(ctx context.Context, key string, result models.QuoteResult) error
}

type RedisQuoteCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects to addr and pings it.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return client, nil
}

func NewRedisQuoteCache(client *redis.Client, ttl time.Duration) *RedisQuoteCache {
	return &RedisQuoteCache{client: client, ttl: ttl}
}

func (c *RedisQuoteCache) Get(ctx context.Context, key string) (*models.QuoteResult, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var result models.QuoteResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return nil, fmt.Errorf("decode cached quote: %w", err)
	}
	return &result, nil
}

func (c *RedisQuoteCache) Set(ctx context.Context, key string, result models.QuoteResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+key, data, c.ttl).Err()
}

// Key identifies a quote by snapshot version, draft content and the minute it
// is priced at. Short-notice charges depend on the time, so a draft without
// QuotedAt only hits the cache within the same minute.
func Key(snapshotVersion string, draft models.BookingDraft, now time.Time) (string, error) {
	at := now
	if draft.QuotedAt != nil {
		at = *draft.QuotedAt
	}
	body, err := json.Marshal(draft)
	if err != nil {
		return "", fmt.Errorf("encode draft: %w", err)
	}
	sum := sha256.Sum256(body)
	return fmt.Sprintf("%s:%d:%s", snapshotVersion, at.UTC().Truncate(time.Minute).Unix(), hex.EncodeToString(sum[:])), nil
}
