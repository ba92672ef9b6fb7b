package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/otikev/health-app/internal/domain/interval"
)

// SlotCache memoizes generated slot lists per doctor, date and slot length.
// Every write touching a doctor's schedule bumps that doctor's generation,
// which orphans all cached lists for the doctor at once.
//
// Callers resolve the key before computing and store under that same key, so
// a list computed concurrently with a write lands under the old generation.
type SlotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSlotCache(client *redis.Client, ttl time.Duration) *SlotCache {
	return &SlotCache{client: client, ttl: ttl}
}

// Key returns the cache key for the doctor's current generation.
func (c *SlotCache) Key(ctx context.Context, doctorID uuid.UUID, date string, length time.Duration) (string, error) {
	gen, err := c.client.Get(ctx, generationKey(doctorID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("reading slot cache generation: %w", err)
	}
	return fmt.Sprintf("slots:%s:%d:%s:%d", doctorID, gen, date, int64(length/time.Minute)), nil
}

// Get reports a miss with found=false and a nil error.
func (c *SlotCache) Get(ctx context.Context, key string) ([]interval.TimeInterval, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading slot cache: %w", err)
	}

	var slots []interval.TimeInterval
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, false, fmt.Errorf("decoding cached slots: %w", err)
	}
	return slots, true, nil
}

func (c *SlotCache) Set(ctx context.Context, key string, slots []interval.TimeInterval) error {
	raw, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("encoding slots: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing slot cache: %w", err)
	}
	return nil
}

// Invalidate drops every cached list for the doctor.
func (c *SlotCache) Invalidate(ctx context.Context, doctorID uuid.UUID) error {
	if err := c.client.Incr(ctx, generationKey(doctorID)).Err(); err != nil {
		return fmt.Errorf("bumping slot cache generation: %w", err)
	}
	return nil
}

func generationKey(doctorID uuid.UUID) string {
	return "slots:gen:" + doctorID.String()
}
