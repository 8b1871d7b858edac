package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"flipiq-service/internal/domain"
)

// StatusLoader resolves a join code to session flags from the source of
// truth (the session manager over the store).
type StatusLoader interface {
	CheckStatus(ctx context.Context, code string) (domain.SessionStatus, error)
}

// StatusCache fronts the session-status poll with Redis. Waiting-room
// clients hammer check_session on an interval; a short TTL keeps that load
// off the database while session transitions invalidate entries explicitly,
// so stale reads are bounded by both. Cache misses collapse through
// singleflight so one poller per code hits the loader.
//
// Keys: session:status:{code} -> "as" two flag characters ('0'/'1'),
// is_active then is_started.
type StatusCache struct {
	client *redis.Client
	loader StatusLoader
	ttl    time.Duration
	sf     singleflight.Group
}

func NewStatusCache(client *redis.Client, loader StatusLoader, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, loader: loader, ttl: ttl}
}

func (c *StatusCache) CheckStatus(ctx context.Context, code string) (domain.SessionStatus, error) {
	key := c.key(code)
	if raw, err := c.client.Get(ctx, key).Result(); err == nil {
		if status, ok := decodeStatus(raw); ok {
			return status, nil
		}
	}

	result, err, _ := c.sf.Do(code, func() (interface{}, error) {
		// Re-check in case another poller filled the key.
		if raw, err := c.client.Get(ctx, key).Result(); err == nil {
			if status, ok := decodeStatus(raw); ok {
				return status, nil
			}
		}
		status, err := c.loader.CheckStatus(ctx, code)
		if err != nil {
			return domain.SessionStatus{}, err
		}
		// Best effort; a failed SET just means the next poll misses too.
		_ = c.client.Set(ctx, key, encodeStatus(status), c.ttl).Err()
		return status, nil
	})
	if err != nil {
		return domain.SessionStatus{}, err
	}
	return result.(domain.SessionStatus), nil
}

// Invalidate drops the cached flags for a code after a lifecycle transition.
func (c *StatusCache) Invalidate(ctx context.Context, code string) {
	_ = c.client.Del(ctx, c.key(code)).Err()
}

func (c *StatusCache) key(code string) string {
	return "session:status:" + code
}

func encodeStatus(s domain.SessionStatus) string {
	raw := []byte{'0', '0'}
	if s.IsActive {
		raw[0] = '1'
	}
	if s.IsStarted {
		raw[1] = '1'
	}
	return string(raw)
}

func decodeStatus(raw string) (domain.SessionStatus, bool) {
	if len(raw) != 2 {
		return domain.SessionStatus{}, false
	}
	return domain.SessionStatus{
		IsActive:  raw[0] == '1',
		IsStarted: raw[1] == '1',
	}, true
}
