package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/inkbook/inkbook/internal/platform/apperr"
)

// ErrNotAcquired is returned when the lock could not be taken before the
// wait timeout or context deadline.
var ErrNotAcquired = errors.New("lock not acquired")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a single-instance Redis lock (SET NX PX with a random
// token). The TTL bounds how long a crashed holder blocks others, so fn must
// finish well within it.
type RedisLocker struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	setNX  func(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
}

type RedisOption func(*RedisLocker)

// WithWait bounds how long Serialize waits for a held lock.
func WithWait(d time.Duration) RedisOption {
	return func(l *RedisLocker) { l.wait = d }
}

// WithRetryInterval sets the polling interval while waiting.
func WithRetryInterval(d time.Duration) RedisOption {
	return func(l *RedisLocker) { l.retry = d }
}

func NewRedisLocker(rdb redis.UniversalClient, prefix string, ttl time.Duration, opts ...RedisOption) *RedisLocker {
	if prefix == "" {
		prefix = "lock"
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	l := &RedisLocker{rdb: rdb, prefix: prefix, ttl: ttl, wait: ttl, retry: 25 * time.Millisecond}
	l.setNX = func(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
		return rdb.SetNX(ctx, key, token, ttl).Result()
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) Serialize(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	redisKey := l.prefix + ":" + key
	token := uuid.NewString()

	if err := l.acquire(ctx, redisKey, token); err != nil {
		switch {
		case errors.Is(err, ErrNotAcquired):
			return apperr.Wrap(apperr.KindConflict, "resource is busy, retry", fmt.Errorf("lock %q: %w", key, err))
		case ctx.Err() != nil:
			return fmt.Errorf("lock %q: %w", key, err)
		default:
			return apperr.Wrap(apperr.KindInternal, "lock backend unavailable", fmt.Errorf("lock %q: %w", key, err))
		}
	}
	defer func() {
		// Release on a fresh context so a cancelled request still frees the key.
		rctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.rdb, []string{redisKey}, token).Err()
	}()

	return fn(ctx)
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.setNX(ctx, key, token, l.ttl)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
