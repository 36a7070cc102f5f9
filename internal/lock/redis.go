package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ms-registration/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes the key only while it still carries our token, so a
// holder whose TTL lapsed cannot free somebody else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the TTL only while the key still carries our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker holds locks with a TTL and extends it every TTL/3 until the
// holder releases, so long cascades keep their lease.
type RedisLocker struct {
	Client       *redis.Client
	Logger       *logger.Logger
	TTL          time.Duration
	Wait         time.Duration
	PollInterval time.Duration
}

func NewRedisLocker(client *redis.Client, log *logger.Logger, ttl, wait, poll time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if poll <= 0 {
		poll = 25 * time.Millisecond
	}
	return &RedisLocker{
		Client:       client,
		Logger:       log,
		TTL:          ttl,
		Wait:         wait,
		PollInterval: poll,
	}
}

// Acquire polls SETNX until it wins, the wait budget runs out or ctx ends.
func (r *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	token := uuid.NewString()

	if r.Wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Wait)
		defer cancel()
	}

	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()

	for {
		ok, err := r.Client.SetNX(ctx, key, token, r.TTL).Result()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("set %s: %w", key, err)
		}
		if ok {
			r.Logger.Debug("REDIS", fmt.Sprintf("Acquired %s", key))
			stop := make(chan struct{})
			go r.renew(key, token, stop)
			return r.releaser(key, token, stop), nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrTimeout
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *RedisLocker) renew(key, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(r.TTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		n, err := refreshScript.Run(ctx, r.Client, []string{key}, token, r.TTL.Milliseconds()).Int()
		cancel()
		if err != nil {
			r.Logger.Warn("REDIS", fmt.Sprintf("Renew %s failed: %v", key, err))
			continue
		}
		if n == 0 {
			r.Logger.Warn("REDIS", fmt.Sprintf("Lost %s before release", key))
			return
		}
	}
}

func (r *RedisLocker) releaser(key, token string, stop chan struct{}) Release {
	var once sync.Once
	var err error
	return func() error {
		once.Do(func() {
			close(stop)
			// Release must work even when the caller's ctx is already done.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			err = releaseScript.Run(ctx, r.Client, []string{key}, token).Err()
			if err != nil && !errors.Is(err, redis.Nil) {
				r.Logger.Warn("REDIS", fmt.Sprintf("Release %s failed: %v", key, err))
			} else {
				err = nil
			}
		})
		return err
	}
}
