package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"ms-registration/internal/logger"

	"github.com/go-redis/redis/v8"
)

const (
	actorCachePrefix = "auth_actor:"
	// MaxCacheTTL bounds how long a verified token is trusted without
	// going back to the verifier.
	MaxCacheTTL = 5 * time.Minute
)

// CachingVerifier memoizes verified tokens in Redis keyed by token hash.
type CachingVerifier struct {
	Next   TokenVerifier
	Client *redis.Client
	Logger *logger.Logger
	Now    func() time.Time
}

func NewCachingVerifier(next TokenVerifier, client *redis.Client, log *logger.Logger) *CachingVerifier {
	return &CachingVerifier{Next: next, Client: client, Logger: log, Now: time.Now}
}

type cachedActor struct {
	Actor     Actor     `json:"actor"`
	ExpiresAt time.Time `json:"expires_at"`
}

func cacheKey(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return actorCachePrefix + hex.EncodeToString(sum[:])
}

func (v *CachingVerifier) Verify(ctx context.Context, rawToken string) (Actor, time.Time, error) {
	key := cacheKey(rawToken)

	if a, exp, ok := v.lookup(ctx, key); ok {
		return a, exp, nil
	}

	a, exp, err := v.Next.Verify(ctx, rawToken)
	if err != nil {
		return Actor{}, time.Time{}, err
	}

	ttl := MaxCacheTTL
	if !exp.IsZero() {
		if left := exp.Sub(v.Now()); left < ttl {
			ttl = left
		}
	}
	if ttl > 0 {
		if err := v.store(ctx, key, cachedActor{Actor: a, ExpiresAt: exp}, ttl); err != nil {
			v.Logger.Warn("AUTH", fmt.Sprintf("Failed to cache verified token: %v", err))
		}
	}
	return a, exp, nil
}

func (v *CachingVerifier) lookup(ctx context.Context, key string) (Actor, time.Time, bool) {
	raw, err := v.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return Actor{}, time.Time{}, false
	}
	if err != nil {
		v.Logger.Warn("AUTH", fmt.Sprintf("Token cache read failed: %v", err))
		return Actor{}, time.Time{}, false
	}

	var c cachedActor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Actor{}, time.Time{}, false
	}
	if !c.ExpiresAt.IsZero() && !v.Now().Before(c.ExpiresAt) {
		return Actor{}, time.Time{}, false
	}
	return c.Actor, c.ExpiresAt, true
}

func (v *CachingVerifier) store(ctx context.Context, key string, c cachedActor, ttl time.Duration) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return v.Client.Set(ctx, key, raw, ttl).Err()
}
