// Package lock serializes writers of the same session across server
// processes with a Redis key per session.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("timed out waiting for session lock")

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by someone else is left alone.
var releaseScript = redisv9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client   *redisv9.Client
	ttl      time.Duration
	wait     time.Duration
	interval time.Duration
}

func NewRedisLocker(client *redisv9.Client, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if wait < 0 {
		wait = 0
	}
	return &RedisLocker{
		client:   client,
		ttl:      ttl,
		wait:     wait,
		interval: 100 * time.Millisecond,
	}
}

// Acquire blocks until the session lock is held, the wait budget is spent
// (ErrLockTimeout) or ctx is done. The returned release func is safe to call
// once the request context has been cancelled.
func (l *RedisLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := lockKey(sessionID)
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis acquire lock failed: %w", err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockTimeout
		}

		timer := time.NewTimer(l.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func lockKey(sessionID string) string {
	return fmt.Sprintf("askpdf:session:lock:%s", sessionID)
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate lock token failed: %w", err)
	}
	return hex.EncodeToString(b), nil
}
