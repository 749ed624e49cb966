// Package authlimit implements proxy.AuthLimiter: a fixed-window attempt
// counter bounding how many SASL authenticate attempts one remote address
// may make per window, backed by Redis so the limit holds across every
// edgekafkad instance fronting the same virtual cluster, with an
// in-process fallback for single-instance or Redis-less deployments.
package authlimit

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "edgekafka:authlimit:"

// RedisLimiter counts attempts per remote host in a fixed window using
// INCR + an EXPIRE set only on the window's first attempt, the standard
// go-redis fixed-window counter pattern.
type RedisLimiter struct {
	client *redis.Client
	max    int64
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, max: int64(max), window: window}
}

// Allow reports whether remoteAddr may attempt another SASL authenticate.
// A Redis error is returned verbatim, not swallowed — proxy.FrontendHandler
// treats any non-nil error from Allow as fail-closed.
func (r *RedisLimiter) Allow(ctx context.Context, remoteAddr string) (bool, error) {
	key := keyPrefix + hostOf(remoteAddr)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("authlimit: redis incr: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			return false, fmt.Errorf("authlimit: redis expire: %w", err)
		}
	}
	return count <= r.max, nil
}

// LocalLimiter is an in-process fixed-window limiter for deployments with
// no Redis endpoint configured — per-instance only, so it bounds attempts
// against one edgekafkad process rather than a fleet, but it's still a
// real bound rather than no gating at all.
type LocalLimiter struct {
	max    int64
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	count      int64
	windowEnds time.Time
}

func NewLocalLimiter(max int, window time.Duration) *LocalLimiter {
	return &LocalLimiter{max: int64(max), window: window, buckets: make(map[string]*bucket)}
}

func (l *LocalLimiter) Allow(ctx context.Context, remoteAddr string) (bool, error) {
	host := hostOf(remoteAddr)
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[host]
	if !ok || now.After(b.windowEnds) {
		b = &bucket{windowEnds: now.Add(l.window)}
		l.buckets[host] = b
	}
	b.count++
	return b.count <= l.max, nil
}

func hostOf(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
