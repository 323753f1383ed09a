package middleware

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore connects to a local Redis or skips the test, returning a
// cleanup-registered store.
func redisStore(t *testing.T) (*RedisRateLimitStore, *redis.Client) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skip("redis not available")
	}
	t.Cleanup(func() { client.Close() })

	return NewRedisRateLimitStore(client, nil), client
}

func uniqueKey(t *testing.T) string {
	return fmt.Sprintf("%s-%d", t.Name(), time.Now().UnixNano())
}

func TestRedisRateLimitStore_SharedWindow(t *testing.T) {
	store, client := redisStore(t)
	ctx := context.Background()
	key := uniqueKey(t)
	defer client.Del(ctx, "ratelimit:"+key)

	config := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}
	for i := 0; i < 3; i++ {
		if allowed, _ := store.Allow(ctx, key, config); !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	allowed, retryAfter := store.Allow(ctx, key, config)
	if allowed {
		t.Error("request over the limit should be blocked")
	}
	if retryAfter < 1 || retryAfter > 60 {
		t.Errorf("retryAfter = %d, want within the window", retryAfter)
	}
}

func TestRedisRateLimitStore_KeysIsolated(t *testing.T) {
	store, client := redisStore(t)
	ctx := context.Background()
	k1, k2 := uniqueKey(t)+"-a", uniqueKey(t)+"-b"
	defer client.Del(ctx, "ratelimit:"+k1, "ratelimit:"+k2)

	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	store.Allow(ctx, k1, config)

	if allowed, _ := store.Allow(ctx, k2, config); !allowed {
		t.Error("a fresh key must not inherit another key's count")
	}
	if allowed, _ := store.Allow(ctx, k1, config); allowed {
		t.Error("the first key should be exhausted")
	}
}

func TestRedisRateLimitStore_WindowExpiry(t *testing.T) {
	store, client := redisStore(t)
	ctx := context.Background()
	key := uniqueKey(t)
	defer client.Del(ctx, "ratelimit:"+key)

	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 100 * time.Millisecond}
	store.Allow(ctx, key, config)
	if allowed, _ := store.Allow(ctx, key, config); allowed {
		t.Fatal("second request should be blocked")
	}

	time.Sleep(150 * time.Millisecond)

	if allowed, _ := store.Allow(ctx, key, config); !allowed {
		t.Error("the count should expire with the window")
	}
}

func TestRedisRateLimitStore_FailOpen(t *testing.T) {
	// No Redis behind this address; the limiter must let traffic through
	// rather than take the API down with it.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()
	store := NewRedisRateLimitStore(client, nil)

	allowed, retryAfter := store.Allow(context.Background(), "any", DefaultGlobalLimit())
	if !allowed || retryAfter != 0 {
		t.Errorf("Allow = (%v, %d), want fail-open (true, 0)", allowed, retryAfter)
	}
}

func TestRedisRateLimitStore_FailOpenCountsError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	m := NewMetrics()
	store := NewRedisRateLimitStore(client, m)
	store.Allow(context.Background(), "any", DefaultGlobalLimit())

	family := gatherFamily(t, m, MetricRateLimitRedisErrors)
	if family == nil || family.Metric[0].Counter.GetValue() != 1 {
		t.Error("expected the fail-open to be counted")
	}
}
