package health

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestRedis_HealthCheckUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	checker := NewRedis(client)

	if err := checker.HealthCheck(context.Background()); err == nil {
		t.Error("expected probe to fail against an unreachable address")
	}
}

func TestRedis_HealthCheckCanceledContext(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	checker := NewRedis(client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := checker.HealthCheck(ctx); err == nil {
		t.Error("expected probe to fail with a canceled context")
	}
}
