package health

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Redis probes the rate-limit and phone-cache store.
type Redis struct {
	client *redis.Client
}

// NewRedis returns a checker over a connected client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// HealthCheck sends PING within the probe timeout.
func (r *Redis) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}
