// Package phonecache stores verified phone numbers per device so a returning
// session can skip straight to choosing a report type.
package phonecache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL keeps a verified number for 90 days of inactivity before the next
// session has to verify again.
const TTL = 90 * 24 * time.Hour

// Store persists one verified phone number per device. Load returns an empty
// string on a miss.
type Store interface {
	Load(ctx context.Context, deviceID string) (string, error)
	Save(ctx context.Context, deviceID, phone string) error
	Delete(ctx context.Context, deviceID string) error
}

// RedisStore implements Store on Redis with a sliding TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(deviceID string) string {
	return "verified_phone:" + deviceID
}

// Load returns the verified phone for a device, refreshing its TTL.
func (s *RedisStore) Load(ctx context.Context, deviceID string) (string, error) {
	phone, err := s.client.GetEx(ctx, key(deviceID), TTL).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load verified phone: %w", err)
	}
	return phone, nil
}

// Save records the verified phone for a device.
func (s *RedisStore) Save(ctx context.Context, deviceID, phone string) error {
	if err := s.client.Set(ctx, key(deviceID), phone, TTL).Err(); err != nil {
		return fmt.Errorf("failed to save verified phone: %w", err)
	}
	return nil
}

// Delete forgets the verified phone for a device.
func (s *RedisStore) Delete(ctx context.Context, deviceID string) error {
	if err := s.client.Del(ctx, key(deviceID)).Err(); err != nil {
		return fmt.Errorf("failed to delete verified phone: %w", err)
	}
	return nil
}

// InMemoryStore is an in-memory implementation of Store for tests and
// development. Thread-safe via RWMutex.
type InMemoryStore struct {
	mu     sync.RWMutex
	phones map[string]string
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{phones: make(map[string]string)}
}

// Load returns the verified phone for a device.
func (s *InMemoryStore) Load(ctx context.Context, deviceID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phones[deviceID], nil
}

// Save records the verified phone for a device.
func (s *InMemoryStore) Save(ctx context.Context, deviceID, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phones[deviceID] = phone
	return nil
}

// Delete forgets the verified phone for a device.
func (s *InMemoryStore) Delete(ctx context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.phones, deviceID)
	return nil
}
