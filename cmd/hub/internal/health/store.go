package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/orchai-labs/oracle-hub/pkg/models"
)

const healthKey = "health"

// Store persists per-subscriber health states. A missing state reads back
// as the zero value, i.e. Healthy.
type Store interface {
	Load(ctx context.Context, subscriberID string) (models.HealthState, error)
	Save(ctx context.Context, state models.HealthState) error
	Delete(ctx context.Context, subscriberID string) error
	Close() error
}

// Compile-time check to ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Load(ctx context.Context, subscriberID string) (models.HealthState, error) {
	state := models.HealthState{SubscriberID: subscriberID}

	payload, err := r.client.HGet(ctx, healthKey, subscriberID).Result()
	if errors.Is(err, redis.Nil) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("load health %s: %w", subscriberID, err)
	}

	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return state, fmt.Errorf("decode health %s: %w", subscriberID, err)
	}
	return state, nil
}

func (r *RedisStore) Save(ctx context.Context, state models.HealthState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal health %s: %w", state.SubscriberID, err)
	}
	if err := r.client.HSet(ctx, healthKey, state.SubscriberID, payload).Err(); err != nil {
		return fmt.Errorf("save health %s: %w", state.SubscriberID, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, subscriberID string) error {
	if err := r.client.HDel(ctx, healthKey, subscriberID).Err(); err != nil {
		return fmt.Errorf("delete health %s: %w", subscriberID, err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
