package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/orchai-labs/oracle-hub/pkg/models"
)

const subscribersKey = "subscribers"

// Compile-time check to ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Snapshot(ctx context.Context, key string) ([]models.Subscriber, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	var subs []models.Subscriber
	for _, s := range all {
		if s.WantsKey(key) {
			subs = append(subs, s)
		}
	}
	return subs, nil
}

func (r *RedisStore) Register(ctx context.Context, sub models.Subscriber) error {
	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal subscriber %s: %w", sub.ID, err)
	}
	if err := r.client.HSet(ctx, subscribersKey, sub.ID, payload).Err(); err != nil {
		return fmt.Errorf("%w: register %s: %v", ErrUnavailable, sub.ID, err)
	}
	return nil
}

func (r *RedisStore) Unregister(ctx context.Context, id string) error {
	n, err := r.client.HDel(ctx, subscribersKey, id).Result()
	if err != nil {
		return fmt.Errorf("%w: unregister %s: %v", ErrUnavailable, id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*models.Subscriber, error) {
	payload, err := r.client.HGet(ctx, subscribersKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrUnavailable, id, err)
	}

	var sub models.Subscriber
	if err := json.Unmarshal([]byte(payload), &sub); err != nil {
		return nil, fmt.Errorf("decode subscriber %s: %w", id, err)
	}
	return &sub, nil
}

func (r *RedisStore) List(ctx context.Context) ([]models.Subscriber, error) {
	entries, err := r.client.HGetAll(ctx, subscribersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrUnavailable, err)
	}

	subs := make([]models.Subscriber, 0, len(entries))
	for id, payload := range entries {
		var sub models.Subscriber
		if err := json.Unmarshal([]byte(payload), &sub); err != nil {
			return nil, fmt.Errorf("decode subscriber %s: %w", id, err)
		}
		subs = append(subs, sub)
	}
	// HGETALL order is arbitrary; keep listings stable.
	sort.Slice(subs, func(i, j int) bool { return subs[i].Name < subs[j].Name })
	return subs, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
