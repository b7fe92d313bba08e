package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/orchai-labs/oracle-hub/pkg/models"
)

const (
	keyPrefix = "price:"
	roundKey  = "round:counter"
)

// Compile-time check to ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Commit writes the record as a single SET so concurrent readers never see
// a partial record, and returns whatever it replaced.
func (r *RedisStore) Commit(ctx context.Context, record models.PriceRecord) (*models.PriceRecord, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal record for %s: %w", record.Key, err)
	}

	old, err := r.client.GetSet(ctx, keyPrefix+record.Key, payload).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", record.Key, err)
	}

	var prev models.PriceRecord
	if err := json.Unmarshal([]byte(old), &prev); err != nil {
		return nil, fmt.Errorf("decode previous record for %s: %w", record.Key, err)
	}
	return &prev, nil
}

func (r *RedisStore) Read(ctx context.Context, key string) (*models.PriceRecord, error) {
	payload, err := r.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	var rec models.PriceRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("decode record for %s: %w", key, err)
	}
	return &rec, nil
}

func (r *RedisStore) NextRound(ctx context.Context) (uint64, error) {
	n, err := r.client.Incr(ctx, roundKey).Result()
	if err != nil {
		return 0, fmt.Errorf("next round: %w", err)
	}
	return uint64(n), nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
