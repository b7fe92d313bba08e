package round

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/orchai-labs/oracle-hub/pkg/models"
)

const reportsKey = "round:reports"

// History retains the most recent round reports for the admin surface.
type History interface {
	Append(ctx context.Context, report models.RoundReport) error
	// Recent returns up to limit reports, newest first.
	Recent(ctx context.Context, limit int) ([]models.RoundReport, error)
}

// Compile-time check to ensure RedisHistory implements History
var _ History = (*RedisHistory)(nil)

// RedisHistory keeps a capped list of reports; LPUSH+LTRIM makes index 0
// the newest.
type RedisHistory struct {
	client *redis.Client
	cap    int
}

func NewRedisHistory(client *redis.Client, cap int) *RedisHistory {
	return &RedisHistory{client: client, cap: cap}
}

func (h *RedisHistory) Append(ctx context.Context, report models.RoundReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report %d: %w", report.Round, err)
	}

	pipe := h.client.Pipeline()
	pipe.LPush(ctx, reportsKey, payload)
	pipe.LTrim(ctx, reportsKey, 0, int64(h.cap-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append report %d: %w", report.Round, err)
	}
	return nil
}

func (h *RedisHistory) Recent(ctx context.Context, limit int) ([]models.RoundReport, error) {
	if limit <= 0 {
		limit = h.cap
	}
	entries, err := h.client.LRange(ctx, reportsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("recent reports: %w", err)
	}

	reports := make([]models.RoundReport, 0, len(entries))
	for _, e := range entries {
		var r models.RoundReport
		if err := json.Unmarshal([]byte(e), &r); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, nil
}
