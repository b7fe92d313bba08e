package feeder

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/orchai-labs/oracle-hub/pkg/models"
)

// walkSpread bounds the per-round random walk applied to each base price.
const walkSpread = 50

// Feeder publishes one synthetic round batch per interval: every configured
// key gets a random-walked price with a strictly increasing timestamp, so
// the engine accepts each batch as fresh.
type Feeder struct {
	logger   *zap.Logger
	writer   KafkaWriter
	source   string
	keys     []string
	interval time.Duration
	rand     Rand
	clock    Clock
	prices   map[string]uint64
}

func NewFeeder(
	logger *zap.Logger,
	writer KafkaWriter,
	source string,
	keys []string,
	basePrices map[string]uint64,
	interval time.Duration,
	rnd Rand,
	clock Clock,
) *Feeder {
	prices := make(map[string]uint64, len(keys))
	for _, key := range keys {
		if p, ok := basePrices[key]; ok {
			prices[key] = p
		} else {
			prices[key] = 1_000_000
		}
	}
	return &Feeder{
		logger:   logger,
		writer:   writer,
		source:   source,
		keys:     keys,
		interval: interval,
		rand:     rnd,
		clock:    clock,
		prices:   prices,
	}
}

func (f *Feeder) Run(ctx context.Context) {
	f.logger.Info("Feeder started", zap.Strings("keys", f.keys), zap.Duration("interval", f.interval))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if len(f.keys) == 0 {
				f.clock.Sleep(1 * time.Second)
				continue
			}

			batch := f.nextBatch()
			payload, err := json.Marshal(batch)
			if err != nil {
				f.logger.Error("JSON Marshal Error", zap.Error(err))
				continue
			}

			// A constant key keeps all batches on one partition so the
			// engine sees them in publish order.
			err = f.writer.WriteMessages(ctx, kafka.Message{
				Key:   []byte("rounds"),
				Value: payload,
			})
			if err != nil {
				f.logger.Error("Kafka Write Error", zap.Error(err))
			} else {
				f.logger.Debug("Published batch", zap.Int("entries", len(batch.Entries)))
			}

			f.clock.Sleep(f.interval)
		}
	}
}

func (f *Feeder) nextBatch() models.RoundBatch {
	ts := uint64(f.clock.Now().Unix())
	entries := make([]models.RoundEntry, 0, len(f.keys))

	for _, key := range f.keys {
		f.prices[key] = f.walk(f.prices[key])
		entries = append(entries, models.RoundEntry{
			Key:       key,
			Price:     strconv.FormatUint(f.prices[key], 10),
			Timestamp: ts,
		})
	}

	return models.RoundBatch{Source: f.source, Entries: entries}
}

// walk moves the price by up to walkSpread in either direction, never
// below 1: a zero price would be rejected upstream.
func (f *Feeder) walk(price uint64) uint64 {
	delta := int64(f.rand.Intn(2*walkSpread+1)) - walkSpread
	if delta < 0 && uint64(-delta) >= price {
		return 1
	}
	return uint64(int64(price) + delta)
}
