package ingest

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/validate"
	"github.com/orchai-labs/oracle-hub/pkg/models"
)

// KafkaReader abstracts the input stream
type KafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Submitter abstracts the round controller
type Submitter interface {
	Submit(ctx context.Context, batch models.RoundBatch) (*models.RoundReport, error)
}

// Consumer feeds round batches from Kafka into the controller. One message
// is one batch; the principal travels in the batch's source field and is
// checked by the same validator as the HTTP path.
type Consumer struct {
	reader     KafkaReader
	controller Submitter
	logger     *zap.Logger
}

func NewConsumer(reader KafkaReader, controller Submitter, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader:     reader,
		controller: controller,
		logger:     logger,
	}
}

// Run blocks until ctx is canceled. Malformed or unauthorized batches are
// logged and skipped; the stream keeps moving.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Round ingest started")

	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			c.logger.Error("Kafka Read Error", zap.Error(err))
			continue
		}

		var batch models.RoundBatch
		if err := json.Unmarshal(m.Value, &batch); err != nil {
			c.logger.Error("JSON Unmarshal Error", zap.Error(err), zap.String("key", string(m.Key)))
			continue
		}

		report, err := c.controller.Submit(ctx, batch)
		if err != nil {
			if errors.Is(err, validate.ErrUnauthorized) {
				c.logger.Warn("Dropping round batch from unauthorized source", zap.String("key", string(m.Key)))
				continue
			}
			c.logger.Error("Round submission failed", zap.Error(err))
			continue
		}

		c.logger.Debug("Round ingested",
			zap.Uint64("round", report.Round),
			zap.Int("committed", report.Committed()),
			zap.Int("deliveries", len(report.Outcomes)))
	}
}
