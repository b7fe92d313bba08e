package round

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/ledger"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/metrics"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/validate"
	"github.com/orchai-labs/oracle-hub/pkg/models"
)

// Fanout abstracts the dispatcher
type Fanout interface {
	Dispatch(ctx context.Context, record models.PriceRecord) []models.DeliveryOutcome
}

// Controller sequences one batch of updates into a logical round:
// authorize, pre-validate everything, then best-effort commit+dispatch of
// every accepted entry. One bad entry never withholds delivery for
// unrelated keys.
type Controller struct {
	ledger    ledger.Store
	validator *validate.Validator
	fanout    Fanout
	history   History
	logger    *zap.Logger

	// Rounds execute one at a time; cadence is driven externally.
	mu sync.Mutex
}

func NewController(store ledger.Store, v *validate.Validator, fanout Fanout, history History, logger *zap.Logger) *Controller {
	return &Controller{
		ledger:    store,
		validator: v,
		fanout:    fanout,
		history:   history,
		logger:    logger,
	}
}

// Submit processes one round batch and returns the per-entry statuses plus
// the aggregate dispatch outcomes. Only an unauthorized caller aborts the
// round; everything else is reported per entry.
func (c *Controller) Submit(ctx context.Context, batch models.RoundBatch) (*models.RoundReport, error) {
	if err := c.validator.Authorize(batch.Source); err != nil {
		metrics.RoundsUnauthorizedTotal.Inc()
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	roundNum, err := c.ledger.NextRound(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate round: %w", err)
	}
	metrics.RoundsTotal.Inc()

	type pendingCommit struct {
		idx int
		rec models.PriceRecord
	}

	// Phase 1: pre-validate the whole batch before any commit. Entries
	// already accepted in this batch overlay the ledger, so an intra-batch
	// duplicate key reads as stale (same round).
	statuses := make([]models.EntryStatus, len(batch.Entries))
	pendingByKey := make(map[string]models.PriceRecord)
	var accepted []pendingCommit

	for i, entry := range batch.Entries {
		var current *models.PriceRecord
		if rec, ok := pendingByKey[entry.Key]; ok {
			current = &rec
		} else {
			stored, rerr := c.ledger.Read(ctx, entry.Key)
			if rerr != nil && !errors.Is(rerr, ledger.ErrNotFound) {
				return nil, fmt.Errorf("read %s: %w", entry.Key, rerr)
			}
			current = stored
		}

		rec, verr := c.validator.CheckEntry(entry, roundNum, current)
		if verr != nil {
			statuses[i] = models.EntryStatus{
				Key:    entry.Key,
				Status: models.EntryRejected,
				Reason: verr.Error(),
			}
			metrics.EntriesRejectedTotal.WithLabelValues(rejectReason(verr)).Inc()
			c.logger.Info("Entry rejected",
				zap.String("key", entry.Key), zap.Uint64("round", roundNum), zap.Error(verr))
			continue
		}

		pendingByKey[entry.Key] = rec
		accepted = append(accepted, pendingCommit{idx: i, rec: rec})
		statuses[i] = models.EntryStatus{Key: entry.Key, Status: models.EntryCommitted, Round: roundNum}
	}

	// Phase 2: commit and dispatch in lexicographic key order so reports
	// are reproducible. No subscriber may depend on this order.
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].rec.Key < accepted[j].rec.Key })

	var outcomes []models.DeliveryOutcome
	for _, p := range accepted {
		prev, cerr := c.ledger.Commit(ctx, p.rec)
		if cerr != nil {
			statuses[p.idx] = models.EntryStatus{
				Key:    p.rec.Key,
				Status: models.EntryRejected,
				Reason: fmt.Sprintf("ledger commit failed: %v", cerr),
			}
			metrics.EntriesRejectedTotal.WithLabelValues("ledger").Inc()
			c.logger.Error("Commit failed", zap.String("key", p.rec.Key), zap.Error(cerr))
			continue
		}
		metrics.EntriesCommittedTotal.Inc()

		prevPrice := ""
		if prev != nil {
			prevPrice = prev.Price
		}
		c.logger.Debug("Committed",
			zap.String("key", p.rec.Key),
			zap.String("price", p.rec.Price),
			zap.String("prev_price", prevPrice),
			zap.Uint64("round", roundNum))

		outcomes = append(outcomes, c.fanout.Dispatch(ctx, p.rec)...)
	}

	report := &models.RoundReport{
		Round:      roundNum,
		Entries:    statuses,
		Outcomes:   outcomes,
		StartedAt:  start.UnixMicro(),
		FinishedAt: time.Now().UnixMicro(),
	}

	if c.history != nil {
		if herr := c.history.Append(ctx, *report); herr != nil {
			c.logger.Error("Failed to persist round report", zap.Uint64("round", roundNum), zap.Error(herr))
		}
	}

	metrics.RoundDuration.Observe(time.Since(start).Seconds())
	c.logger.Info("Round complete",
		zap.Uint64("round", roundNum),
		zap.Int("entries", len(batch.Entries)),
		zap.Int("committed", report.Committed()),
		zap.Int("deliveries", len(outcomes)),
		zap.Duration("took", time.Since(start)))

	return report, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, validate.ErrStalePrice):
		return "stale_price"
	case errors.Is(err, validate.ErrInvalidPrice):
		return "invalid_price"
	default:
		return "other"
	}
}
