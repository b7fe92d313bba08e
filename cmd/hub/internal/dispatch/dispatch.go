package dispatch

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/health"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/metrics"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/registry"
	"github.com/orchai-labs/oracle-hub/pkg/models"
)

// Deliverer pushes one committed record to one subscriber. The context
// carries the per-call deadline; implementations must return once it
// expires.
type Deliverer interface {
	Deliver(ctx context.Context, sub models.Subscriber, record models.PriceRecord) error
}

// Dispatcher fans a committed update out to every registered subscriber
// for its key. Deliveries are isolated: one subscriber's timeout or
// rejection never delays or blocks the others, and each (subscriber, key,
// round) yields exactly one outcome.
type Dispatcher struct {
	registry  registry.Store
	health    *health.Manager
	deliverer Deliverer
	timeout   time.Duration
	logger    *zap.Logger
}

func NewDispatcher(reg registry.Store, hm *health.Manager, deliverer Deliverer, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry:  reg,
		health:    hm,
		deliverer: deliverer,
		timeout:   timeout,
		logger:    logger,
	}
}

// Dispatch delivers record to the key's subscriber snapshot, skipping
// quarantined ones, and returns the full per-subscriber outcome set. One
// attempt per subscriber per round; the next round is the redelivery.
func (d *Dispatcher) Dispatch(ctx context.Context, record models.PriceRecord) []models.DeliveryOutcome {
	subs, err := d.registry.Snapshot(ctx, record.Key)
	if err != nil {
		d.logger.Error("Registry snapshot failed, skipping dispatch for key",
			zap.String("key", record.Key), zap.Uint64("round", record.Round), zap.Error(err))
		out := models.DeliveryOutcome{
			Key:    record.Key,
			Round:  record.Round,
			Status: models.DeliverySkippedRegistry,
			Detail: err.Error(),
		}
		metrics.DeliveriesTotal.WithLabelValues(out.Status).Inc()
		return []models.DeliveryOutcome{out}
	}

	outcomes := make([]models.DeliveryOutcome, len(subs))
	var wg sync.WaitGroup

	for i, sub := range subs {
		allowed, herr := d.health.Allowed(ctx, sub.ID)
		if herr != nil {
			// Health state being unreadable must not withhold prices;
			// deliver and let the next Observe repair the record.
			d.logger.Warn("Health lookup failed, delivering anyway",
				zap.String("subscriber_id", sub.ID), zap.Error(herr))
			allowed = true
		}
		if !allowed {
			outcomes[i] = models.DeliveryOutcome{
				SubscriberID:   sub.ID,
				SubscriberName: sub.Name,
				Key:            record.Key,
				Round:          record.Round,
				Status:         models.DeliverySkippedQuarantine,
			}
			continue
		}

		wg.Add(1)
		go func(i int, sub models.Subscriber) {
			defer wg.Done()
			outcomes[i] = d.deliver(ctx, sub, record)
		}(i, sub)
	}
	wg.Wait()

	for _, out := range outcomes {
		metrics.DeliveriesTotal.WithLabelValues(out.Status).Inc()
		if err := d.health.Observe(ctx, out); err != nil {
			d.logger.Error("Failed to record delivery outcome",
				zap.String("subscriber_id", out.SubscriberID), zap.Error(err))
		}
	}

	// Completion order is nondeterministic; keep reports stable.
	sort.Slice(outcomes, func(i, j int) bool {
		if outcomes[i].SubscriberName != outcomes[j].SubscriberName {
			return outcomes[i].SubscriberName < outcomes[j].SubscriberName
		}
		return outcomes[i].SubscriberID < outcomes[j].SubscriberID
	})
	return outcomes
}

func (d *Dispatcher) deliver(ctx context.Context, sub models.Subscriber, record models.PriceRecord) models.DeliveryOutcome {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := d.deliverer.Deliver(callCtx, sub, record)
	elapsed := time.Since(start)
	metrics.DeliveryDuration.Observe(elapsed.Seconds())

	out := models.DeliveryOutcome{
		SubscriberID:   sub.ID,
		SubscriberName: sub.Name,
		Key:            record.Key,
		Round:          record.Round,
		Status:         models.DeliveryDelivered,
		ElapsedMs:      elapsed.Milliseconds(),
	}
	if err != nil {
		out.Status = classify(err)
		out.Detail = err.Error()
		d.logger.Warn("Delivery failed",
			zap.String("subscriber", sub.Name),
			zap.String("key", record.Key),
			zap.Uint64("round", record.Round),
			zap.String("status", out.Status),
			zap.Error(err))
	}
	return out
}

// classify splits subscriber-side failures into the two reportable kinds.
func classify(err error) string {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return models.DeliveryTimeout
	}
	return models.DeliveryRejected
}
