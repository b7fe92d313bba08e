package health

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/metrics"
	"github.com/orchai-labs/oracle-hub/pkg/models"
)

// for deterministic testing
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Manager runs the per-subscriber health state machine:
// Healthy -> Degraded(n) -> Quarantined at threshold consecutive failures.
// Success resets to Healthy immediately. A forced (admin-set) quarantine is
// cleared only by an explicit reinstate; a tripped one also clears after
// the cooldown elapses.
type Manager struct {
	store     Store
	threshold int
	cooldown  time.Duration
	clock     Clock
	logger    *zap.Logger
}

func NewManager(store Store, threshold int, cooldown time.Duration, clock Clock, logger *zap.Logger) *Manager {
	return &Manager{
		store:     store,
		threshold: threshold,
		cooldown:  cooldown,
		clock:     clock,
		logger:    logger,
	}
}

// Observe folds one delivery outcome into the subscriber's state. Skipped
// outcomes are not attempts and leave the state untouched.
func (m *Manager) Observe(ctx context.Context, outcome models.DeliveryOutcome) error {
	if outcome.SubscriberID == "" {
		return nil
	}
	if outcome.Status != models.DeliveryDelivered && !outcome.Failed() {
		return nil
	}

	state, err := m.store.Load(ctx, outcome.SubscriberID)
	if err != nil {
		return err
	}

	if outcome.Status == models.DeliveryDelivered {
		state.ConsecutiveFailures = 0
		state.LastSuccessRound = outcome.Round
		// A forced quarantine outlives success; only an admin clears it.
		if !state.Forced {
			state.Quarantined = false
			state.QuarantinedAt = 0
		}
		return m.store.Save(ctx, state)
	}

	state.ConsecutiveFailures++
	if !state.Quarantined && state.ConsecutiveFailures >= m.threshold {
		state.Quarantined = true
		state.QuarantinedAt = m.clock.Now().Unix()
		metrics.SubscriberQuarantinesTotal.Inc()
		m.logger.Warn("Subscriber quarantined",
			zap.String("subscriber_id", outcome.SubscriberID),
			zap.String("subscriber", outcome.SubscriberName),
			zap.Int("consecutive_failures", state.ConsecutiveFailures),
			zap.Uint64("round", outcome.Round))
	}
	return m.store.Save(ctx, state)
}

// Allowed reports whether the dispatcher may deliver to the subscriber.
// A non-forced quarantine whose cooldown has elapsed is reinstated here,
// on the read path, so the next natural round resumes delivery.
func (m *Manager) Allowed(ctx context.Context, subscriberID string) (bool, error) {
	state, err := m.store.Load(ctx, subscriberID)
	if err != nil {
		return false, err
	}
	if !state.Quarantined {
		return true, nil
	}
	if state.Forced {
		return false, nil
	}
	if m.cooldown > 0 && m.clock.Now().Unix()-state.QuarantinedAt >= int64(m.cooldown.Seconds()) {
		state.Quarantined = false
		state.ConsecutiveFailures = 0
		state.QuarantinedAt = 0
		if err := m.store.Save(ctx, state); err != nil {
			return false, err
		}
		metrics.SubscriberReinstatementsTotal.Inc()
		m.logger.Info("Subscriber reinstated after cooldown", zap.String("subscriber_id", subscriberID))
		return true, nil
	}
	return false, nil
}

// Reinstate clears any quarantine, forced included, and resets the
// failure counter.
func (m *Manager) Reinstate(ctx context.Context, subscriberID string) (models.HealthState, error) {
	state, err := m.store.Load(ctx, subscriberID)
	if err != nil {
		return state, err
	}
	if state.Quarantined {
		metrics.SubscriberReinstatementsTotal.Inc()
	}
	state.ConsecutiveFailures = 0
	state.Quarantined = false
	state.Forced = false
	state.QuarantinedAt = 0
	return state, m.store.Save(ctx, state)
}

// ForceQuarantine suspends delivery until an explicit Reinstate; neither
// success nor cooldown clears it.
func (m *Manager) ForceQuarantine(ctx context.Context, subscriberID string) (models.HealthState, error) {
	state, err := m.store.Load(ctx, subscriberID)
	if err != nil {
		return state, err
	}
	if !state.Quarantined {
		metrics.SubscriberQuarantinesTotal.Inc()
	}
	state.Quarantined = true
	state.Forced = true
	state.QuarantinedAt = m.clock.Now().Unix()
	return state, m.store.Save(ctx, state)
}

// State returns the current health state; absent states read as Healthy.
func (m *Manager) State(ctx context.Context, subscriberID string) (models.HealthState, error) {
	return m.store.Load(ctx, subscriberID)
}

// Forget drops the state entirely, used when a subscriber is unregistered.
func (m *Manager) Forget(ctx context.Context, subscriberID string) error {
	return m.store.Delete(ctx, subscriberID)
}
