package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/dispatch"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/health"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/testutils"
	"github.com/orchai-labs/oracle-hub/pkg/models"
)

func setup() (*dispatch.Dispatcher, *testutils.MockRegistry, *testutils.MockDeliverer, *health.Manager) {
	reg := &testutils.MockRegistry{}
	deliverer := testutils.NewMockDeliverer()
	manager := health.NewManager(
		testutils.NewMockHealthStore(), 3, 10*time.Minute,
		testutils.NewMockClock(time.Unix(1_700_000_000, 0)), zap.NewNop())
	d := dispatch.NewDispatcher(reg, manager, deliverer, time.Second, zap.NewNop())
	return d, reg, deliverer, manager
}

func record() models.PriceRecord {
	return models.PriceRecord{Key: "BTC/USD", Price: "6000000000000", Timestamp: 1000, Round: 7}
}

func outcomeFor(outcomes []models.DeliveryOutcome, id string) *models.DeliveryOutcome {
	for i := range outcomes {
		if outcomes[i].SubscriberID == id {
			return &outcomes[i]
		}
	}
	return nil
}

func TestIndependentOutcomes(t *testing.T) {
	d, reg, deliverer, manager := setup()
	ctx := context.Background()

	reg.Subscribers = []models.Subscriber{
		{ID: "ok", Name: "amm", URL: "http://amm/append", Keys: []string{"BTC/USD"}},
		{ID: "slow", Name: "vault", URL: "http://vault/append", Keys: []string{"BTC/USD"}},
	}
	deliverer.Errs["slow"] = context.DeadlineExceeded

	outcomes := d.Dispatch(ctx, record())
	if len(outcomes) != 2 {
		t.Fatalf("Expected exactly one outcome per subscriber, got %d", len(outcomes))
	}

	if out := outcomeFor(outcomes, "ok"); out == nil || out.Status != models.DeliveryDelivered {
		t.Errorf("Expected delivered outcome for ok subscriber, got %+v", out)
	}
	if out := outcomeFor(outcomes, "slow"); out == nil || out.Status != models.DeliveryTimeout {
		t.Errorf("Expected timeout outcome for slow subscriber, got %+v", out)
	}

	// Health reflects each subscriber independently.
	okState, _ := manager.State(ctx, "ok")
	if okState.Status() != models.HealthHealthy || okState.LastSuccessRound != 7 {
		t.Errorf("Unexpected state for ok subscriber: %+v", okState)
	}
	slowState, _ := manager.State(ctx, "slow")
	if slowState.ConsecutiveFailures != 1 {
		t.Errorf("Expected one recorded failure for slow subscriber, got %+v", slowState)
	}
}

func TestRejectedClassification(t *testing.T) {
	d, reg, deliverer, _ := setup()

	reg.Subscribers = []models.Subscriber{
		{ID: "bad", Name: "amm", URL: "http://amm/append", Keys: []string{"BTC/USD"}},
	}
	deliverer.Errs["bad"] = errors.New("subscriber amm rejected append_price: status 500")

	outcomes := d.Dispatch(context.Background(), record())
	if len(outcomes) != 1 || outcomes[0].Status != models.DeliveryRejected {
		t.Errorf("Expected rejected outcome, got %+v", outcomes)
	}
}

func TestQuarantinedSubscriberSkipped(t *testing.T) {
	d, reg, deliverer, manager := setup()
	ctx := context.Background()

	reg.Subscribers = []models.Subscriber{
		{ID: "q", Name: "vault", URL: "http://vault/append", Keys: []string{"BTC/USD"}},
	}
	if _, err := manager.ForceQuarantine(ctx, "q"); err != nil {
		t.Fatalf("ForceQuarantine: %v", err)
	}

	outcomes := d.Dispatch(ctx, record())
	if len(outcomes) != 1 || outcomes[0].Status != models.DeliverySkippedQuarantine {
		t.Fatalf("Expected skip outcome, got %+v", outcomes)
	}
	if len(deliverer.Calls) != 0 {
		t.Errorf("Quarantined subscriber must not be called, got %+v", deliverer.Calls)
	}
}

func TestRegistryUnavailable(t *testing.T) {
	d, reg, deliverer, _ := setup()
	reg.SnapshotErr = errors.New("connection refused")

	outcomes := d.Dispatch(context.Background(), record())
	if len(outcomes) != 1 || outcomes[0].Status != models.DeliverySkippedRegistry {
		t.Fatalf("Expected registry-skip outcome, got %+v", outcomes)
	}
	if outcomes[0].Key != "BTC/USD" || outcomes[0].Round != 7 {
		t.Errorf("Skip outcome should identify the key and round, got %+v", outcomes[0])
	}
	if len(deliverer.Calls) != 0 {
		t.Errorf("No deliveries expected when the registry is down, got %+v", deliverer.Calls)
	}
}

func TestNoSubscribersForKey(t *testing.T) {
	d, reg, _, _ := setup()
	reg.Subscribers = []models.Subscriber{
		{ID: "other", Name: "amm", URL: "http://amm/append", Keys: []string{"ETH/USD"}},
	}

	outcomes := d.Dispatch(context.Background(), record())
	if len(outcomes) != 0 {
		t.Errorf("Expected no outcomes for a key with no subscribers, got %+v", outcomes)
	}
}

func TestOutcomesSortedBySubscriber(t *testing.T) {
	d, reg, _, _ := setup()
	reg.Subscribers = []models.Subscriber{
		{ID: "1", Name: "zeta", URL: "http://z/append", Keys: []string{"BTC/USD"}},
		{ID: "2", Name: "alpha", URL: "http://a/append", Keys: []string{"BTC/USD"}},
		{ID: "3", Name: "mid", URL: "http://m/append", Keys: []string{"BTC/USD"}},
	}

	outcomes := d.Dispatch(context.Background(), record())
	if len(outcomes) != 3 {
		t.Fatalf("Expected 3 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].SubscriberName != "alpha" || outcomes[1].SubscriberName != "mid" || outcomes[2].SubscriberName != "zeta" {
		t.Errorf("Expected name-sorted outcomes, got %+v", outcomes)
	}
}
