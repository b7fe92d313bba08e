package round_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/dispatch"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/health"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/round"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/testutils"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/validate"
	"github.com/orchai-labs/oracle-hub/pkg/models"
)

const sourceToken = "aggregator-secret"

type fixture struct {
	controller *round.Controller
	ledger     *testutils.MockLedger
	registry   *testutils.MockRegistry
	deliverer  *testutils.MockDeliverer
	manager    *health.Manager
}

func setup(t *testing.T) *fixture {
	t.Helper()

	validator, err := validate.New(sourceToken, "100000000000000000000")
	if err != nil {
		t.Fatalf("validator: %v", err)
	}

	led := testutils.NewMockLedger()
	reg := &testutils.MockRegistry{}
	deliverer := testutils.NewMockDeliverer()
	manager := health.NewManager(
		testutils.NewMockHealthStore(), 3, 10*time.Minute,
		testutils.NewMockClock(time.Unix(1_700_000_000, 0)), zap.NewNop())
	dispatcher := dispatch.NewDispatcher(reg, manager, deliverer, time.Second, zap.NewNop())

	return &fixture{
		controller: round.NewController(led, validator, dispatcher, nil, zap.NewNop()),
		ledger:     led,
		registry:   reg,
		deliverer:  deliverer,
		manager:    manager,
	}
}

func batch(entries ...models.RoundEntry) models.RoundBatch {
	return models.RoundBatch{Source: sourceToken, Entries: entries}
}

func entryStatus(report *models.RoundReport, key string) models.EntryStatus {
	for _, e := range report.Entries {
		if e.Key == key {
			return e
		}
	}
	return models.EntryStatus{}
}

func TestMixedBatchCommitsValidEntries(t *testing.T) {
	f := setup(t)
	f.registry.Subscribers = []models.Subscriber{
		{ID: "s1", Name: "lending", URL: "http://lending/append", Keys: []string{"BTC", "ETH"}},
	}

	report, err := f.controller.Submit(context.Background(), batch(
		models.RoundEntry{Key: "BTC", Price: "6000000000000", Timestamp: 1000},
		models.RoundEntry{Key: "ETH", Price: "0", Timestamp: 1000},
	))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if got := entryStatus(report, "BTC"); got.Status != models.EntryCommitted || got.Round != 1 {
		t.Errorf("Expected BTC committed in round 1, got %+v", got)
	}
	if got := entryStatus(report, "ETH"); got.Status != models.EntryRejected || !strings.Contains(got.Reason, "invalid price") {
		t.Errorf("Expected ETH rejected as invalid price, got %+v", got)
	}

	if _, ok := f.ledger.Records["ETH"]; ok {
		t.Error("Rejected entry must not reach the ledger")
	}
	if rec, ok := f.ledger.Records["BTC"]; !ok || rec.Price != "6000000000000" {
		t.Errorf("Expected BTC committed, got %+v", rec)
	}

	calls := f.deliverer.CallsFor("s1")
	if len(calls) != 1 || calls[0].Key != "BTC" {
		t.Errorf("Expected exactly one BTC delivery, got %+v", calls)
	}
}

func TestResubmitIdenticalIsStale(t *testing.T) {
	f := setup(t)
	entry := models.RoundEntry{Key: "BTC", Price: "6000000000000", Timestamp: 1000}

	if _, err := f.controller.Submit(context.Background(), batch(entry)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	report, err := f.controller.Submit(context.Background(), batch(entry))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got := entryStatus(report, "BTC")
	if got.Status != models.EntryRejected || !strings.Contains(got.Reason, "stale price") {
		t.Errorf("Expected identical resubmission rejected as stale, got %+v", got)
	}
	if f.ledger.Records["BTC"].Round != 1 {
		t.Errorf("Ledger must keep the round-1 record, got %+v", f.ledger.Records["BTC"])
	}
}

func TestUnauthorizedAbortsBeforeCommit(t *testing.T) {
	f := setup(t)

	_, err := f.controller.Submit(context.Background(), models.RoundBatch{
		Source:  "imposter",
		Entries: []models.RoundEntry{{Key: "BTC", Price: "100", Timestamp: 1000}},
	})
	if !errors.Is(err, validate.ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized, got %v", err)
	}
	if f.ledger.Round != 0 {
		t.Error("Unauthorized submission must not allocate a round")
	}
	if len(f.ledger.Records) != 0 {
		t.Error("Unauthorized submission must not commit anything")
	}
}

func TestIntraBatchDuplicateKeyIsStale(t *testing.T) {
	f := setup(t)

	report, err := f.controller.Submit(context.Background(), batch(
		models.RoundEntry{Key: "BTC", Price: "100", Timestamp: 1000},
		models.RoundEntry{Key: "BTC", Price: "200", Timestamp: 2000},
	))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if report.Entries[0].Status != models.EntryCommitted {
		t.Errorf("First entry should commit, got %+v", report.Entries[0])
	}
	if report.Entries[1].Status != models.EntryRejected || !strings.Contains(report.Entries[1].Reason, "stale price") {
		t.Errorf("Duplicate key in one batch should be stale, got %+v", report.Entries[1])
	}
	if f.ledger.Records["BTC"].Price != "100" {
		t.Errorf("First entry's price should stand, got %+v", f.ledger.Records["BTC"])
	}
}

func TestDispatchOrderIsLexicographic(t *testing.T) {
	f := setup(t)
	f.registry.Subscribers = []models.Subscriber{
		{ID: "s1", Name: "lending", URL: "http://lending/append", Keys: []string{"BTC", "ETH", "ATOM"}},
	}

	_, err := f.controller.Submit(context.Background(), batch(
		models.RoundEntry{Key: "ETH", Price: "300", Timestamp: 1000},
		models.RoundEntry{Key: "ATOM", Price: "9", Timestamp: 1000},
		models.RoundEntry{Key: "BTC", Price: "60000", Timestamp: 1000},
	))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	calls := f.deliverer.CallsFor("s1")
	if len(calls) != 3 {
		t.Fatalf("Expected 3 deliveries, got %d", len(calls))
	}
	if calls[0].Key != "ATOM" || calls[1].Key != "BTC" || calls[2].Key != "ETH" {
		t.Errorf("Expected lexicographic key order, got %+v", calls)
	}
}

func TestChronicFailureQuarantineAndReinstate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.registry.Subscribers = []models.Subscriber{
		{ID: "flaky", Name: "vault", URL: "http://vault/append", Keys: []string{"BTC"}},
	}
	f.deliverer.Errs["flaky"] = context.DeadlineExceeded

	submit := func(round int) *models.RoundReport {
		report, err := f.controller.Submit(ctx, batch(models.RoundEntry{
			Key: "BTC", Price: "100", Timestamp: uint64(1000 * round),
		}))
		if err != nil {
			t.Fatalf("Submit round %d: %v", round, err)
		}
		return report
	}

	// Three consecutive failing rounds trip the quarantine.
	for r := 1; r <= 3; r++ {
		report := submit(r)
		if report.Outcomes[0].Status != models.DeliveryTimeout {
			t.Fatalf("Round %d: expected timeout outcome, got %+v", r, report.Outcomes[0])
		}
	}

	// Round 4: skipped, but the price still commits and the subscriber
	// stays registered.
	report := submit(4)
	if report.Outcomes[0].Status != models.DeliverySkippedQuarantine {
		t.Fatalf("Expected round-4 skip, got %+v", report.Outcomes[0])
	}
	if f.ledger.Records["BTC"].Round != 4 {
		t.Errorf("Commit must not depend on dispatch, got %+v", f.ledger.Records["BTC"])
	}
	if len(f.registry.Subscribers) != 1 {
		t.Error("Quarantine must not unregister the subscriber")
	}
	if calls := f.deliverer.CallsFor("flaky"); len(calls) != 3 {
		t.Errorf("Expected no attempt in round 4, got %d calls", len(calls))
	}

	// Manual reinstatement: the next round delivers normally again.
	if _, err := f.manager.Reinstate(ctx, "flaky"); err != nil {
		t.Fatalf("Reinstate: %v", err)
	}
	f.deliverer.Errs = map[string]error{}

	report = submit(5)
	if report.Outcomes[0].Status != models.DeliveryDelivered {
		t.Errorf("Expected delivery after reinstatement, got %+v", report.Outcomes[0])
	}
}

func TestRegistryFailureDoesNotFailRound(t *testing.T) {
	f := setup(t)
	f.registry.SnapshotErr = fmt.Errorf("registry down")

	report, err := f.controller.Submit(context.Background(), batch(
		models.RoundEntry{Key: "BTC", Price: "100", Timestamp: 1000},
	))
	if err != nil {
		t.Fatalf("Submit should not fail on registry trouble: %v", err)
	}
	if entryStatus(report, "BTC").Status != models.EntryCommitted {
		t.Error("Commit must proceed even when dispatch is skipped")
	}
	if len(report.Outcomes) != 1 || report.Outcomes[0].Status != models.DeliverySkippedRegistry {
		t.Errorf("Expected registry-skip outcome, got %+v", report.Outcomes)
	}
}
