package testutils

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/ledger"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/registry"
	"github.com/orchai-labs/oracle-hub/pkg/models"
)

// MockLedger is an in-memory ledger.Store
type MockLedger struct {
	Mu        sync.Mutex
	Records   map[string]models.PriceRecord
	Round     uint64
	CommitErr error
}

func NewMockLedger() *MockLedger {
	return &MockLedger{Records: make(map[string]models.PriceRecord)}
}

func (m *MockLedger) Commit(ctx context.Context, record models.PriceRecord) (*models.PriceRecord, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.CommitErr != nil {
		return nil, m.CommitErr
	}
	var prev *models.PriceRecord
	if old, ok := m.Records[record.Key]; ok {
		prev = &old
	}
	m.Records[record.Key] = record
	return prev, nil
}

func (m *MockLedger) Read(ctx context.Context, key string) (*models.PriceRecord, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	rec, ok := m.Records[key]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return &rec, nil
}

func (m *MockLedger) NextRound(ctx context.Context) (uint64, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Round++
	return m.Round, nil
}

func (m *MockLedger) Close() error { return nil }

// MockRegistry is an in-memory registry.Store
type MockRegistry struct {
	Mu          sync.Mutex
	Subscribers []models.Subscriber
	SnapshotErr error
}

func (m *MockRegistry) Snapshot(ctx context.Context, key string) ([]models.Subscriber, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.SnapshotErr != nil {
		return nil, m.SnapshotErr
	}
	var subs []models.Subscriber
	for _, s := range m.Subscribers {
		if s.WantsKey(key) {
			subs = append(subs, s)
		}
	}
	return subs, nil
}

func (m *MockRegistry) Register(ctx context.Context, sub models.Subscriber) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for i, s := range m.Subscribers {
		if s.ID == sub.ID {
			m.Subscribers[i] = sub
			return nil
		}
	}
	m.Subscribers = append(m.Subscribers, sub)
	return nil
}

func (m *MockRegistry) Unregister(ctx context.Context, id string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for i, s := range m.Subscribers {
		if s.ID == id {
			m.Subscribers = append(m.Subscribers[:i], m.Subscribers[i+1:]...)
			return nil
		}
	}
	return registry.ErrNotFound
}

func (m *MockRegistry) Get(ctx context.Context, id string) (*models.Subscriber, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for _, s := range m.Subscribers {
		if s.ID == id {
			sub := s
			return &sub, nil
		}
	}
	return nil, registry.ErrNotFound
}

func (m *MockRegistry) List(ctx context.Context) ([]models.Subscriber, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]models.Subscriber(nil), m.Subscribers...), nil
}

func (m *MockRegistry) Close() error { return nil }

// DeliveryCall records one attempt the MockDeliverer saw
type DeliveryCall struct {
	SubscriberID string
	Key          string
	Round        uint64
}

// MockDeliverer returns a configured error per subscriber ID
type MockDeliverer struct {
	Mu    sync.Mutex
	Errs  map[string]error
	Calls []DeliveryCall
}

func NewMockDeliverer() *MockDeliverer {
	return &MockDeliverer{Errs: make(map[string]error)}
}

func (m *MockDeliverer) Deliver(ctx context.Context, sub models.Subscriber, record models.PriceRecord) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Calls = append(m.Calls, DeliveryCall{SubscriberID: sub.ID, Key: record.Key, Round: record.Round})
	return m.Errs[sub.ID]
}

// CallsFor returns the attempts recorded for one subscriber
func (m *MockDeliverer) CallsFor(id string) []DeliveryCall {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var calls []DeliveryCall
	for _, c := range m.Calls {
		if c.SubscriberID == id {
			calls = append(calls, c)
		}
	}
	return calls
}

// MockHealthStore is an in-memory health.Store
type MockHealthStore struct {
	Mu     sync.Mutex
	States map[string]models.HealthState
}

func NewMockHealthStore() *MockHealthStore {
	return &MockHealthStore{States: make(map[string]models.HealthState)}
}

func (m *MockHealthStore) Load(ctx context.Context, id string) (models.HealthState, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if state, ok := m.States[id]; ok {
		return state, nil
	}
	return models.HealthState{SubscriberID: id}, nil
}

func (m *MockHealthStore) Save(ctx context.Context, state models.HealthState) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.States[state.SubscriberID] = state
	return nil
}

func (m *MockHealthStore) Delete(ctx context.Context, id string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	delete(m.States, id)
	return nil
}

func (m *MockHealthStore) Close() error { return nil }

// MockClock is a manually advanced health.Clock
type MockClock struct {
	Mu  sync.Mutex
	Val time.Time
}

func NewMockClock(start time.Time) *MockClock {
	return &MockClock{Val: start}
}

func (m *MockClock) Now() time.Time {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Val
}

func (m *MockClock) Advance(d time.Duration) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Val = m.Val.Add(d)
}

// MockSubmitter records submitted batches and returns a canned report
type MockSubmitter struct {
	Mu      sync.Mutex
	Batches []models.RoundBatch
	Report  *models.RoundReport
	Err     error
}

func (m *MockSubmitter) Submit(ctx context.Context, batch models.RoundBatch) (*models.RoundReport, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Batches = append(m.Batches, batch)
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Report != nil {
		return m.Report, nil
	}
	return &models.RoundReport{Round: uint64(len(m.Batches))}, nil
}

// MockKafkaReader replays a fixed message list, then reports
// context.DeadlineExceeded to stop the consumer loop cleanly.
type MockKafkaReader struct {
	Messages []kafka.Message
	Index    int
	Mu       sync.Mutex
	Closed   bool
}

func (m *MockKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if m.Closed {
		return kafka.Message{}, io.EOF
	}
	if m.Index >= len(m.Messages) {
		return kafka.Message{}, context.DeadlineExceeded
	}

	msg := m.Messages[m.Index]
	m.Index++
	return msg, nil
}

func (m *MockKafkaReader) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}
