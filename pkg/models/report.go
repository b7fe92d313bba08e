package models

// Delivery outcome statuses. Timeout and rejected are subscriber-side and
// never fatal to the round.
const (
	DeliveryDelivered         = "delivered"
	DeliveryTimeout           = "timeout"
	DeliveryRejected          = "rejected"
	DeliverySkippedQuarantine = "skipped_quarantined"
	DeliverySkippedRegistry   = "skipped_registry"
)

// Entry statuses inside a round report.
const (
	EntryCommitted = "committed"
	EntryRejected  = "rejected"
)

// DeliveryOutcome is the per-attempt result for one (subscriber, key,
// round). It feeds the health manager and the round report, nothing else.
type DeliveryOutcome struct {
	SubscriberID   string `json:"subscriber_id,omitempty"`
	SubscriberName string `json:"subscriber_name,omitempty"`
	Key            string `json:"key"`
	Round          uint64 `json:"round"`
	Status         string `json:"status"`
	Detail         string `json:"detail,omitempty"`
	ElapsedMs      int64  `json:"elapsed_ms,omitempty"`
}

// Failed reports whether the outcome counts against the subscriber's
// failure streak. Skips are not attempts.
func (o DeliveryOutcome) Failed() bool {
	return o.Status == DeliveryTimeout || o.Status == DeliveryRejected
}

// EntryStatus is the per-entry result of a submitted batch, in submission
// order.
type EntryStatus struct {
	Key    string `json:"key"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Round  uint64 `json:"round,omitempty"`
}

// RoundReport is the batch-level summary returned to the price source and
// kept in a short history for the admin surface.
type RoundReport struct {
	Round      uint64            `json:"round"`
	Entries    []EntryStatus     `json:"entries"`
	Outcomes   []DeliveryOutcome `json:"outcomes"`
	StartedAt  int64             `json:"started_at"`  // unix micro
	FinishedAt int64             `json:"finished_at"` // unix micro
}

// Committed counts entries that were committed and dispatched.
func (r RoundReport) Committed() int {
	n := 0
	for _, e := range r.Entries {
		if e.Status == EntryCommitted {
			n++
		}
	}
	return n
}
