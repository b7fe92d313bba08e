package models

// Subscriber is a downstream module registered to receive price appends
// for one or more keys. Owned by the registry; the dispatch path only ever
// reads snapshots.
type Subscriber struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	URL   string   `json:"url"`
	Token string   `json:"token,omitempty"` // bearer token presented on delivery
	Keys  []string `json:"keys"`
}

// WantsKey reports whether the subscriber is registered for key.
func (s Subscriber) WantsKey(key string) bool {
	for _, k := range s.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Health status labels derived from HealthState.
const (
	HealthHealthy     = "healthy"
	HealthDegraded    = "degraded"
	HealthQuarantined = "quarantined"
)

// HealthState tracks delivery health for one subscriber (per-subscriber
// granularity: one endpoint, one failure counter across all of its keys).
type HealthState struct {
	SubscriberID        string `json:"subscriber_id"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	Quarantined         bool   `json:"quarantined"`
	Forced              bool   `json:"forced,omitempty"` // set by admin, cleared only by admin
	QuarantinedAt       int64  `json:"quarantined_at,omitempty"`
	LastSuccessRound    uint64 `json:"last_success_round,omitempty"`
}

// Status collapses the state into its FSM label.
func (h HealthState) Status() string {
	switch {
	case h.Quarantined:
		return HealthQuarantined
	case h.ConsecutiveFailures > 0:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}
