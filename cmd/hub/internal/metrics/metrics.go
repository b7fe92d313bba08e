package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for round dispatch and subscriber health
var (
	RoundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oracle_hub_rounds_total",
			Help: "Total number of rounds accepted for processing",
		},
	)

	RoundsUnauthorizedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oracle_hub_rounds_unauthorized_total",
			Help: "Total number of round submissions rejected before commit",
		},
	)

	EntriesCommittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oracle_hub_entries_committed_total",
			Help: "Total number of batch entries committed to the ledger",
		},
	)

	EntriesRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_hub_entries_rejected_total",
			Help: "Total number of batch entries rejected, by reason",
		},
		[]string{"reason"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_hub_deliveries_total",
			Help: "Total number of per-subscriber delivery outcomes, by status",
		},
		[]string{"status"},
	)

	DeliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oracle_hub_delivery_duration_seconds",
			Help:    "Duration of individual subscriber deliveries",
			Buckets: prometheus.DefBuckets,
		},
	)

	RoundDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oracle_hub_round_duration_seconds",
			Help:    "Duration of full round processing (validate, commit, dispatch)",
			Buckets: prometheus.DefBuckets,
		},
	)

	SubscriberQuarantinesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oracle_hub_subscriber_quarantines_total",
			Help: "Total number of subscriber quarantine transitions",
		},
	)

	SubscriberReinstatementsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oracle_hub_subscriber_reinstatements_total",
			Help: "Total number of subscriber reinstatements (manual or cooldown)",
		},
	)
)

// Register registers all Prometheus metrics
func Register() {
	prometheus.MustRegister(
		RoundsTotal,
		RoundsUnauthorizedTotal,
		EntriesCommittedTotal,
		EntriesRejectedTotal,
		DeliveriesTotal,
		DeliveryDuration,
		RoundDuration,
		SubscriberQuarantinesTotal,
		SubscriberReinstatementsTotal,
	)
}
