package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	OrdersRegistered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofline_orders_registered_total",
		Help: "The total number of orders registered through the intake API",
	}, []string{"chain_id"})

	TransfersEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofline_transfers_enqueued_total",
		Help: "The total number of transfer events enqueued for matching",
	}, []string{"chain_id"})

	TransfersDeduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofline_transfers_deduplicated_total",
		Help: "The total number of transfer events dropped as duplicates by transaction hash",
	}, []string{"chain_id"})

	TransfersProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofline_transfers_processed_total",
		Help: "The total number of processed transfer events by outcome",
	}, []string{"chain_id", "outcome"})

	TransferProcessingTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "proofline_transfer_processing_seconds",
		Help:    "Time taken to match and verify one transfer",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"chain_id"})

	OrdersCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofline_orders_completed_total",
		Help: "The total number of orders settled as completed",
	}, []string{"chain_id"})

	OrdersCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofline_orders_cancelled_total",
		Help: "The total number of orders cancelled by reason",
	}, []string{"chain_id", "reason"})

	SettledBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "proofline_settled_backlog",
		Help: "The number of settled orders awaiting durable persistence",
	})

	SweepBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofline_sweep_batches_total",
		Help: "The total number of sweep batches by result",
	}, []string{"result"})

	SweptOrders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofline_swept_orders_total",
		Help: "The total number of orders durably persisted by the sweeper",
	}, []string{"status"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofline_events_published_total",
		Help: "The total number of status events published to the event bus",
	}, []string{"event"})

	EventPublishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofline_event_publish_errors_total",
		Help: "The total number of status events that could not be published",
	}, []string{"event"})
)
